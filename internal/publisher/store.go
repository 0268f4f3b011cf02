package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/snowflake"
)

// CatalogStore is the Publisher's view of the catalog database: series,
// chapter, and translation lookups, plus the single transaction that
// commits all three per §4.10's atomicity requirement.
type CatalogStore interface {
	FindSeriesByNormalizedTitle(ctx context.Context, normalized string) (*model.Series, error)
	// ListNormalizedTitles returns every stored series' normalized title,
	// for the fuzzy-match scan when no exact match is found.
	ListNormalizedTitles(ctx context.Context) (map[string]string, error) // normalized -> series id
	GetSeries(ctx context.Context, id string) (*model.Series, error)
	FindChapterByNumber(ctx context.Context, seriesID string, number float64) (*model.Chapter, error)
	FindTranslation(ctx context.Context, chapterID, sourceLang, targetLang string) (*model.Translation, error)
	// Commit performs the series/chapter/translation upserts in a single
	// transaction.
	Commit(ctx context.Context, in CommitInput) error
}

// CommitInput bundles the fully-resolved rows Publisher wants persisted.
// Publisher computes final field values (merge-missing-only for an
// existing series, in-place update for an existing chapter); Commit just
// upserts them atomically.
type CommitInput struct {
	Series      model.Series
	Chapter     model.Chapter
	Translation model.Translation
}

type pgCatalogStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a CatalogStore backed by a pgx connection pool.
func NewPostgresStore(pool *pgxpool.Pool) CatalogStore {
	return &pgCatalogStore{pool: pool}
}

func (s *pgCatalogStore) FindSeriesByNormalizedTitle(ctx context.Context, normalized string) (*model.Series, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, source_lang, target_lang FROM series WHERE normalized_title = $1
	`, normalized)
	var series model.Series
	if err := row.Scan(&series.ID, &series.Title, &series.SourceLang, &series.TargetLang); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipelineerr.New(pipelineerr.KindStorage, "publisher.FindSeriesByNormalizedTitle", err)
	}
	return &series, nil
}

func (s *pgCatalogStore) ListNormalizedTitles(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, normalized_title FROM series`)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "publisher.ListNormalizedTitles", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, normalized string
		if err := rows.Scan(&id, &normalized); err != nil {
			return nil, pipelineerr.New(pipelineerr.KindStorage, "publisher.ListNormalizedTitles", err)
		}
		out[normalized] = id
	}
	return out, rows.Err()
}

func (s *pgCatalogStore) GetSeries(ctx context.Context, id string) (*model.Series, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, title, source_lang, target_lang FROM series WHERE id = $1`, id)
	var series model.Series
	if err := row.Scan(&series.ID, &series.Title, &series.SourceLang, &series.TargetLang); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipelineerr.New(pipelineerr.KindStorage, "publisher.GetSeries", err)
	}
	return &series, nil
}

func (s *pgCatalogStore) FindChapterByNumber(ctx context.Context, seriesID string, number float64) (*model.Chapter, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, series_id, number, title, source_url FROM chapters WHERE series_id = $1 AND number = $2
	`, seriesID, number)
	var chapter model.Chapter
	if err := row.Scan(&chapter.ID, &chapter.SeriesID, &chapter.Number, &chapter.Title, &chapter.SourceURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipelineerr.New(pipelineerr.KindStorage, "publisher.FindChapterByNumber", err)
	}
	return &chapter, nil
}

func (s *pgCatalogStore) FindTranslation(ctx context.Context, chapterID, sourceLang, targetLang string) (*model.Translation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, chapter_id, source_lang, target_lang, backend, page_refs, storage_path, created_at
		FROM translations WHERE chapter_id = $1 AND source_lang = $2 AND target_lang = $3
	`, chapterID, sourceLang, targetLang)

	var t model.Translation
	var backend int
	var rawRefs []byte
	if err := row.Scan(&t.ID, &t.ChapterID, &t.SourceLang, &t.TargetLang, &backend, &rawRefs, &t.StoragePath, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, pipelineerr.New(pipelineerr.KindStorage, "publisher.FindTranslation", err)
	}
	t.Backend = model.Backend(backend)
	if err := json.Unmarshal(rawRefs, &t.PageRefs); err != nil {
		return nil, pipelineerr.New(pipelineerr.KindInvariant, "publisher.FindTranslation", fmt.Errorf("decode page_refs: %w", err))
	}
	return &t, nil
}

// Commit upserts series, chapter, and translation in one transaction. Per
// §4.10's "Translation row present ... delete its blob directory, then
// overwrite the row": since each (series, src, tgt, chapter_number) maps to
// one deterministic directory, the caller's FileManager.Save already wiped
// and rewrote that directory before Commit runs; Commit only needs to
// replace the translation row itself, which it does unconditionally via
// the unique index's ON CONFLICT clause.
func (s *pgCatalogStore) Commit(ctx context.Context, in CommitInput) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Commit", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		INSERT INTO series (id, title, normalized_title, source_lang, target_lang, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, source_lang = EXCLUDED.source_lang,
			target_lang = EXCLUDED.target_lang, updated_at = EXCLUDED.updated_at
	`, in.Series.ID, in.Series.Title, normalizeTitle(in.Series.Title), in.Series.SourceLang, in.Series.TargetLang, now); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Commit", fmt.Errorf("upsert series: %w", err))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO chapters (id, series_id, number, title, source_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (series_id, number) DO UPDATE SET
			title = EXCLUDED.title, source_url = EXCLUDED.source_url, updated_at = EXCLUDED.updated_at
	`, in.Chapter.ID, in.Chapter.SeriesID, in.Chapter.Number, in.Chapter.Title, in.Chapter.SourceURL, now); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Commit", fmt.Errorf("upsert chapter: %w", err))
	}

	refs, err := json.Marshal(in.Translation.PageRefs)
	if err != nil {
		return pipelineerr.New(pipelineerr.KindInvariant, "publisher.Commit", fmt.Errorf("encode page_refs: %w", err))
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO translations (id, chapter_id, source_lang, target_lang, backend, page_refs, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chapter_id, source_lang, target_lang) DO UPDATE SET
			id = EXCLUDED.id, backend = EXCLUDED.backend, page_refs = EXCLUDED.page_refs,
			storage_path = EXCLUDED.storage_path, created_at = EXCLUDED.created_at
	`, in.Translation.ID, in.Translation.ChapterID, in.Translation.SourceLang, in.Translation.TargetLang,
		int(in.Translation.Backend), refs, in.Translation.StoragePath, now); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Commit", fmt.Errorf("upsert translation: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "publisher.Commit", fmt.Errorf("commit: %w", err))
	}
	return nil
}

// NewSeriesID, NewChapterID, and NewTranslationID generate catalog row IDs
// the same way every other store in the pipeline does: snowflake, as a
// decimal string.
func NewSeriesID() string      { return strconv.FormatInt(snowflake.NextID(), 10) }
func NewChapterID() string     { return strconv.FormatInt(snowflake.NextID(), 10) }
func NewTranslationID() string { return strconv.FormatInt(snowflake.NextID(), 10) }
