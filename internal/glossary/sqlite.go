package glossary

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/pipelineerr"
	"github.com/toonrelay/pipeline/internal/snowflake"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a Store backed by the pipeline's sqlite database.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) GetOrCreateDictionary(ctx context.Context, seriesID, sourceLang, targetLang string, capacity int) (*model.Dictionary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, series_id, source_lang, target_lang, capacity, created_at
		FROM glossary_dictionaries WHERE series_id = ? AND source_lang = ? AND target_lang = ?
	`, seriesID, sourceLang, targetLang)

	dict, err := scanDictionary(row)
	if err == nil {
		return dict, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "glossary.GetOrCreateDictionary", err)
	}

	now := time.Now().UTC()
	dict = &model.Dictionary{
		ID:         strconv.FormatInt(snowflake.NextID(), 10),
		SeriesID:   seriesID,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Capacity:   capacity,
		CreatedAt:  now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO glossary_dictionaries (id, series_id, source_lang, target_lang, capacity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_id, source_lang, target_lang) DO NOTHING
	`, dict.ID, seriesID, sourceLang, targetLang, capacity, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "glossary.GetOrCreateDictionary", err)
	}

	// Another caller may have created it concurrently; re-read to get the
	// row that actually won.
	row = s.db.QueryRowContext(ctx, `
		SELECT id, series_id, source_lang, target_lang, capacity, created_at
		FROM glossary_dictionaries WHERE series_id = ? AND source_lang = ? AND target_lang = ?
	`, seriesID, sourceLang, targetLang)
	dict, err = scanDictionary(row)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "glossary.GetOrCreateDictionary", err)
	}
	return dict, nil
}

func (s *sqliteStore) Entries(ctx context.Context, dictionaryID string) ([]model.GlossaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dictionary_id, original, translation, is_proper_noun, usage_count, last_used_at
		FROM glossary_entries WHERE dictionary_id = ?
	`, dictionaryID)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindStorage, "glossary.Entries", err)
	}
	defer rows.Close()

	var entries []model.GlossaryEntry
	for rows.Next() {
		var e model.GlossaryEntry
		var properNoun int
		var lastUsedAt string
		if err := rows.Scan(&e.ID, &e.DictionaryID, &e.Original, &e.Translation, &properNoun, &e.UsageCount, &lastUsedAt); err != nil {
			return nil, pipelineerr.New(pipelineerr.KindStorage, "glossary.Entries", err)
		}
		e.IsProperNoun = model.ProperNounState(properNoun)
		e.LastUsedAt, _ = time.Parse(time.RFC3339Nano, lastUsedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *sqliteStore) Upsert(ctx context.Context, dictionaryID, original, translation string, kind model.ProperNounState, at time.Time) error {
	fold := strings.ToLower(original)
	id := strconv.FormatInt(snowflake.NextID(), 10)

	// On conflict, is_proper_noun only moves away from whatever is
	// already stored when kind carries an actual decision (not Auto) —
	// per §4.3, "override is_proper_noun only when kind ≠ auto".
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO glossary_entries (id, dictionary_id, original, original_fold, translation, is_proper_noun, usage_count, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(dictionary_id, original_fold) DO UPDATE SET
		  translation = excluded.translation,
		  usage_count = glossary_entries.usage_count + 1,
		  last_used_at = excluded.last_used_at,
		  is_proper_noun = CASE WHEN excluded.is_proper_noun != ? THEN excluded.is_proper_noun ELSE glossary_entries.is_proper_noun END
	`, id, dictionaryID, original, fold, translation, int(kind), at.Format(time.RFC3339Nano), int(model.ProperNounAuto))
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "glossary.Upsert", err)
	}
	return nil
}

func (s *sqliteStore) ConfirmProperNoun(ctx context.Context, dictionaryID, original string, isProperNoun bool) error {
	state := model.ProperNounConfirmedNo
	if isProperNoun {
		state = model.ProperNounConfirmedYes
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE glossary_entries SET is_proper_noun = ?
		WHERE dictionary_id = ? AND original_fold = ?
	`, int(state), dictionaryID, strings.ToLower(original))
	if err != nil {
		return pipelineerr.New(pipelineerr.KindStorage, "glossary.ConfirmProperNoun", err)
	}
	return nil
}

func (s *sqliteStore) Cleanup(ctx context.Context, dictionaryID string, minKeepUsage int) (int, error) {
	var capacity int
	if err := s.db.QueryRowContext(ctx, `SELECT capacity FROM glossary_dictionaries WHERE id = ?`, dictionaryID).Scan(&capacity); err != nil {
		return 0, pipelineerr.New(pipelineerr.KindStorage, "glossary.Cleanup", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM glossary_entries WHERE dictionary_id = ?`, dictionaryID).Scan(&total); err != nil {
		return 0, pipelineerr.New(pipelineerr.KindStorage, "glossary.Cleanup", err)
	}
	if total <= capacity {
		return 0, nil
	}

	overage := total - capacity
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM glossary_entries WHERE id IN (
		  SELECT id FROM glossary_entries
		  WHERE dictionary_id = ? AND usage_count < ?
		  ORDER BY usage_count ASC, last_used_at ASC
		  LIMIT ?
		)
	`, dictionaryID, minKeepUsage, overage)
	if err != nil {
		return 0, pipelineerr.New(pipelineerr.KindStorage, "glossary.Cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, pipelineerr.New(pipelineerr.KindStorage, "glossary.Cleanup", err)
	}
	return int(n), nil
}

func scanDictionary(row *sql.Row) (*model.Dictionary, error) {
	var d model.Dictionary
	var createdAt string
	if err := row.Scan(&d.ID, &d.SeriesID, &d.SourceLang, &d.TargetLang, &d.Capacity, &createdAt); err != nil {
		return nil, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}
