// Package app assembles the translation pipeline's full collaborator
// graph from a config.Config. Both cmd/pipelineserver (HTTP control
// plane) and cmd/pipelinectl (one-shot batch submission) build an App
// instead of duplicating the wiring.
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toonrelay/pipeline/internal/batch"
	"github.com/toonrelay/pipeline/internal/blobstore"
	"github.com/toonrelay/pipeline/internal/config"
	"github.com/toonrelay/pipeline/internal/db"
	"github.com/toonrelay/pipeline/internal/glossary"
	"github.com/toonrelay/pipeline/internal/imageproc"
	"github.com/toonrelay/pipeline/internal/jobstore"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
	"github.com/toonrelay/pipeline/internal/network"
	"github.com/toonrelay/pipeline/internal/ocr"
	"github.com/toonrelay/pipeline/internal/pipeline"
	"github.com/toonrelay/pipeline/internal/publisher"
	"github.com/toonrelay/pipeline/internal/repository"
	"github.com/toonrelay/pipeline/internal/resultcache"
	"github.com/toonrelay/pipeline/internal/scraper"
	"github.com/toonrelay/pipeline/internal/snowflake"
	"github.com/toonrelay/pipeline/internal/translator"
)

// settingTranslateRateLimitQPS is the settings-table key an operator can
// PUT to retune the LLM translator's rate limit without a restart; see
// config.Config.TranslateRateLimitQPS for the process-start default.
const settingTranslateRateLimitQPS = "translate_rate_limit_qps"

// App holds every wired collaborator a caller might need.
type App struct {
	Config       config.Config
	Jobs         jobstore.Store
	Glossary     glossary.Store
	Settings     repository.SettingsRepository
	Cache        *resultcache.Cache
	Publisher    *publisher.Publisher
	Pipeline     *pipeline.Pipeline
	Orchestrator *batch.Orchestrator

	sqliteConn interface{ Close() error }
	pgPool     *pgxpool.Pool
}

// Close releases every collaborator with a lifecycle (sqlite connection,
// postgres pool). Safe to call on a partially built App.
func (a *App) Close() {
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.sqliteConn != nil {
		if err := a.sqliteConn.Close(); err != nil {
			logger.Error("close sqlite", "module", "app", "action", "close", "result", "error", "error", err)
		}
	}
}

// New builds the full collaborator graph: sqlite job/glossary storage,
// Redis result cache and locking, the Postgres catalog and its
// migrations, the LLM/MT translator cascade, OCR, the scraper, the
// image processor, blob storage, the Publisher, and finally the
// Pipeline and batch Orchestrator that sit on top of all of it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := snowflake.Init(1); err != nil {
		return nil, fmt.Errorf("init snowflake: %w", err)
	}

	sqliteConn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	jobs := jobstore.NewSQLiteStore(sqliteConn)
	glossaryStore := glossary.NewSQLiteStore(sqliteConn)
	settingsStore := repository.NewSettingsRepository(sqliteConn)

	redisClient, err := resultcache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		sqliteConn.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	cache := resultcache.NewCache(redisClient, cfg.CacheTTL, cfg.LockTTL)

	if err := publisher.Migrate(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		sqliteConn.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		sqliteConn.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	catalogStore := publisher.NewPostgresStore(pgPool)

	files, err := blobstore.NewLocalFileManager(cfg.BlobRoot)
	if err != nil {
		pgPool.Close()
		sqliteConn.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	scratch, err := blobstore.NewScratchStore(cfg.ScratchDir)
	if err != nil {
		pgPool.Close()
		sqliteConn.Close()
		return nil, fmt.Errorf("open scratch store: %w", err)
	}

	llmProvider, err := translator.NewProvider(translator.ProviderConfig{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		BaseURL:  cfg.LLMBaseURL,
		Model:    cfg.LLMModel,
	})
	if err != nil {
		pgPool.Close()
		sqliteConn.Close()
		return nil, fmt.Errorf("build llm provider: %w", err)
	}
	rateLimitQPS := cfg.TranslateRateLimitQPS
	if s, err := settingsStore.Get(ctx, settingTranslateRateLimitQPS); err != nil {
		logger.Warn("read rate limit setting failed, using config default", "module", "app", "action", "load_settings", "resource", settingTranslateRateLimitQPS, "result", "error", "error", err)
	} else if s != nil {
		if v, err := strconv.Atoi(s.Value); err == nil && v > 0 {
			rateLimitQPS = v
		}
	}
	llmTranslator := translator.NewLLMTranslator(llmProvider, rateLimitQPS)

	mtBackends := []translator.Backend{translator.NewInProcessBackend()}
	if cfg.MTOfflineTablePath != "" {
		offline, err := translator.NewOfflinePhraseBackend(cfg.MTOfflineTablePath)
		if err != nil {
			logger.Warn("offline phrase table unavailable", "module", "app", "action", "load_offline_mt", "resource", cfg.MTOfflineTablePath, "result", "skipped", "error", err)
		} else {
			mtBackends = append(mtBackends, offline)
		}
	}
	if mtProvider, err := translator.NewProvider(translator.ProviderConfig{
		Provider: cfg.MTProvider,
		APIKey:   cfg.MTAPIKey,
		BaseURL:  cfg.MTBaseURL,
		Model:    cfg.MTModel,
	}); err != nil {
		logger.Warn("network mt backend unavailable", "module", "app", "action", "build_network_mt", "result", "skipped", "error", err)
	} else {
		mtBackends = append(mtBackends, translator.NewNetworkMTBackend(mtProvider))
	}
	mtTranslator := translator.NewMTTranslator(mtBackends...)

	translators := pipeline.Translators{
		model.BackendLLM: llmTranslator,
		model.BackendMT:  mtTranslator,
	}

	ocrReader := ocr.NewReader(func() (ocr.Engine, error) {
		return ocr.NewGeminiEngine(context.Background(), cfg.OCRGeminiKey, cfg.OCRGeminiModel)
	})

	netFactory := network.NewClientFactory(cfg.ScraperProxyURL, cfg.ScraperIPStack)
	registry := scraper.BuildRegistry(cfg.ScraperPlainHosts, cfg.ScraperFingerprintedHosts, cfg.ScraperChallengedHosts, netFactory, cfg.ChallengeWait)
	downloader := scraper.NewDownloader(netFactory.NewHTTPClient(30 * time.Second))
	scrp := scraper.New(registry, downloader, cfg.ChallengeWait)

	images := imageproc.NewProcessor(imageproc.DefaultOptions())

	pub := publisher.New(publisher.Config{
		Store:   catalogStore,
		Files:   files,
		Scratch: scratch,
		Cache:   cache,
	})

	pl := pipeline.New(pipeline.Config{
		Jobs:             jobs,
		Cache:            cache,
		Scraper:          scrp,
		OCR:              ocrReader,
		Glossary:         glossaryStore,
		Translators:      translators,
		Images:           images,
		Scratch:          scratch,
		GlossaryCapacity: cfg.GlossaryCapacity,
		MinKeepUsage:     cfg.GlossaryMinKeepUsage,
		Publish: func(ctx context.Context, in pipeline.Input, result *model.ChapterResult) error {
			_, err := pub.Publish(ctx, publisher.Request{
				ChapterURL: in.ChapterURL,
				SeriesName: in.SeriesName,
				SourceLang: in.SourceLang,
				TargetLang: in.TargetLang,
				Backend:    in.Backend,
				Result:     result,
			})
			return err
		},
	})

	orchestrator := batch.New(batch.Config{
		Pipeline:       pl,
		Scratch:        scratch,
		Files:          files,
		Concurrency:    cfg.ImageWorkerPoolSize,
		PollInterval:   cfg.BatchPollInterval,
		LogInterval:    cfg.BatchLogInterval,
		ChapterTimeout: cfg.ChapterTimeout,
	})

	return &App{
		Config:       cfg,
		Jobs:         jobs,
		Glossary:     glossaryStore,
		Settings:     settingsStore,
		Cache:        cache,
		Publisher:    pub,
		Pipeline:     pl,
		Orchestrator: orchestrator,
		sqliteConn:   sqliteConn,
		pgPool:       pgPool,
	}, nil
}
