package main

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"dents-inspector/api/internal/config"
	"dents-inspector/api/internal/damage"
	"dents-inspector/api/internal/inspect"
	"dents-inspector/api/internal/metrics"
	"dents-inspector/api/internal/plds"
	"dents-inspector/api/internal/prompt"
	"dents-inspector/api/internal/store"
	"dents-inspector/api/internal/vision"
	"dents-inspector/api/internal/vision/gemini"
	"dents-inspector/api/internal/vision/gpt"
)

// app is the wired object graph used by the commands.
type app struct {
	db         *sql.DB
	taxonomy   *store.TaxonomyRepo
	codec      *plds.Codec
	builder    *prompt.Builder
	engines    *vision.Engines
	inspector  *inspect.Inspector
	translator *damage.Translator
	metrics    *metrics.Metrics
}

func (c *cli) openDB(ctx context.Context) (*sql.DB, error) {
	db, err := store.Open(ctx, c.cfg.DatabaseDriver, c.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	c.log.Info("db connected",
		zap.String("driver", c.cfg.DatabaseDriver),
		zap.String("dsn", store.SafeDSNSummary(c.cfg.DatabaseURL)))
	return db, nil
}

func (c *cli) openApp(ctx context.Context) (*app, error) {
	db, err := c.openDB(ctx)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	tax := store.NewTaxonomyRepo(db)
	codec := plds.NewCodec(store.NewPLDSRepo(db), tax, c.log.Named("plds"))
	builder := prompt.NewBuilder(tax)
	return &app{
		db:       db,
		taxonomy: tax,
		codec:    codec,
		builder:  builder,
		engines:  buildEngines(c.cfg, c.log),
		inspector: inspect.New(builder,
			inspect.WithLogger(c.log.Named("inspect")),
			inspect.WithWorkspace(c.cfg.WorkspaceDir),
			inspect.WithMaxExtractBytes(c.cfg.MaxArchiveBytes),
			inspect.WithObserver(m),
		),
		translator: damage.NewTranslator(codec, c.log.Named("translate")),
		metrics:    m,
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// buildEngines creates a backend per configured API key. When the default
// engine has no key the first configured one becomes the default.
func buildEngines(cfg *config.Config, log *zap.Logger) *vision.Engines {
	e := &vision.Engines{Default: cfg.DefaultEngine}
	if cfg.GeminiAPIKey != "" {
		e.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel,
			gemini.WithTimeout(cfg.BackendTimeout),
			gemini.WithRetries(cfg.MaxRetries),
			gemini.WithUploadConcurrency(cfg.UploadConcurrency),
			gemini.WithLogger(log.Named("gemini")),
		)
	}
	if cfg.OpenAIAPIKey != "" {
		e.OpenAI = gpt.New(cfg.OpenAIAPIKey, cfg.OpenAIModel,
			gpt.WithBaseURL(cfg.OpenAIBaseURL),
			gpt.WithTimeout(cfg.BackendTimeout),
			gpt.WithRetries(cfg.MaxRetries),
			gpt.WithLogger(log.Named("gpt")),
		)
	}
	if _, err := e.Get(""); err != nil {
		if names := e.Names(); len(names) > 0 {
			log.Warn("default engine not configured, falling back",
				zap.String("default", cfg.DefaultEngine), zap.String("using", names[0]))
			e.Default = names[0]
		}
	}
	return e
}
