package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ancile/internal/analysis"
	"ancile/internal/config"
	"ancile/internal/domain"
	"ancile/internal/infrastructure/cms"
	"ancile/internal/infrastructure/ingest"
	"ancile/internal/infrastructure/llm"
	"ancile/internal/infrastructure/scheduler"
	"ancile/internal/infrastructure/social"
	"ancile/internal/infrastructure/storage"
	"ancile/internal/logging"
	"ancile/internal/ports"
	"ancile/internal/relevance"
	"ancile/internal/source"
	"ancile/internal/usecase"
)

// Application wires configuration to adapters, use cases and the run
// lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	pipeline *usecase.Pipeline
}

// New builds a fully wired application or fails with the first
// misconfiguration it hits. Nothing external is contacted here except
// the database ping.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := storage.New(db, baseLogger.With("component", "storage"))
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	adapters := []source.Adapter{
		ingest.NewRSSAdapter(categoryFeeds(cfg.Sources.Feeds), nil, baseLogger.With("component", "ingest.rss")),
		ingest.NewNewsAPIAdapter(cfg.Sources.NewsAPI.BaseURL, cfg.Sources.NewsAPI.APIKey, cfg.Sources.NewsAPI.PageSize, nil, baseLogger.With("component", "ingest.newsapi")),
		ingest.NewPortalAdapter(portals(cfg.Sources.Portals), nil, baseLogger.With("component", "ingest.portal")),
	}
	src := source.NewMulti(baseLogger.With("component", "source"), adapters...)

	filter := relevance.NewFilter(categoryKeywords(cfg.Keywords), cfg.Pipeline.MinRelevanceScore, baseLogger.With("component", "relevance"))

	generator := llm.NewGeminiClient(cfg.Gemini)
	analyzer := analysis.NewAnalyzer(generator, cfg.Gemini.SystemPrompt, cfg.Gemini.MaxTokens, cfg.Gemini.Temperature, baseLogger.With("component", "analysis"))

	cmsSink := cms.NewClient(cfg.Strapi.URL, cfg.Strapi.APIToken, baseLogger.With("component", "cms"))

	var socialSink ports.SocialSink
	if cfg.Social.Enabled {
		socialSink, err = social.NewSink(cfg.Social, baseLogger.With("component", "social"))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("configure social sink: %w", err)
		}
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:   src,
		Filter:   filter,
		Analyzer: analyzer,
		Store:    store,
		Dedup:    store,
		Queue:    store,
		CMS:      cmsSink,
		Social:   socialSink,
		Logger:   baseLogger.With("component", "pipeline"),
	}, usecase.Settings{
		Lookback:      cfg.Pipeline.Lookback(),
		MaxArticles:   cfg.Pipeline.MaxArticlesPerRun,
		MinWords:      cfg.Pipeline.ArticleMinWords,
		SocialEnabled: cfg.Social.Enabled && socialSink != nil,
		SocialImage:   cfg.Social.DefaultImage,
	})

	return &Application{cfg: cfg, logger: baseLogger, db: db, pipeline: pipeline}, nil
}

// Run executes a single pipeline pass.
func (a *Application) Run(ctx context.Context, opts usecase.Options) error {
	summary, err := a.pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}
	a.logger.Info("pipeline finished",
		"fetched", summary.Fetched,
		"processed", summary.Processed,
		"skipped", summary.Skipped)
	return nil
}

// Serve runs the pipeline on the configured cron schedule until the
// process receives an interrupt.
func (a *Application) Serve(ctx context.Context, opts usecase.Options) error {
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
	sched := usecase.NewScheduler(driver, a.pipeline, opts)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "timezone", a.cfg.Scheduler.Timezone)

	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-notifyCtx.Done()

	a.logger.Info("shutting down")
	return sched.Stop(context.Background())
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func categoryFeeds(feeds map[string][]string) map[domain.Category][]string {
	out := make(map[domain.Category][]string, len(feeds))
	for name, urls := range feeds {
		category, err := domain.ParseCategory(name)
		if err != nil {
			continue
		}
		out[category] = urls
	}
	return out
}

func categoryKeywords(keywords map[string][]string) map[domain.Category][]string {
	out := make(map[domain.Category][]string, len(keywords))
	for name, words := range keywords {
		category, err := domain.ParseCategory(name)
		if err != nil {
			continue
		}
		out[category] = words
	}
	return out
}

func portals(configured []config.PortalConfig) []ingest.Portal {
	out := make([]ingest.Portal, 0, len(configured))
	for _, p := range configured {
		category, err := domain.ParseCategory(p.Category)
		if err != nil {
			category = domain.CategoryGeopolitics
		}
		out = append(out, ingest.Portal{Name: p.Name, URL: p.URL, Category: category})
	}
	return out
}
