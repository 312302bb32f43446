package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"ancile/internal/app"
	"ancile/internal/config"
	"ancile/internal/logging"
	"ancile/internal/usecase"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "run the pipeline without queueing or publishing")
	maxArticles := flag.Int("max-articles", 0, "override the per-run article limit")
	serve := flag.Bool("serve", false, "keep running on the configured cron schedule")
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	if *configPath != "" {
		_ = os.Setenv("ANCILE_CONFIG", *configPath)
	}

	ctx := context.Background()
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	opts := usecase.Options{DryRun: *dryRun, MaxArticles: *maxArticles}

	if *serve {
		err = application.Serve(ctx, opts)
	} else {
		err = application.Run(ctx, opts)
	}
	if err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
