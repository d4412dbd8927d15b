package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"campuslibrary/internal/chaos"
	"campuslibrary/internal/clients"
	"campuslibrary/internal/config"
	"campuslibrary/internal/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("failed to read .env")
	}
	cfg, err := config.LoadChaos()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := clients.New(cfg.Endpoint, clients.WithAPIKey(cfg.APIKey))
	if err := api.Health(ctx); err != nil {
		logger.WithError(err).Fatal("library api is not healthy")
	}

	target, err := chaos.Prepare(ctx, api, cfg.AdminEmail, cfg.AdminPassword, cfg.Concurrency)
	if err != nil {
		logger.WithError(err).Fatal("failed to prepare chaos target")
	}

	engine := chaos.NewEngine(logger)
	engine.RegisterExperiments(target, cfg.Observe)

	_, held := engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:      "Borrowing Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
		Pause:     2 * time.Second,
	})
	if !held {
		logger.Error("at least one hypothesis was violated")
		os.Exit(1)
	}
	logger.Info("all hypotheses held")
}
