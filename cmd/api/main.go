package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"campuslibrary/internal/catalog"
	"campuslibrary/internal/circulation"
	"campuslibrary/internal/config"
	"campuslibrary/internal/logging"
	"campuslibrary/internal/membership"
	"campuslibrary/internal/server"
	"campuslibrary/internal/store/memory"
	"campuslibrary/internal/store/postgres"
	"campuslibrary/internal/store/redisstore"
	"campuslibrary/internal/telemetry"
)

// libraryStore is what every domain service needs from persistence.
type libraryStore interface {
	catalog.Store
	circulation.Store
	membership.UserStore
	server.Pinger
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("failed to read .env")
	}
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithField("service", "library-api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "library-api", cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}
	}()

	var store libraryStore
	if cfg.UsesMemoryStore() {
		log.Warn("using the in-memory store; data is lost on restart")
		store = memory.NewStore()
	} else {
		pg, err := postgres.Open(ctx, postgres.Options{
			Driver: cfg.DatabaseDriver,
			DSN:    cfg.DatabaseURL,
			Logger: log,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to database")
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("failed to migrate database")
		}
		store = pg
	}

	health := map[string]server.Pinger{"database": store}

	var sessions membership.SessionStore
	if cfg.RedisURL != "" {
		rs, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer rs.Close()
		sessions = rs
		health["sessions"] = rs
	} else {
		sessions = memory.NewSessions(nil)
	}

	accounts := membership.NewService(store, sessions, logger, membership.Options{
		SessionSecret:     []byte(cfg.SessionSecret),
		SessionTTL:        cfg.SessionTTL,
		AdminEmailDomain:  cfg.AdminEmailDomain,
		AuthRatePerMinute: cfg.AuthRatePerMinute,
	})
	books := catalog.NewService(store, logger)
	borrowing := circulation.NewService(store, store, store, logger, circulation.Options{
		Location:        cfg.Location,
		ReleaseOnDelete: cfg.ReleaseOnDelete,
	})

	router := server.NewRouter(server.Deps{
		Catalog:     books,
		Circulation: borrowing,
		Membership:  accounts,
		Logger:      logger,
		APIKey:      cfg.PublicAPIKey,
		Health:      health,
	})

	srv := server.New(cfg.HTTPPort, router, log, cfg.ShutdownGracePeriod)
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("server stopped with error")
		return
	}
	log.Info("server stopped")
}
