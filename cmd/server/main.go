package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/cache"
	"github.com/oggyb/muzz-matching/internal/config"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/httpapi"
	"github.com/oggyb/muzz-matching/internal/logger"
	"github.com/oggyb/muzz-matching/internal/notify"
	"github.com/oggyb/muzz-matching/internal/server"
	"github.com/oggyb/muzz-matching/internal/service/chat"
	"github.com/oggyb/muzz-matching/internal/service/explore"
	"github.com/oggyb/muzz-matching/internal/service/safety"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = os.Stderr.WriteString("failed to read .env: " + err.Error() + "\n")
	}
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	var sink notify.Sink = notify.LogSink{Logger: log}
	if cfg.NATS.URL != "" {
		nc, err := notify.ConnectNATS(cfg.NATS.URL, "muzz-matching")
		if err != nil {
			log.Error("failed to connect to nats", "url", cfg.NATS.URL, "err", err)
			os.Exit(1)
		}
		defer nc.Drain()
		sink = notify.Multi{sink, notify.NewNATSSink(nc, cfg.NATS.SubjectPrefix)}
	}

	appCtx := app.New(cfg, database, redisCache, log, app.WithNotifier(sink))

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database, db.DefaultSeedOptions()); err != nil {
			log.Error("failed to seed", "err", err)
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registrars := []server.Registrar{
		explore.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
		safety.NewRegistrar(appCtx),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.StartGRPCServer(ctx, cfg, server.NewGRPCServer(log, registrars...))
	})
	g.Go(func() error {
		log.Info("starting HTTP server", "addr", cfg.HTTP.Host+":"+cfg.HTTP.Port)
		return httpapi.Start(ctx, cfg, httpapi.NewRouter(appCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
