package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/api"
	"github.com/meikuraledutech/flow/badgerstore"
	"github.com/meikuraledutech/flow/config"
	"github.com/meikuraledutech/flow/engine"
	"github.com/meikuraledutech/flow/local"
	"github.com/meikuraledutech/flow/logging"
	"github.com/meikuraledutech/flow/media"
	"github.com/meikuraledutech/flow/memory"
	"github.com/meikuraledutech/flow/postgres"
	"github.com/meikuraledutech/flow/task"
	"github.com/meikuraledutech/flow/trigger"
)

// store is what every driver provides.
type store interface {
	flow.GraphStore
	flow.Recorder
}

func main() {
	configPath := flag.String("config", os.Getenv("FLOW_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, pg, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	e := engine.NewWithBackend(backend, cfg.Poll, st, engine.WithLogger(logger))
	h := api.NewHandler(e, st, st, backend, logger)
	app := api.NewApp(h, fiber.Config{
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		BodyLimit:    cfg.HTTP.BodyLimit,
	})
	if pg != nil {
		schemaRoutes(app, pg)
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver, "backend", cfg.Backend.Driver)
		errc <- app.Listen(cfg.HTTP.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store, *postgres.PGStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
		return pg, pg, pg.Close, nil
	case "badger":
		b, err := badgerstore.Open(cfg.BadgerDir, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return b, nil, func() {
			if err := b.Close(); err != nil {
				logger.Error("close badger", "error", err)
			}
		}, nil
	}
	logger.Warn("using the in-memory store, history is lost on restart")
	return memory.New(), nil, func() {}, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (task.Backend, func(), error) {
	if cfg.Backend.Driver == "trigger" {
		c := trigger.New(cfg.Backend.Trigger.SecretKey,
			trigger.WithBaseURL(cfg.Backend.Trigger.BaseURL),
			trigger.WithLogger(logger),
		)
		return c, func() {}, nil
	}

	b := local.New(cfg.Local, logger)
	fetcher := media.NewFetcher(nil)
	tasks := &media.Tasks{
		Fetcher: fetcher,
		FFmpeg:  media.FFmpeg{Binary: cfg.FFmpeg.Binary},
		TempDir: cfg.FFmpeg.TempDir,
		Logger:  logger,
	}
	if cfg.Gemini.APIKey != "" {
		g, err := media.NewGemini(ctx, cfg.Gemini.APIKey)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		tasks.LLM = media.NewLLM(g, fetcher,
			media.WithFallbackModels(cfg.Gemini.FallbackModels...),
			media.WithRateLimitWait(cfg.Gemini.RateLimitWait),
			media.WithLLMLogger(logger),
		)
	} else {
		logger.Warn("GEMINI_API_KEY is not set, LLM nodes will fail")
	}
	if cfg.MinIO.Endpoint != "" {
		m, err := media.NewMinIO(cfg.MinIO)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		tasks.Uploader = m
	} else {
		logger.Warn("minio.endpoint is not set, media nodes will fail")
	}
	tasks.Register(b)

	return b, func() {
		if err := b.Close(); err != nil {
			logger.Error("close local backend", "error", err)
		}
	}, nil
}

// schemaRoutes exposes the Postgres schema for operators.
func schemaRoutes(app *fiber.App, pg *postgres.PGStore) {
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := pg.CreateSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := pg.DropSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})
}
