// Package api is the HTTP surface used by the workflow editor.
package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/meikuraledutech/flow"
	"github.com/meikuraledutech/flow/engine"
	"github.com/meikuraledutech/flow/internal/xjson"
	"github.com/meikuraledutech/flow/task"
)

// Handler serves workflows, runs and task status.
type Handler struct {
	engine   *engine.Engine
	graphs   flow.GraphStore
	recorder flow.Recorder
	backend  task.Backend
	logger   *slog.Logger
}

// NewHandler wires the handler. backend takes the standalone media jobs and
// answers GET /tasks/:id.
func NewHandler(e *engine.Engine, graphs flow.GraphStore, recorder flow.Recorder, backend task.Backend, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{engine: e, graphs: graphs, recorder: recorder, backend: backend, logger: logger}
}

// NewApp returns a fiber app with JSON through goccy/go-json and every route
// registered.
func NewApp(h *Handler, cfg fiber.Config) *fiber.App {
	cfg.JSONEncoder = xjson.Marshal
	cfg.JSONDecoder = xjson.Unmarshal
	app := fiber.New(cfg)
	app.Use(recoverer.New())
	app.Use(h.accessLog)
	h.Routes(app)
	return app
}

// Routes registers the endpoints on r.
func (h *Handler) Routes(r fiber.Router) {
	r.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// ── Workflows ─────────────────────────────────────────────────────
	r.Put("/workflows/:id", h.saveWorkflow)
	r.Get("/workflows/:id", h.getWorkflow)
	r.Delete("/workflows/:id", h.deleteWorkflow)

	// ── Runs ──────────────────────────────────────────────────────────
	r.Post("/workflows/:id/run", h.runWorkflow)
	r.Get("/workflows/:id/runs", h.getHistory)
	r.Delete("/workflows/:id/runs", h.clearHistory)

	// ── Tasks ─────────────────────────────────────────────────────────
	r.Post("/tasks/crop-image", h.cropImage)
	r.Post("/tasks/extract-frame", h.extractFrame)
	r.Post("/uploads", h.upload)
	r.Get("/tasks/:id", h.getTask)
}

func (h *Handler) accessLog(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	h.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

func fail(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
