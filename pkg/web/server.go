// Package web serves the local session dashboard: REST endpoints over the
// running pipeline, an echarts report page and websocket streams of ticks
// and trigger events.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/hub"
	"github.com/teslashibe/go-emotisense/pkg/pipeline"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

// Backend is the session the dashboard shows. *pipeline.Pipeline
// implements it.
type Backend interface {
	Status() pipeline.Status
	Stats() session.Stats
	Recent(n int) []session.Record
	Events() []trigger.Event
	Snapshot() pipeline.Snapshot
	Capture(ctx context.Context, now time.Time) trigger.Event
	SetScenario(s fallback.Scenario, pin bool)
	OnTick(fn func(pipeline.TickResult))
	OnTrigger(fn func(trigger.Event))
}

// Envelope is the websocket frame format.
type Envelope struct {
	Type string `json:"type"` // status, tick, trigger
	Data any    `json:"data"`
}

// Server is the dashboard HTTP server.
type Server struct {
	app     *fiber.App
	backend Backend
	logger  *slog.Logger

	statusHub *hub.Hub
	eventHub  *hub.Hub
}

// NewServer wires the routes and subscribes to backend ticks and events.
func NewServer(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend:   backend,
		logger:    logger.With("component", "web"),
		statusHub: hub.New("status", logger),
		eventHub:  hub.New("events", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "emotisense",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/report", s.handleReport)
	app.Get("/report.csv", s.handleReportCSV)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/records", s.handleRecords)
	api.Get("/events", s.handleEvents)
	api.Post("/capture", s.handleCapture)
	api.Post("/scenario", s.handleScenario)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	backend.OnTick(func(res pipeline.TickResult) {
		s.statusHub.BroadcastJSON(Envelope{Type: "tick", Data: res})
	})
	backend.OnTrigger(func(e trigger.Event) {
		s.eventHub.BroadcastJSON(Envelope{Type: "trigger", Data: e})
	})

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve runs the hubs and serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.eventHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	}
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Clients returns the connected websocket clients per stream.
func (s *Server) Clients() (status, events int) {
	return s.statusHub.ClientCount(), s.eventHub.ClientCount()
}
