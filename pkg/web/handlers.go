package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/hub"
	"github.com/teslashibe/go-emotisense/pkg/report"
	"github.com/teslashibe/go-emotisense/pkg/session"
)

const (
	defaultRecordLimit = 60
	maxRecordLimit     = 3600
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.backend.Status())
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Stats    session.Stats `json:"stats"`
	Feedback []string      `json:"feedback"`
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	st := s.backend.Stats()
	return c.JSON(StatsResponse{
		Stats:    st,
		Feedback: session.Feedback(st),
	})
}

func (s *Server) handleRecords(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultRecordLimit)
	if limit <= 0 || limit > maxRecordLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("limit must be between 1 and %d", maxRecordLimit),
		})
	}
	return c.JSON(s.backend.Recent(limit))
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.backend.Events())
}

func (s *Server) handleCapture(c *fiber.Ctx) error {
	e := s.backend.Capture(c.UserContext(), time.Now())
	return c.Status(fiber.StatusCreated).JSON(e)
}

// ScenarioRequest is the body of POST /api/scenario.
type ScenarioRequest struct {
	Scenario string `json:"scenario"`
	Pin      bool   `json:"pin"`
}

func (s *Server) handleScenario(c *fiber.Ctx) error {
	var req ScenarioRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	sc, err := fallback.ParseScenario(req.Scenario)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.backend.SetScenario(sc, req.Pin)
	return c.JSON(fiber.Map{"scenario": sc, "pin": req.Pin})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	snap := s.backend.Snapshot()
	var buf bytes.Buffer
	err := report.Render(&buf, report.Input{
		SessionID: snap.Status.SessionID,
		Records:   snap.Records,
		Stats:     snap.Stats,
		Events:    snap.Events,
		Feedback:  session.Feedback(snap.Stats),
	})
	if err != nil {
		s.logger.Error("report render failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

func (s *Server) handleReportCSV(c *fiber.Ctx) error {
	snap := s.backend.Snapshot()
	var buf bytes.Buffer
	if err := session.WriteCSV(&buf, snap.Records); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="session-%s.csv"`, snap.Status.SessionID))
	return c.Send(buf.Bytes())
}

// handleStatusWS streams every tick, starting with the current status.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	initial, err := json.Marshal(Envelope{Type: "status", Data: s.backend.Status()})
	if err != nil {
		s.logger.Error("encode status", "error", err)
		return
	}
	if client := hub.NewClient(s.statusHub, conn, hub.NewJSONMessage(initial)); client != nil {
		client.Run()
	}
}

// handleEventsWS streams trigger events as they fire.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	if client := hub.NewClient(s.eventHub, conn); client != nil {
		client.Run()
	}
}
