package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-emotisense/pkg/fallback"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/pipeline"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

var t0 = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

func newTestPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	gcfg := fallback.DefaultConfig()
	gcfg.Seed = 11
	gen, err := fallback.New(gcfg)
	require.NoError(t, err)
	eng, err := fusion.New(fusion.DefaultConfig())
	require.NoError(t, err)
	det, err := trigger.NewDetector(trigger.DefaultConfig())
	require.NoError(t, err)
	agg, err := session.New(session.DefaultConfig())
	require.NoError(t, err)

	cfg := pipeline.DefaultConfig()
	cfg.Mode = pipeline.ModeSimulation
	p, err := pipeline.New(cfg, pipeline.Components{
		Generator: gen, Fusion: eng, Detector: det, Session: agg,
	})
	require.NoError(t, err)
	_, err = p.Start(context.Background(), t0)
	require.NoError(t, err)
	return p
}

func do(t *testing.T, s *Server, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func TestAPI_StatusStatsRecords(t *testing.T) {
	p := newTestPipeline(t)
	for i := 0; i < 5; i++ {
		p.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
	}
	s := NewServer(p, nil)

	resp, body := do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st pipeline.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, pipeline.ModeSimulation, st.Mode)
	assert.Equal(t, 5, st.Ticks)

	resp, body = do(t, s, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 5, stats.Stats.Count)
	assert.NotEmpty(t, stats.Feedback)

	resp, body = do(t, s, http.MethodGet, "/api/records?limit=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []session.Record
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 3)
	assert.True(t, records[2].Timestamp.Equal(t0.Add(4*time.Second)))
}

func TestAPI_RecordsLimitValidation(t *testing.T) {
	s := NewServer(newTestPipeline(t), nil)
	for _, q := range []string{"0", "-1", "100000"} {
		resp, _ := do(t, s, http.MethodGet, "/api/records?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", q)
	}
}

func TestAPI_Capture(t *testing.T) {
	p := newTestPipeline(t)
	s := NewServer(p, nil)

	resp, body := do(t, s, http.MethodPost, "/api/capture", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var e trigger.Event
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, trigger.Auto, e.Type)

	resp, body = do(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []trigger.Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, trigger.Auto, events[0].Type)
}

func TestAPI_Scenario(t *testing.T) {
	p := newTestPipeline(t)
	s := NewServer(p, nil)

	resp, _ := do(t, s, http.MethodPost, "/api/scenario", `{"scenario":"stressed","pin":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := p.Tick(context.Background(), t0)
	assert.Equal(t, string(fallback.Stressed), res.Status.Scenario)

	resp, _ = do(t, s, http.MethodPost, "/api/scenario", `{"scenario":"bored"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReport(t *testing.T) {
	p := newTestPipeline(t)
	for i := 0; i < 3; i++ {
		p.Tick(context.Background(), t0.Add(time.Duration(i)*time.Second))
	}
	s := NewServer(p, nil)

	resp, body := do(t, s, http.MethodGet, "/report", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "Affective state")

	resp, body = do(t, s, http.MethodGet, "/report.csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,"))
}

func TestWS_RequiresUpgrade(t *testing.T) {
	s := NewServer(newTestPipeline(t), nil)
	resp, _ := do(t, s, http.MethodGet, "/ws/status", "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWS_StatusStream(t *testing.T) {
	p := newTestPipeline(t)
	s := NewServer(p, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-served
	}()

	url := "ws://" + ln.Addr().String() + "/ws/status"
	var conn *gorilla.Conn
	require.Eventually(t, func() bool {
		conn, _, err = gorilla.DefaultDialer.Dial(url, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type string          `json:"type"`
		Data pipeline.Status `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, pipeline.ModeSimulation, first.Data.Mode)

	require.Eventually(t, func() bool {
		status, _ := s.Clients()
		return status == 1
	}, time.Second, 5*time.Millisecond)
	p.Tick(context.Background(), t0)

	var tick struct {
		Type string              `json:"type"`
		Data pipeline.TickResult `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&tick))
	assert.Equal(t, "tick", tick.Type)
	assert.Equal(t, 1, tick.Data.Status.Ticks)
}
