package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

type stubTool struct {
	name string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.name + " tool" }

func (s *stubTool) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (s *stubTool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	return tool.Ok(map[string]interface{}{})
}

func newTestHandler(t *testing.T) (*TaskHandler, *echo.Echo) {
	t.Helper()
	registry, err := tool.NewRegistry(&stubTool{name: "weather"}, &stubTool{name: "news"})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	e := echo.New()
	h := &TaskHandler{Registry: registry}
	h.Register(e.Group("/api"))
	return h, e
}

func TestRunTask_RejectsEmptyTask(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/task", strings.NewReader(`{"task": "   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunTask_RejectsInvalidBody(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/task", strings.NewReader(`{not json`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListTools(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(body.Tools))
	}
	if body.Tools[0].Name != "weather" || body.Tools[1].Name != "news" {
		t.Fatalf("tools must keep registration order, got %#v", body.Tools)
	}
}

func TestStats_EmptyTelemetry(t *testing.T) {
	_, e := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["total_cost_usd"] != float64(0) {
		t.Fatalf("expected zero cost, got %v", body["total_cost_usd"])
	}
}
