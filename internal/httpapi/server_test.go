package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/whittle/internal/db"
)

func newTestServer() *Server {
	return NewServer(nil, &db.SeenStore{}, &db.HistoryStore{}, zerolog.Nop(), Options{})
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	e := newTestServer().buildEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Service string `json:"service"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" || resp.Data.Service != "whittle" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	t.Parallel()

	e := newTestServer().buildEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=0", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Validation failed") {
		t.Fatalf("expected validation envelope: %s", rec.Body.String())
	}
}

func TestHandleOpportunities_InvalidWindow(t *testing.T) {
	t.Parallel()

	e := newTestServer().buildEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities?window=lately", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHistory_StoreUnavailable(t *testing.T) {
	t.Parallel()

	server := NewServer(nil, &db.SeenStore{}, nil, zerolog.Nop(), Options{})
	e := server.buildEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestToExecutionItem(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	record := db.ExecutionRecord{
		ExecutionRecordID: 7,
		StartedAt:         started,
		FinishedAt:        started.Add(95 * time.Second),
		PostsSeen:         120,
		PostsEmitted:      15,
		Errors:            json.RawMessage(`["collect reddit: rate limited"]`),
	}

	item := toExecutionItem(record)
	if item.DurationMS != 95000 {
		t.Fatalf("unexpected duration: %d", item.DurationMS)
	}
	if len(item.Errors) != 1 || item.Errors[0] != "collect reddit: rate limited" {
		t.Fatalf("unexpected errors: %+v", item.Errors)
	}
}

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	if got, err := parsePositiveInt("", 25, 1, 200); err != nil || got != 25 {
		t.Fatalf("empty input must fall back: %d, %v", got, err)
	}
	if got, err := parsePositiveInt("40", 25, 1, 200); err != nil || got != 40 {
		t.Fatalf("valid input rejected: %d, %v", got, err)
	}
	if _, err := parsePositiveInt("201", 25, 1, 200); err == nil {
		t.Fatal("out-of-range input must fail")
	}
	if _, err := parsePositiveInt("many", 25, 1, 200); err == nil {
		t.Fatal("non-numeric input must fail")
	}
}
