package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aaafuria/furia-feed/internal/clock"
	"github.com/aaafuria/furia-feed/internal/health"
	"github.com/aaafuria/furia-feed/internal/reltime"
)

var bootTime = time.Date(2026, 10, 19, 17, 5, 0, 0, time.UTC)

// newHandler returns a handler whose clock reads *now on every call.
func newHandler(t *testing.T, now *time.Time, checkers ...health.Checker) *health.Handler {
	t.Helper()
	clk := clock.Func(func() time.Time { return *now })
	ages, err := reltime.New(clk, reltime.Extended())
	if err != nil {
		t.Fatalf("reltime.New: %v", err)
	}
	return health.NewHandler(clk, ages, checkers...)
}

func get(t *testing.T, hf http.HandlerFunc, path string) (int, health.Status) {
	t.Helper()
	rec := httptest.NewRecorder()
	hf.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var s health.Status
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	return rec.Code, s
}

func TestLivenessHandler(t *testing.T) {
	now := bootTime
	h := newHandler(t, &now)

	code, s := get(t, h.LivenessHandler(), "/healthz")
	if code != http.StatusOK {
		t.Fatalf("got status %d, want %d", code, http.StatusOK)
	}
	if s.Status != "ok" {
		t.Errorf("got status %q, want %q", s.Status, "ok")
	}
	if s.Timestamp != "2026-10-19T17:05:00Z" {
		t.Errorf("got timestamp %q", s.Timestamp)
	}
}

func TestLivenessHandler_Started(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{name: "just booted", elapsed: 0, want: "iniciado agora há pouco"},
		{name: "minutes", elapsed: 12 * time.Minute, want: "iniciado há 12 minutos"},
		{name: "hours", elapsed: 3 * time.Hour, want: "iniciado há 3 horas"},
		{name: "yesterday", elapsed: 30 * time.Hour, want: "iniciado ontem"},
		{name: "days", elapsed: 72 * time.Hour, want: "iniciado 19/10/2026, 14:05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := bootTime
			h := newHandler(t, &now)
			now = bootTime.Add(tt.elapsed)

			_, s := get(t, h.LivenessHandler(), "/healthz")
			if s.Started != tt.want {
				t.Errorf("got started %q, want %q", s.Started, tt.want)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		checkers   []health.Checker
		wantCode   int
		wantStatus string
		wantCheck  string
	}{
		{
			name:       "not ready",
			ready:      false,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "ready no checkers",
			ready:      true,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "ready all checks pass",
			ready: true,
			checkers: []health.Checker{
				{Name: "db", Check: func(ctx context.Context) error { return nil }},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
			wantCheck:  "ok",
		},
		{
			name:  "ready but check fails",
			ready: true,
			checkers: []health.Checker{
				{Name: "db", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
			wantCheck:  "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := bootTime
			h := newHandler(t, &now, tt.checkers...)
			h.SetReady(tt.ready)

			code, s := get(t, h.ReadinessHandler(), "/readyz")
			if code != tt.wantCode {
				t.Errorf("got status %d, want %d", code, tt.wantCode)
			}
			if s.Status != tt.wantStatus {
				t.Errorf("got status %q, want %q", s.Status, tt.wantStatus)
			}
			if tt.wantCheck != "" && s.Checks["db"] != tt.wantCheck {
				t.Errorf("got db check %q, want %q", s.Checks["db"], tt.wantCheck)
			}
		})
	}
}
