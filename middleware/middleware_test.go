package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClock()
	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		clock.Advance(3 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})
	h := NewRequestLogger(next, clock, zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seenID != "abc" || rec.Header().Get(RequestIDHeader) != "abc" {
		t.Errorf("request id = %q, header = %q", seenID, rec.Header().Get(RequestIDHeader))
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines: %q", len(lines), buf.String())
	}
	var inner, access map[string]any
	json.Unmarshal([]byte(lines[0]), &inner)
	json.Unmarshal([]byte(lines[1]), &access)
	if inner["request_id"] != "abc" {
		t.Errorf("handler log = %v", inner)
	}
	if access["status"] != float64(418) || access["bytes"] != float64(15) || access["level"] != "warn" {
		t.Errorf("access log = %v", access)
	}
}

func TestRequestLoggerMakesID(t *testing.T) {
	h := NewRequestLogger(http.NotFoundHandler(), clockwork.NewFakeClock(), zerolog.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("request id = %q, want a uuid", rec.Header().Get(RequestIDHeader))
	}
}

func TestCodeWatcherDefaultsToOK(t *testing.T) {
	cw := &codeWatcher{w: httptest.NewRecorder()}
	cw.Write([]byte("x"))
	cw.WriteHeader(http.StatusInternalServerError)
	if cw.Code() != http.StatusOK {
		t.Errorf("code = %d, want 200", cw.Code())
	}
}

func TestCacheHeaderAdder(t *testing.T) {
	tests := []struct {
		name string
		cfg  CacheHeaderAdderConfig
		want string
	}{
		{"no store", CacheHeaderAdderConfig{NoStore: true, MaxAge: time.Hour}, "no-store"},
		{"public", CacheHeaderAdderConfig{MaxAge: 24 * time.Hour}, "public, max-age=86400"},
		{"private immutable", CacheHeaderAdderConfig{CachePrivate: true, MaxAge: time.Minute, Immutable: true}, "private, max-age=60, immutable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Next = http.NotFoundHandler()
			rec := httptest.NewRecorder()
			NewCacheHeaderAdder(&cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if got := rec.Header().Get("Cache-Control"); got != tt.want {
				t.Errorf("Cache-Control = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheHeaderAdderMaybe(t *testing.T) {
	h := NewCacheHeaderAdder(&CacheHeaderAdderConfig{
		Next:    http.NotFoundHandler(),
		NoStore: true,
		Maybe:   func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/api/") },
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
	if rec.Header().Get("Cache-Control") != "" {
		t.Errorf("header set on a path Maybe rejected")
	}
}
