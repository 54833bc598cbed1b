package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

type Clock interface {
	Now() time.Time
}

type requestIDKey struct{}

// RequestLogger tags each request with an ID, puts a logger carrying that
// ID in the request context, and writes an access log line when the
// handler returns.
type RequestLogger struct {
	next   http.Handler
	clock  Clock
	logger zerolog.Logger
}

func NewRequestLogger(next http.Handler, clock Clock, logger zerolog.Logger) *RequestLogger {
	return &RequestLogger{next: next, clock: clock, logger: logger}
}

func remoteAddr(r *http.Request) string {
	if r.Header.Get("X-Forwarded-For") != "" {
		return r.Header.Get("X-Forwarded-For")
	}
	return r.RemoteAddr
}

func (rl *RequestLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := rl.clock.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	logger := rl.logger.With().Str("request_id", id).Logger()
	ctx := context.WithValue(r.Context(), requestIDKey{}, id)
	ctx = logger.WithContext(ctx)

	ww := &codeWatcher{w: w}
	rl.next.ServeHTTP(ww, r.WithContext(ctx))

	code := ww.Code()
	ev := logger.Info()
	if code >= 500 {
		ev = logger.Error()
	} else if code >= 400 {
		ev = logger.Warn()
	}
	ev.Int("status", code).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", remoteAddr(r)).
		Int("bytes", ww.bytes).
		Dur("duration", rl.clock.Now().Sub(start)).
		Msg("request")
}

// RequestID returns the ID RequestLogger gave the request, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
