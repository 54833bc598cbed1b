package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CacheHeaderAdder wraps an http.Handler and sets Cache-Control on its
// responses.
type CacheHeaderAdder struct {
	maybe func(r *http.Request) bool
	next  http.Handler
	value string
}

// CacheHeaderAdderConfig configures the caching behavior.
type CacheHeaderAdderConfig struct {
	// Add cache headers, but only if this returns true.
	Maybe func(r *http.Request) bool

	// Next is the handler to wrap.
	Next http.Handler

	// MaxAge is how long the content may be cached.
	MaxAge time.Duration

	// Immutable indicates that the content will never change.
	Immutable bool

	// CachePrivate keeps the content out of shared caches.
	CachePrivate bool

	// NoStore forbids caching outright.  The other fields are ignored.
	NoStore bool
}

func NewCacheHeaderAdder(config *CacheHeaderAdderConfig) *CacheHeaderAdder {
	return &CacheHeaderAdder{
		maybe: config.Maybe,
		next:  config.Next,
		value: config.headerValue(),
	}
}

func (c *CacheHeaderAdderConfig) headerValue() string {
	if c.NoStore {
		return "no-store"
	}
	parts := []string{"public"}
	if c.CachePrivate {
		parts[0] = "private"
	}
	if secs := int(c.MaxAge.Seconds()); secs > 0 {
		parts = append(parts, fmt.Sprintf("max-age=%d", secs))
	}
	if c.Immutable {
		parts = append(parts, "immutable")
	}
	return strings.Join(parts, ", ")
}

func (ch *CacheHeaderAdder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ch.maybe == nil || ch.maybe(r) {
		w.Header().Set("Cache-Control", ch.value)
	}
	ch.next.ServeHTTP(w, r)
}
