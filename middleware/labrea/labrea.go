// Package labrea provides a middleware that provides a tarpit.
//
// Scanners probing for well-known admin paths get a slow, dribbled 404
// instead of a quick one.
package labrea

import (
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ts4z/trz/varz"
)

var trapped = varz.NewInt("tarpitTrapped")

// maxTracked caps the per-address counters.
const maxTracked = 1000

type Handler struct {
	clock clockwork.Clock
	next  http.Handler
	paths map[string]struct{}

	mu      sync.Mutex
	ipCount map[string]int
}

var _ http.Handler = &Handler{}

var defaultPaths = []string{
	".env",
	".git",
	".htaccess",
	".htpasswd",
	"admin",
	"blog/wp-admin",
	"blog/wp-login.php",
	"config.php",
	"dbadmin",
	"install.php",
	"myadmin",
	"phpmyadmin",
	"pma",
	"server-status",
	"setup.php",
	"sqladmin",
	"wp-admin",
	"wp-admin/setup-config.php",
	"wp-login.php",
	"xmlrpc.php",
}

func New(clock clockwork.Clock, next http.Handler) *Handler {
	paths := make(map[string]struct{}, len(defaultPaths))
	for _, p := range defaultPaths {
		paths[p] = struct{}{}
	}
	return &Handler{
		clock:   clock,
		next:    next,
		paths:   paths,
		ipCount: map[string]int{},
	}
}

func (h *Handler) countIP(ip string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ipCount[ip]++
	if len(h.ipCount) > maxTracked {
		h.ipCount = map[string]int{ip: 1}
	}
	return h.ipCount[ip]
}

var payload = []byte(`<!DOCTYPE HTML PUBLIC "-//IETF//DTD HTML 2.0//EN">
<html><head>
<title>404 Not Found</title>
</head><body>
<h1>Not Found</h1>
<p>The requested URL was not found on this server.</p>
</body></html>
`)

// Mishandle answers slowly, waiting longer for repeat offenders.
func (h *Handler) Mishandle(w http.ResponseWriter, r *http.Request) {
	seen := h.countIP(r.RemoteAddr)
	trapped.Add(1)
	zerolog.Ctx(r.Context()).Info().Str("path", r.URL.Path).Int("seen", seen).Msg("tarpit")

	minimum := time.Duration(11*seen) * time.Millisecond
	if !h.sleep(r, randomDelay(minimum, 3*time.Second)) {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Server", "Apache")
	w.WriteHeader(http.StatusNotFound)

	rc := http.NewResponseController(w)
	for pos := 0; pos < len(payload); {
		amt := min(10+rand.IntN(10), len(payload)-pos)
		w.Write(payload[pos : pos+amt])
		pos += amt
		rc.Flush()
		if !h.sleep(r, randomDelay(100*time.Millisecond, 300*time.Millisecond)) {
			return
		}
	}
}

// sleep waits d, or less if the client gives up.  It reports whether the
// client is still there.
func (h *Handler) sleep(r *http.Request, d time.Duration) bool {
	select {
	case <-h.clock.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

// randomDelay returns a random duration between lo and hi.  If lo has
// grown past hi, hi wins.
func randomDelay(lo, hi time.Duration) time.Duration {
	if lo >= hi {
		return hi
	}
	return lo + rand.N(hi-lo)
}

// last2 reduces a path to its last two segments.
func last2(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return path
	}
	first := max(0, len(parts)-2)
	return strings.Join(parts[first:], "/")
}

func (h *Handler) trap(path string) bool {
	if _, ok := h.paths[last2(path)]; ok {
		return true
	}
	// A lone trap word in the last segment, like /foo/wp-login.php.
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	_, ok := h.paths[parts[len(parts)-1]]
	return ok
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.trap(r.URL.Path) {
		h.Mishandle(w, r)
		return
	}
	h.next.ServeHTTP(w, r)
}
