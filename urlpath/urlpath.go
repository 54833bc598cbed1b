package urlpath

import (
	"context"
	"net/http"
	"time"

	"github.com/ts4z/trz/he"
)

const maxIDLength = 64

// Penalty is how long a client that sends a malformed id waits for its
// answer.  Tests turn it down.
var Penalty = 2 * time.Second

// IDPathValue extracts the "id" path variable from the request and checks
// that it looks like one of our ids.
//
// On error, an error is reported to the client after a delay, in case the
// client is sending crap in a tight loop, and ok is false.
func IDPathValue(w http.ResponseWriter, r *http.Request) (id string, ok bool) {
	id, err := idPathValueFromRequest(r)
	if err != nil {
		pause(r.Context(), Penalty)
		he.SendErrorToHTTPClient(r.Context(), w, "parse URL", err)
		return "", false
	}
	return id, true
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func idPathValueFromRequest(r *http.Request) (string, error) {
	id := r.PathValue("id")
	if id == "" || len(id) > maxIDLength {
		return "", he.HTTPCodedErrorf(http.StatusBadRequest, "ID inválido.")
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return "", he.HTTPCodedErrorf(http.StatusBadRequest, "ID inválido.")
		}
	}
	return id, nil
}
