package he

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// HTTPError probably represents the wrong abstraction.
type HTTPError struct {
	code int
	err  error
}

func HTTPCodedErrorf(code int, f string, more ...any) *HTTPError {
	return &HTTPError{
		code: code,
		err:  fmt.Errorf(f, more...),
	}
}

func New(code int, err error) *HTTPError {
	return &HTTPError{
		code: code,
		err:  err,
	}
}

func (e *HTTPError) Error() string {
	return e.err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.err
}

func (e *HTTPError) Code() int {
	return e.code
}

// CodeOf returns the status code carried by err, or 500.
func CodeOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.code
	}
	return http.StatusInternalServerError
}

// SendErrorToHTTPClient sends err as a JSON error body.  If it happens to
// be (or wrap) our HTTPError, the client gets its code; otherwise,
// client gets 500 and it's on us.
func SendErrorToHTTPClient(ctx context.Context, w http.ResponseWriter, while string, err error) {
	code := CodeOf(err)
	log := zerolog.Ctx(ctx)
	ev := log.Warn()
	if code >= 500 {
		ev = log.Error()
	}
	ev.Err(err).Int("status", code).Msgf("can't %s", while)
	WriteError(w, code, err.Error())
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{msg})
}
