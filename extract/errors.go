package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrInvalidResponse means the model answered with something other
	// than the JSON shape that was asked for.
	ErrInvalidResponse = errors.New("Resposta inválida do modelo.")

	// ErrNoAPIKey means the server has no inference credentials.
	ErrNoAPIKey = errors.New("GEMINI_API_KEY não configurada no servidor.")

	// ErrInvalidImage means an image is missing its data or MIME type.
	ErrInvalidImage = errors.New("Cada imagem deve ter data e mimeType.")
)

// UpstreamError is a failed call to the inference service.
type UpstreamError struct {
	Status  int    // HTTP status, 0 if unknown
	Code    string // e.g. RESOURCE_EXHAUSTED
	Message string

	// RetryAfter is the server's suggested wait, 0 if it didn't say.
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream %d: %s", e.Status, e.Message)
}

// normalizeError turns SDK errors into *UpstreamError.  headerDelay is a
// Retry-After value seen on the response, and wins over anything in the
// error body.
func normalizeError(err error, headerDelay time.Duration) error {
	var apiErr genai.APIError
	var apiErrp *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrp):
		apiErr = *apiErrp
	default:
		return err
	}

	ue := &UpstreamError{
		Status:     apiErr.Code,
		Code:       apiErr.Status,
		Message:    apiErr.Message,
		RetryAfter: headerDelay,
	}
	if ue.RetryAfter == 0 {
		ue.RetryAfter = retryInfoDelay(apiErr.Details)
	}
	return ue
}

// retryInfoDelay finds a google.rpc.RetryInfo detail and reads its delay.
func retryInfoDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		typ, _ := d["@type"].(string)
		if !strings.Contains(typ, "google.rpc.RetryInfo") {
			continue
		}
		raw, ok := d["retryDelay"].(string)
		if !ok {
			raw, ok = d["retry_delay"].(string)
		}
		if !ok {
			continue
		}
		if dur, ok := parseDelay(raw); ok {
			return dur
		}
	}
	return 0
}

// parseDelay accepts "30s", "1.5s" or a bare number of seconds.
func parseDelay(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, d >= 0
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
