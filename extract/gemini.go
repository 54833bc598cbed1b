package extract

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// Request is one prompt, with optional images, and the schema the
// response must follow.
type Request struct {
	Prompt string
	Images []Image
	Schema *genai.Schema
}

// Generator produces the raw JSON text for a request.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// Unconfigured stands in for a generator when no API key was given.
type Unconfigured struct{}

func (Unconfigured) Generate(context.Context, *Request) (string, error) {
	return "", ErrNoAPIKey
}

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

var _ Generator = (*GeminiGenerator)(nil)

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: &retryAfterRecorder{next: http.DefaultTransport}},
	})
	if err != nil {
		return nil, fmt.Errorf("can't create inference client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		data, err := img.Bytes()
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromBytes(data, img.MimeType))
	}

	hint := &retryHint{}
	ctx = context.WithValue(ctx, retryHintKey{}, hint)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   req.Schema,
		})
	if err != nil {
		return "", normalizeError(err, hint.get())
	}
	return strings.TrimSpace(resp.Text()), nil
}

type retryHintKey struct{}

// retryHint carries a Retry-After header from the transport back up to
// the caller, which only gets an error from the SDK.
type retryHint struct {
	mu sync.Mutex
	d  time.Duration
}

func (h *retryHint) set(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.d = d
}

func (h *retryHint) get() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.d
}

type retryAfterRecorder struct {
	next http.RoundTripper
}

func (rt *retryAfterRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if hint, ok := req.Context().Value(retryHintKey{}).(*retryHint); ok {
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			hint.set(d)
		}
	}
	return resp, nil
}

// parseRetryAfter handles the delay-seconds form only.
func parseRetryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
