package he

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
)

func TestSendErrorToHTTPClient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"coded", HTTPCodedErrorf(400, "Corpo inválido."), 400, "Corpo inválido."},
		{"wrapped coded", fmt.Errorf("imagem 2: %w", New(502, errors.New("bad"))), 502, "imagem 2: bad"},
		{"plain", errors.New("boom"), 500, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendErrorToHTTPClient(context.Background(), w, "test", tt.err)
			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Errorf("content type = %q", ct)
			}
			var body struct{ Error string }
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}
