package webapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/ts4z/trz/analysis"
	"github.com/ts4z/trz/defaults"
	"github.com/ts4z/trz/extract"
	"github.com/ts4z/trz/fakes"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/paytable"
	"github.com/ts4z/trz/protocol"
	"github.com/ts4z/trz/settings"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/urlpath"
)

type fixture struct {
	app      *App
	gen      *fakes.ScriptedGenerator
	storage  *fakes.ReportStorage
	settings *settings.Service
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T, gen extract.Generator) *fixture {
	t.Helper()
	urlpath.Penalty = 0
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 22, 0, 0, 0, time.UTC))
	svc := settings.NewService(fakes.NewSettingsStorage(), defaults.Settings())
	if err := svc.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	storage := fakes.NewReportStorage()
	store := state.NewReportStore(storage, time.UTC)
	client := extract.NewClient(&extract.Config{Generator: gen, Clock: clock})
	analyzer := analysis.New(&analysis.Config{
		Settings:  svc,
		Extractor: client,
		Store:     store,
		Policy:    paytable.DefaultPolicy(),
		Clock:     clock,
		Location:  time.UTC,
	})
	app := New(&Config{
		Extractor:      client,
		Analyzer:       analyzer,
		Reports:        store,
		Settings:       svc,
		AutoProfitRate: defaults.AutoProfitRate,
		Clock:          clock,
		Location:       time.UTC,
		Logger:         zerolog.Nop(),
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	f := &fixture{app: app, storage: storage, settings: svc, clock: clock}
	if sg, ok := gen.(*fakes.ScriptedGenerator); ok {
		f.gen = sg
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.app.Handler().ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not json: %v", rec.Body.String(), err)
	}
	return body.Error
}

const image = `{"data":"aGVsbG8=","mimeType":"image/png"}`

func TestAnalyzeImage(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator(fakes.Reply{
		Text: `[{"playerNames":["Ana","Bia"],"kills":3,"placement":1},{"playerNames":["x"]}]`,
	}))
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"image":`+image+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	var got []model.MatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].PlayerNames[1] != "Bia" || *got[0].Kills != 3 {
		t.Errorf("got %+v", got)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("no request id")
	}
}

func TestAnalyzeImageErrors(t *testing.T) {
	tests := []struct {
		name     string
		gen      extract.Generator
		method   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"wrong method", fakes.NewScriptedGenerator(), http.MethodGet, "", http.StatusMethodNotAllowed, "Method Not Allowed"},
		{"not json", fakes.NewScriptedGenerator(), http.MethodPost, "{", http.StatusBadRequest, usageAnalyze},
		{"no image", fakes.NewScriptedGenerator(), http.MethodPost, `{}`, http.StatusBadRequest, usageAnalyze},
		{"image without type", fakes.NewScriptedGenerator(), http.MethodPost, `{"image":{"data":"x"}}`, http.StatusBadRequest, usageAnalyze},
		{"model rambles", fakes.NewScriptedGenerator(fakes.Reply{Text: "desculpe"}), http.MethodPost, `{"image":` + image + `}`, http.StatusBadGateway, "Resposta inválida do modelo."},
		{"no key", extract.Unconfigured{}, http.MethodPost, `{"image":` + image + `}`, http.StatusInternalServerError, "GEMINI_API_KEY não configurada no servidor."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.gen)
			rec := f.do(t, tt.method, "/api/analyze", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if got := errorOf(t, rec); got != tt.wantErr {
				t.Errorf("error = %q, want %q", got, tt.wantErr)
			}
			if tt.wantCode == http.StatusMethodNotAllowed && rec.Header().Get("Allow") != "POST" {
				t.Errorf("Allow = %q, want POST", rec.Header().Get("Allow"))
			}
		})
	}
}

func TestOCR(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator(
		fakes.Reply{Text: `["Ana", " "]`},
		fakes.Reply{Text: `["Bia"]`},
	))
	rec := f.do(t, http.MethodPost, "/api/ocr", `{"images":[`+image+`,`+image+`]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	var got ocrResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Formatted != "Ana e Bia" || len(got.Texts) != 2 {
		t.Errorf("got %+v", got)
	}

	rec = f.do(t, http.MethodPost, "/api/ocr", `{"images":[]}`)
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != usageOCR {
		t.Errorf("empty images: %d %s", rec.Code, rec.Body)
	}
	rec = f.do(t, http.MethodPost, "/api/ocr", `{"images":[{"data":"x"}]}`)
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != extract.ErrInvalidImage.Error() {
		t.Errorf("bad image: %d %s", rec.Code, rec.Body)
	}
}

func TestCalculate(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator(fakes.Reply{Text: `[6.5, 0.5, -1, 20000]`}))
	rec := f.do(t, http.MethodPost, "/api/calculate", `{"text":"6,50 e 0,50"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"values":[6.5,0.5],"total":7}` {
		t.Errorf("body = %s", got)
	}

	rec = f.do(t, http.MethodPost, "/api/calculate", `{"text":42}`)
	if rec.Code != http.StatusBadRequest || errorOf(t, rec) != usageCalculate {
		t.Errorf("non-string text: %d %s", rec.Code, rec.Body)
	}
}

func TestCalculateLocal(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	rec := f.do(t, http.MethodPost, "/api/calculate/local", `{"text":"R$ 6,50\n0,50\nCPF 153.364.624-46"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"values":[6.5,0.5],"total":7}` {
		t.Errorf("body = %s", got)
	}
	if f.gen.Calls() != 0 {
		t.Errorf("local calculation called the model")
	}
}

func TestReportLifecycle(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator(fakes.Reply{
		Text: `[{"playerNames":["Ana"],"kills":4,"placement":1},{"playerNames":["Bia"],"kills":2,"placement":2}]`,
	}))

	rec := f.do(t, http.MethodPost, "/api/analysis", `{"images":[`+image+`],"slotsSold":24,"tournament":"Copa"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("analysis code = %d: %s", rec.Code, rec.Body)
	}
	var created model.AnalysisRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.TournamentLabel() != "Copa" || len(created.Entries) != 2 {
		t.Fatalf("created %+v", created)
	}

	rec = f.do(t, http.MethodGet, "/api/reports?tournament=Copa", "")
	var listed []*model.AnalysisRecord
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if rec.Code != http.StatusOK || len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPatch, "/api/reports/"+created.ID, `{"tournament":"Liga"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body)
	}
	rec = f.do(t, http.MethodGet, "/api/reports/"+created.ID, "")
	var fetched model.AnalysisRecord
	json.Unmarshal(rec.Body.Bytes(), &fetched)
	if fetched.TournamentLabel() != "Liga" {
		t.Errorf("label after patch = %q", fetched.TournamentLabel())
	}

	rec = f.do(t, http.MethodGet, "/api/dashboard", "")
	var dash struct {
		Summary struct {
			Matches        int     `json:"matches"`
			Kills          int     `json:"kills"`
			TotalCollected float64 `json:"totalCollected"`
		} `json:"summary"`
		Tournaments []string `json:"tournaments"`
	}
	json.Unmarshal(rec.Body.Bytes(), &dash)
	if dash.Summary.Matches != 1 || dash.Summary.Kills != 6 || dash.Summary.TotalCollected != 120 {
		t.Errorf("dashboard = %s", rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/reports/backup", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Disposition"), "relatorios-2025-05-01.json") {
		t.Errorf("backup: %d %v", rec.Code, rec.Header())
	}

	rec = f.do(t, http.MethodDelete, "/api/reports/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/reports/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", rec.Code)
	}
	rec = f.do(t, http.MethodPatch, "/api/reports/"+created.ID, `{"tournament":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("patch after delete: %d", rec.Code)
	}
	rec = f.do(t, http.MethodDelete, "/api/reports/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("second delete: %d", rec.Code)
	}
}

func TestAnalysisFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator(
		fakes.Reply{Text: `[]`},
		fakes.Reply{Text: `nope`},
	))
	rec := f.do(t, http.MethodPost, "/api/analysis", `{"images":[`+image+`,`+image+`]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	if got := errorOf(t, rec); got != "imagem 2: Resposta inválida do modelo." {
		t.Errorf("error = %q", got)
	}
	if f.storage.Len() != 0 {
		t.Errorf("%d reports saved after failure", f.storage.Len())
	}
}

func TestClearReports(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	f.storage.UpsertReport(context.Background(), &model.AnalysisRecord{ID: "a", CreatedAt: f.clock.Now()})
	f.storage.UpsertReport(context.Background(), &model.AnalysisRecord{ID: "b", CreatedAt: f.clock.Now()})
	rec := f.do(t, http.MethodDelete, "/api/reports", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"removed":2}` {
		t.Errorf("clear: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPut, "/api/reports", ""); rec.Header().Get("Allow") != "DELETE, GET" {
		t.Errorf("Allow = %q", rec.Header().Get("Allow"))
	}
}

func TestBadFilters(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	rec := f.do(t, http.MethodGet, "/api/dashboard?dateFrom=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestPrizePreview(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	rec := f.do(t, http.MethodPost, "/api/prizes/preview", `{"slotsSold":24}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		PrizePool float64 `json:"prizePool"`
		Effective struct {
			PlacementPrizes map[string]float64 `json:"placementPrizes"`
		} `json:"effective"`
	}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.PrizePool != 96 || got.Effective.PlacementPrizes["1"] != 25 {
		t.Errorf("preview = %s", rec.Body)
	}
}

func decodeSettings(t *testing.T, rec *httptest.ResponseRecorder) settingsResponse {
	t.Helper()
	var got settingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return got
}

func TestSettings(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())

	rec := f.do(t, http.MethodGet, "/api/settings", "")
	got := decodeSettings(t, rec)
	if got.Settings.EntryFee != nil || !got.Resolved.EntryFee.Equal(defaults.EntryFee) {
		t.Errorf("initial settings = %s", rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/settings", `{"entryFee":10,"adjustmentMode":"fixed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	got = decodeSettings(t, rec)
	if got.Settings.Version != 1 || got.Resolved.EntryFee.String() != "10" || got.Resolved.AdjustmentMode != model.AdjustmentFixed {
		t.Errorf("saved = %s", rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/settings", `{"entryFee":null}`)
	got = decodeSettings(t, rec)
	if got.Settings.EntryFee != nil || got.Settings.AdjustmentMode == nil {
		t.Errorf("null should clear only entryFee: %s", rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/settings?refresh=1", "")
	if got := decodeSettings(t, rec); got.Settings.Version != 2 {
		t.Errorf("refreshed = %s", rec.Body)
	}
}

func TestSettingsRejects(t *testing.T) {
	tests := []string{
		`{}`,
		`{"adjustmentMode":"sometimes"}`,
		`{"entryFee":-1}`,
		`{"prizeRules":{"placementPrizes":{"0":5},"killPrize":1}}`,
		`{"prizeRules":{"placementPrizes":{"1":-5},"killPrize":1}}`,
	}
	for _, body := range tests {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t, fakes.NewScriptedGenerator())
			if rec := f.do(t, http.MethodPost, "/api/settings", body); rec.Code != http.StatusBadRequest {
				t.Errorf("code = %d: %s", rec.Code, rec.Body)
			}
		})
	}
}

func listenBody(version int64, proto int) string {
	b, _ := json.Marshal(map[string]any{"version": version, "protocolVersion": proto})
	return string(b)
}

func TestSettingsListenStaleClient(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	rec := f.do(t, http.MethodPost, "/api/settings/listen", listenBody(0, protocol.Version-1))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	if got := decodeSettings(t, rec); got.ProtocolVersion != protocol.Version {
		t.Errorf("protocol = %d", got.ProtocolVersion)
	}
}

func startListen(t *testing.T, f *fixture) <-chan *httptest.ResponseRecorder {
	t.Helper()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/settings/listen", bytes.NewBufferString(listenBody(0, protocol.Version)))
		f.app.Handler().ServeHTTP(rec, req)
		done <- rec
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("listener never started waiting: %v", err)
	}
	return done
}

func TestSettingsListenNotified(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	done := startListen(t, f)

	if rec := f.do(t, http.MethodPost, "/api/settings", `{"fixedProfit":30}`); rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	select {
	case rec := <-done:
		got := decodeSettings(t, rec)
		if got.Settings.Version != 1 || got.Resolved.FixedProfit.String() != "30" {
			t.Errorf("listener got %s", rec.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener never answered")
	}
}

func TestSettingsListenTimeout(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	done := startListen(t, f)
	f.clock.Advance(time.Hour)
	select {
	case rec := <-done:
		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("code = %d", rec.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener never timed out")
	}
}

func TestMisc(t *testing.T) {
	f := newFixture(t, fakes.NewScriptedGenerator())
	if rec := f.do(t, http.MethodGet, "/robots.txt", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "User-agent") {
		t.Errorf("robots: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/debug/vars", ""); !strings.Contains(rec.Body.String(), "listenNotifiedClient") {
		t.Errorf("vars missing counters")
	}
	if rec := f.do(t, http.MethodGet, "/varz", ""); !strings.Contains(rec.Body.String(), `"webapp.listenNotifiedClient"`) {
		t.Errorf("varz: %s", rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound || errorOf(t, rec) != "Not Found" {
		t.Errorf("unknown path: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodGet, "/api/reports/bad.id", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", rec.Code)
	}
}
