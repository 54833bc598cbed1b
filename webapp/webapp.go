// Package webapp is the JSON API the single-page client talks to.
package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ts4z/trz/analysis"
	"github.com/ts4z/trz/dep"
	"github.com/ts4z/trz/extract"
	"github.com/ts4z/trz/he"
	"github.com/ts4z/trz/middleware"
	"github.com/ts4z/trz/middleware/labrea"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/settings"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/textutil"
	"github.com/ts4z/trz/varz"
)

// maxBodyBytes bounds request bodies.  Screenshots arrive base64 encoded.
const maxBodyBytes = 32 << 20

// Extractor is the inference side of the API.
type Extractor interface {
	ExtractMatches(ctx context.Context, img extract.Image) ([]model.MatchResult, error)
	ExtractText(ctx context.Context, images []extract.Image) ([]string, error)
	SumValues(ctx context.Context, text string) (*model.MoneyResult, error)
}

// Config holds the configuration for creating a new App.
type Config struct {
	Extractor Extractor
	Analyzer  *analysis.Analyzer
	Reports   *state.ReportStore
	Settings  *settings.Service
	Money     textutil.MoneyPolicy
	// AutoProfitRate is the organizer cut used for dashboard targets.
	AutoProfitRate decimal.Decimal
	Clock          clockwork.Clock
	Location       *time.Location
	Logger         zerolog.Logger
	AllowedOrigins []string
	// ListenTimeout bounds a settings long-poll.  Zero means an hour.
	ListenTimeout time.Duration
}

// App is the web application.
type App struct {
	extractor      Extractor
	analyzer       *analysis.Analyzer
	reports        *state.ReportStore
	settings       *settings.Service
	money          textutil.MoneyPolicy
	autoProfitRate decimal.Decimal
	clock          clockwork.Clock
	loc            *time.Location
	listenTimeout  time.Duration

	mux     *http.ServeMux
	handler http.Handler
}

// New creates a new App with the given configuration.
func New(config *Config) *App {
	app := &App{
		extractor:      dep.Required(config.Extractor),
		analyzer:       dep.Required(config.Analyzer),
		reports:        dep.Required(config.Reports),
		settings:       dep.Required(config.Settings),
		money:          config.Money,
		autoProfitRate: config.AutoProfitRate,
		clock:          dep.Required(config.Clock),
		loc:            config.Location,
		listenTimeout:  config.ListenTimeout,
		mux:            http.NewServeMux(),
	}
	if app.loc == nil {
		app.loc = time.UTC
	}
	if app.listenTimeout <= 0 {
		app.listenTimeout = time.Hour
	}
	if app.money.Max.IsZero() {
		app.money = textutil.DefaultMoneyPolicy
	}

	// Stack the handlers together.
	noStore := middleware.NewCacheHeaderAdder(&middleware.CacheHeaderAdderConfig{
		Next:    app.mux,
		NoStore: true,
		Maybe:   func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/api/") },
	})
	logger := middleware.NewRequestLogger(noStore, app.clock, config.Logger)
	tarpit := labrea.New(app.clock, logger)
	corsMW := cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
	})
	app.handler = corsMW.Handler(tarpit)

	app.InstallHandlers()
	return app
}

// Handler returns the configured HTTP handler.
func (app *App) Handler() http.Handler {
	return app.handler
}

type handlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request)

// route registers pattern with one handler per method.  Anything else gets
// a JSON 405 naming the allowed methods.
func (app *App) route(pattern string, byMethod map[string]handlerFunc) {
	allowed := make([]string, 0, len(byMethod))
	for m := range byMethod {
		allowed = append(allowed, m)
	}
	slices.Sort(allowed)
	allow := strings.Join(allowed, ", ")

	app.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		h, ok := byMethod[r.Method]
		if !ok && r.Method == http.MethodHead {
			h, ok = byMethod[http.MethodGet]
		}
		if !ok {
			w.Header().Set("Allow", allow)
			he.WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		h(r.Context(), w, r)
	})
}

func (app *App) post(pattern string, h handlerFunc) {
	app.route(pattern, map[string]handlerFunc{http.MethodPost: h})
}

func (app *App) get(pattern string, h handlerFunc) {
	app.route(pattern, map[string]handlerFunc{http.MethodGet: h})
}

// decodeBody reads a JSON body into v.  Any failure is reported to the
// client as a 400 carrying usage, and false is returned.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, usage string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("can't decode body")
		he.WriteError(w, http.StatusBadRequest, usage)
		return false
	}
	return true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("can't encode response")
	}
}

// sendError maps the errors the lower layers share onto status codes and
// sends them.
func sendError(ctx context.Context, w http.ResponseWriter, while string, err error) {
	var coded *he.HTTPError
	switch {
	case errors.As(err, &coded):
	case errors.Is(err, extract.ErrInvalidResponse):
		err = he.New(http.StatusBadGateway, err)
	case errors.Is(err, extract.ErrInvalidImage):
		err = he.New(http.StatusBadRequest, err)
	case errors.Is(err, extract.ErrNoAPIKey):
		err = he.New(http.StatusInternalServerError, err)
	case errors.Is(err, settings.ErrNotHydrated):
		err = he.New(http.StatusServiceUnavailable, err)
	}
	he.SendErrorToHTTPClient(ctx, w, while, err)
}

func badRequest(msg string) error {
	return he.New(http.StatusBadRequest, errors.New(msg))
}

// Nothing here is for crawlers.
func handleRobotsTXT(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "User-agent: *\r\nDisallow: /\r\n")
}

// InstallHandlers registers all HTTP routes.
func (app *App) InstallHandlers() {
	app.mux.HandleFunc("/robots.txt", handleRobotsTXT)
	app.mux.Handle("/debug/vars", expvar.Handler())
	app.mux.Handle("/varz", varz.Handler("github.com/ts4z/trz/"))

	app.post("/api/analyze", app.handleAnalyze)
	app.post("/api/ocr", app.handleOCR)
	app.post("/api/calculate", app.handleCalculate)
	app.post("/api/calculate/local", app.handleCalculateLocal)
	app.post("/api/analysis", app.handleAnalysis)
	app.post("/api/prizes/preview", app.handlePrizePreview)

	app.route("/api/reports", map[string]handlerFunc{
		http.MethodGet:    app.handleListReports,
		http.MethodDelete: app.handleClearReports,
	})
	app.get("/api/reports/backup", app.handleBackupReports)
	app.route("/api/reports/{id}", map[string]handlerFunc{
		http.MethodGet:    app.handleGetReport,
		http.MethodPatch:  app.handlePatchReport,
		http.MethodDelete: app.handleDeleteReport,
	})
	app.get("/api/dashboard", app.handleDashboard)

	app.route("/api/settings", map[string]handlerFunc{
		http.MethodGet:  app.handleGetSettings,
		http.MethodPost: app.handleSaveSettings,
	})
	app.post("/api/settings/listen", app.handleSettingsListen)

	app.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		he.WriteError(w, http.StatusNotFound, "Not Found")
	})
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func (app *App) Serve(ctx context.Context, listenAddress string) error {
	server := &http.Server{
		Addr:              listenAddress,
		Handler:           app.handler,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      app.listenTimeout + time.Minute,
		IdleTimeout:       12 * time.Hour,
	}

	errCh := make(chan error, 1)
	go func() {
		zerolog.Ctx(ctx).Info().Str("addr", listenAddress).Msg("http server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server exited: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
