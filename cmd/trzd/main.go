// Command trzd serves the tournament API.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ts4z/trz/analysis"
	"github.com/ts4z/trz/config"
	"github.com/ts4z/trz/dbcache"
	"github.com/ts4z/trz/dbnotify"
	"github.com/ts4z/trz/dbutil"
	"github.com/ts4z/trz/defaults"
	"github.com/ts4z/trz/extract"
	"github.com/ts4z/trz/logging"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/settings"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/webapp"
)

func main() {
	config.Init()
	logger := logging.Setup(config.LogLevel(), config.LogFormat())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("trzd exited")
	}
	logger.Info().Msg("trzd stopped")
}

func newGenerator(ctx context.Context, log zerolog.Logger) extract.Generator {
	gen, err := extract.NewGeminiGenerator(ctx, config.GeminiAPIKey(), config.GeminiModel())
	if errors.Is(err, extract.ErrNoAPIKey) {
		log.Warn().Msg("no inference API key; extraction endpoints will fail")
		return extract.Unconfigured{}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("can't configure inference")
	}
	return gen
}

func run(ctx context.Context, log zerolog.Logger) error {
	clock := clockwork.NewRealClock()
	loc := config.Location()
	policy := config.PrizePolicy()

	db, dialect, err := dbutil.Connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := state.Bootstrap(ctx, db, dialect); err != nil {
		return err
	}

	dbStorage := state.NewDBStorage(db, dialect)
	reportStorage := dbcache.NewReportStorage(config.ReportCacheSize(), dbStorage)
	settingsStorage := dbcache.NewSettingsStorage(dbStorage, clock, config.SettingsTTL())

	reports := state.NewReportStore(reportStorage, loc)
	resolvedDefaults := defaults.Settings()
	svc := settings.NewService(settingsStorage, resolvedDefaults)
	if err := svc.Hydrate(ctx); err != nil {
		return err
	}

	calls, window := config.RateLimit()
	client := extract.NewClient(&extract.Config{
		Generator: newGenerator(ctx, log),
		Limiter:   extract.NewLimiter(calls, window),
		Clock:     clock,
		TextDelay: config.OCRDelay(),
		Money:     config.MoneyPolicy(),
	})
	analyzer := analysis.New(&analysis.Config{
		Settings:  svc,
		Extractor: client,
		Store:     reports,
		Policy:    policy,
		Clock:     clock,
		Location:  loc,
		Delay:     config.InterCallDelay(),
	})

	app := webapp.New(&webapp.Config{
		Extractor:      client,
		Analyzer:       analyzer,
		Reports:        reports,
		Settings:       svc,
		Money:          config.MoneyPolicy(),
		AutoProfitRate: policy.AutoProfitRate,
		Clock:          clock,
		Location:       loc,
		Logger:         log,
		AllowedOrigins: config.AllowedOrigins(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(ctx, config.ListenAddress())
	})

	if dialect.Notifies() {
		listener, err := dbnotify.NewDBNotifyListener(db,
			dbnotify.NewChangeDispatcher[*model.AnalysisRecord]("reports", nil, reportStorage, nil),
			dbnotify.NewChangeDispatcher[*model.AppSettings]("settings", svc, settingsStorage, settingsStorage),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return listener.Run(ctx)
		})
	} else {
		log.Info().Str("dialect", string(dialect)).Msg("no change notifications; settings refresh on TTL")
	}

	return g.Wait()
}
