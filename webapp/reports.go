package webapp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ts4z/trz/he"
	"github.com/ts4z/trz/kpi"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/urlpath"
)

func filtersFromQuery(r *http.Request) (model.ReportFilters, error) {
	q := r.URL.Query()
	f := model.ReportFilters{
		DateFrom:   q.Get("dateFrom"),
		DateTo:     q.Get("dateTo"),
		Tournament: q.Get("tournament"),
		PlayerName: q.Get("playerName"),
	}
	for _, d := range []string{f.DateFrom, f.DateTo} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return f, he.HTTPCodedErrorf(http.StatusBadRequest, "Data inválida: %q. Use AAAA-MM-DD.", d)
		}
	}
	return f, nil
}

func (app *App) handleListReports(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		sendError(ctx, w, "parse filters", err)
		return
	}
	all, err := app.reports.GetAll(ctx)
	if err != nil {
		sendError(ctx, w, "list reports", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, kpi.Filter(all, f))
}

func (app *App) handleClearReports(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	n, err := app.reports.Clear(ctx)
	if err != nil {
		sendError(ctx, w, "clear reports", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]int64{"removed": n})
}

func (app *App) handleBackupReports(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("relatorios-%s.json", app.clock.Now().In(app.loc).Format(time.DateOnly))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := app.reports.Backup(ctx, w); err != nil {
		// Backup fails before writing anything.
		w.Header().Del("Content-Disposition")
		sendError(ctx, w, "back up reports", err)
	}
}

func (app *App) handleGetReport(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, ok := urlpath.IDPathValue(w, r)
	if !ok {
		return
	}
	record, err := app.reports.Fetch(ctx, id)
	if err != nil {
		sendError(ctx, w, "fetch report", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, record)
}

func (app *App) handlePatchReport(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, ok := urlpath.IDPathValue(w, r)
	if !ok {
		return
	}
	var patch model.ReportPatch
	if !decodeBody(w, r, &patch, `Corpo inválido. Envie { tournament: "..." }`) {
		return
	}
	record, err := app.reports.Update(ctx, id, &patch)
	if err != nil {
		sendError(ctx, w, "update report", err)
		return
	}
	if record == nil {
		sendError(ctx, w, "update report", state.ErrNotFound)
		return
	}
	writeJSON(ctx, w, http.StatusOK, record)
}

func (app *App) handleDeleteReport(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	id, ok := urlpath.IDPathValue(w, r)
	if !ok {
		return
	}
	if err := app.reports.Remove(ctx, id); err != nil {
		sendError(ctx, w, "delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) handleDashboard(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		sendError(ctx, w, "parse filters", err)
		return
	}
	all, err := app.reports.GetAll(ctx)
	if err != nil {
		sendError(ctx, w, "list reports", err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, kpi.Build(all, f, app.autoProfitRate))
}
