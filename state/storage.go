// Package state manages persistence of reports and shared settings.
package state

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ts4z/trz/he"
	"github.com/ts4z/trz/model"
)

var ErrNotFound = he.New(http.StatusNotFound, errors.New("Relatório não encontrado."))

type Closer interface {
	Close()
}

// ReportStorage is storage's view of saved reports.
type ReportStorage interface {
	Closer

	UpsertReport(ctx context.Context, r *model.AnalysisRecord) error
	RemoveReport(ctx context.Context, id string) error
	FetchReport(ctx context.Context, id string) (*model.AnalysisRecord, error)
	// ListReports returns every report, newest first.
	ListReports(ctx context.Context) ([]*model.AnalysisRecord, error)
	RemoveReportsBefore(ctx context.Context, before time.Time) (int64, error)
	RemoveAllReports(ctx context.Context) (int64, error)
}

// SettingsStorage holds the one shared settings row.
type SettingsStorage interface {
	Closer

	// FetchSettings returns all-null settings at version 0 if nothing
	// was ever saved.
	FetchSettings(ctx context.Context) (*model.AppSettings, error)
	// SaveSettings applies patch to the stored settings, bumps the
	// version, and returns the result.
	SaveSettings(ctx context.Context, patch *model.SettingsPatch) (*model.AppSettings, error)
}
