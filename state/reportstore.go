package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ts4z/trz/dep"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/textutil"
)

// Labels that older clients generated automatically.  These are replaced
// with a label derived from the report's own timestamp.
var generatedLabelREs = []*regexp.Regexp{
	regexp.MustCompile(`^DIÁRIO-`),
	regexp.MustCompile(`^DATA \+ HORÁRIO\b`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}[, ]\s*\d{2}:\d{2}$`),
}

func generatedLabel(label *string) bool {
	if label == nil || *label == "" {
		return true
	}
	for _, re := range generatedLabelREs {
		if re.MatchString(*label) {
			return true
		}
	}
	return false
}

// NormalizeLabel returns the label to show for a report: the stored one,
// unless it is missing or machine-generated, in which case the creation
// time in loc.
func NormalizeLabel(label *string, createdAt time.Time, loc *time.Location) string {
	if generatedLabel(label) {
		return textutil.FormatDateTimeBR(createdAt, loc)
	}
	return *label
}

// ReportStore is the report collection as the application sees it.
type ReportStore struct {
	storage ReportStorage
	loc     *time.Location
}

func NewReportStore(storage ReportStorage, loc *time.Location) *ReportStore {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportStore{storage: dep.Required(storage), loc: loc}
}

func (s *ReportStore) normalize(r *model.AnalysisRecord) *model.AnalysisRecord {
	if !generatedLabel(r.Tournament) {
		return r
	}
	c := r.Clone()
	label := NormalizeLabel(r.Tournament, r.CreatedAt, s.loc)
	c.Tournament = &label
	return c
}

// GetAll returns every report, newest first, with labels normalized.
// Stored rows are not rewritten.
func (s *ReportStore) GetAll(ctx context.Context) ([]*model.AnalysisRecord, error) {
	all, err := s.storage.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.AnalysisRecord, len(all))
	for i, r := range all {
		out[i] = s.normalize(r)
	}
	return out, nil
}

func (s *ReportStore) Fetch(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	r, err := s.storage.FetchReport(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.normalize(r), nil
}

// Add saves a report, replacing any report with the same id.
func (s *ReportStore) Add(ctx context.Context, r *model.AnalysisRecord) error {
	return s.storage.UpsertReport(ctx, r)
}

// Update applies patch to report id.  A missing report is not an error;
// nil is returned.
func (s *ReportStore) Update(ctx context.Context, id string, patch *model.ReportPatch) (*model.AnalysisRecord, error) {
	current, err := s.storage.FetchReport(ctx, id)
	if errors.Is(err, ErrNotFound) {
		zerolog.Ctx(ctx).Debug().Str("report", id).Msg("update of missing report ignored")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	patch.Apply(current)
	if err := s.storage.UpsertReport(ctx, current); err != nil {
		return nil, err
	}
	return s.normalize(current), nil
}

// Remove deletes report id.  Removing a missing report is a no-op.
func (s *ReportStore) Remove(ctx context.Context, id string) error {
	if err := s.storage.RemoveReport(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Clear deletes every report and returns how many there were.
func (s *ReportStore) Clear(ctx context.Context) (int64, error) {
	n, err := s.storage.RemoveAllReports(ctx)
	if err != nil {
		return 0, err
	}
	zerolog.Ctx(ctx).Info().Int64("removed", n).Msg("reports cleared")
	return n, nil
}

// PurgeBefore deletes reports created before t.
func (s *ReportStore) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	n, err := s.storage.RemoveReportsBefore(ctx, t)
	if err != nil {
		return 0, err
	}
	zerolog.Ctx(ctx).Info().Int64("removed", n).Time("before", t).Msg("reports purged")
	return n, nil
}

// Backup writes every report to w as an indented JSON array, exactly as
// stored.
func (s *ReportStore) Backup(ctx context.Context, w io.Writer) error {
	all, err := s.storage.ListReports(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(all)
}

// Restore reads a Backup and upserts each report in it.  Reports already
// present are overwritten.
func (s *ReportStore) Restore(ctx context.Context, r io.Reader) (int, error) {
	var records []*model.AnalysisRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, fmt.Errorf("can't read backup: %w", err)
	}
	n := 0
	for _, rec := range records {
		if rec == nil || strings.TrimSpace(rec.ID) == "" {
			continue
		}
		if err := s.storage.UpsertReport(ctx, rec); err != nil {
			return n, fmt.Errorf("restore %s: %w", rec.ID, err)
		}
		n++
	}
	return n, nil
}
