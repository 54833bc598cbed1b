package fakes

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/state"
)

// ReportStorage keeps reports in memory.  Records are cloned on the way in
// and out, as a database would.
type ReportStorage struct {
	mu      sync.Mutex
	reports map[string]*model.AnalysisRecord
	Upserts int
}

var _ state.ReportStorage = (*ReportStorage)(nil)

func NewReportStorage(records ...*model.AnalysisRecord) *ReportStorage {
	s := &ReportStorage{reports: map[string]*model.AnalysisRecord{}}
	for _, r := range records {
		s.reports[r.ID] = r.Clone()
	}
	return s
}

func (s *ReportStorage) Close() {}

func (s *ReportStorage) UpsertReport(ctx context.Context, r *model.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r.Clone()
	s.Upserts++
	return nil
}

func (s *ReportStorage) RemoveReport(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return state.ErrNotFound
	}
	delete(s.reports, id)
	return nil
}

func (s *ReportStorage) FetchReport(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, state.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *ReportStorage) ListReports(ctx context.Context) ([]*model.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.AnalysisRecord, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b *model.AnalysisRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *ReportStorage) RemoveReportsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.reports {
		if r.CreatedAt.Before(before) {
			delete(s.reports, id)
			n++
		}
	}
	return n, nil
}

func (s *ReportStorage) RemoveAllReports(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.reports))
	clear(s.reports)
	return n, nil
}

// Len is the number of stored reports.
func (s *ReportStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}
