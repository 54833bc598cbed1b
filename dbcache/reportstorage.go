package dbcache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/varz"
)

var (
	reportStorageCacheHits          = varz.NewInt("reportStorageCacheHits")
	reportStorageCacheMisses        = varz.NewInt("reportStorageCacheMisses")
	reportStorageCacheInvalidations = varz.NewInt("reportStorageCacheInvalidations")
)

// ReportStorage is a read-through cache over single-report fetches.
// Lists always go to the database.
type ReportStorage struct {
	cache *lru.Cache[string, *model.AnalysisRecord]
	next  state.ReportStorage
}

var _ state.ReportStorage = (*ReportStorage)(nil)

func NewReportStorage(size int, next state.ReportStorage) *ReportStorage {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, *model.AnalysisRecord](size)
	if err != nil {
		log.Fatal().Err(err).Msg("can't create report cache")
	}
	return &ReportStorage{
		cache: cache,
		next:  next,
	}
}

func (s *ReportStorage) Close() {
	s.next.Close()
}

// Fetch makes this suitable as a dbnotify fetcher.
func (s *ReportStorage) Fetch(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	return s.FetchReport(ctx, id)
}

// CacheInvalidate drops id.  Reports carry no version in the model, so
// any change notification evicts.
func (s *ReportStorage) CacheInvalidate(_ context.Context, id string, _ int64) {
	if s.cache.Remove(id) {
		reportStorageCacheInvalidations.Add(1)
	}
}

func (s *ReportStorage) FetchReport(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	if r, ok := s.cache.Get(id); ok {
		reportStorageCacheHits.Add(1)
		return r.Clone(), nil
	}
	reportStorageCacheMisses.Add(1)
	r, err := s.next.FetchReport(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, r.Clone())
	return r, nil
}

func (s *ReportStorage) UpsertReport(ctx context.Context, r *model.AnalysisRecord) error {
	s.cache.Remove(r.ID)
	if err := s.next.UpsertReport(ctx, r); err != nil {
		return err
	}
	c := r.Clone()
	c.CreatedAt = state.StoredTime(c.CreatedAt)
	s.cache.Add(r.ID, c)
	return nil
}

func (s *ReportStorage) RemoveReport(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return s.next.RemoveReport(ctx, id)
}

func (s *ReportStorage) ListReports(ctx context.Context) ([]*model.AnalysisRecord, error) {
	return s.next.ListReports(ctx)
}

func (s *ReportStorage) RemoveReportsBefore(ctx context.Context, before time.Time) (int64, error) {
	s.cache.Purge()
	return s.next.RemoveReportsBefore(ctx, before)
}

func (s *ReportStorage) RemoveAllReports(ctx context.Context) (int64, error) {
	s.cache.Purge()
	return s.next.RemoveAllReports(ctx)
}
