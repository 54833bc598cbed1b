package dbcache

import (
	"context"
	"sync"
	"time"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/state"
	"github.com/ts4z/trz/varz"
)

// Without change notifications (sqlite), another writer's save shows up
// here only once the TTL runs out.

type Nower interface {
	Now() time.Time
}

type SettingsStorage struct {
	clock Nower
	ttl   time.Duration
	next  state.SettingsStorage

	mu        sync.Mutex
	cached    *model.AppSettings
	fetchedAt time.Time
}

var _ state.SettingsStorage = (*SettingsStorage)(nil)

var (
	settingsStorageCacheHits   = varz.NewInt("settingsStorageCacheHits")
	settingsStorageCacheMisses = varz.NewInt("settingsStorageCacheMisses")
)

func NewSettingsStorage(next state.SettingsStorage, clock Nower, ttl time.Duration) *SettingsStorage {
	return &SettingsStorage{
		next:  next,
		clock: clock,
		ttl:   ttl,
	}
}

func (s *SettingsStorage) Close() {
	s.next.Close()
}

// FetchSettings implements state.SettingsStorage.
func (s *SettingsStorage) FetchSettings(ctx context.Context) (*model.AppSettings, error) {
	s.mu.Lock()
	if s.cached != nil && s.fetchedAt.Add(s.ttl).After(s.clock.Now()) {
		c := s.cached.Clone()
		s.mu.Unlock()
		settingsStorageCacheHits.Add(1)
		return c, nil
	}
	s.mu.Unlock()

	settingsStorageCacheMisses.Add(1)
	settings, err := s.next.FetchSettings(ctx)
	if err != nil {
		return nil, err
	}
	s.store(settings)
	return settings, nil
}

// SaveSettings implements state.SettingsStorage.
func (s *SettingsStorage) SaveSettings(ctx context.Context, patch *model.SettingsPatch) (*model.AppSettings, error) {
	saved, err := s.next.SaveSettings(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.store(saved)
	return saved, nil
}

func (s *SettingsStorage) store(settings *model.AppSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.cached.Version > settings.Version {
		return
	}
	s.cached = settings.Clone()
	s.fetchedAt = s.clock.Now()
}

// Fetch makes this suitable as a dbnotify fetcher.  There is only one
// settings row, so id is ignored.
func (s *SettingsStorage) Fetch(ctx context.Context, _ string) (*model.AppSettings, error) {
	return s.FetchSettings(ctx)
}

// CacheInvalidate drops the cached row if it is older than version.
func (s *SettingsStorage) CacheInvalidate(_ context.Context, _ string, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && s.cached.Version < version {
		s.cached = nil
	}
}

// CacheDrop forgets the cached row.  The row was deleted, so a lower
// version may follow.
func (s *SettingsStorage) CacheDrop(_ context.Context, _ string) {
	s.Expire()
}

// Expire forces the next fetch to go to the database.
func (s *SettingsStorage) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}
