// Package settings serves the shared tournament settings: one row that
// every client reads and any client may overwrite.  The last writer
// wins.
package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ts4z/trz/dbnotify"
	"github.com/ts4z/trz/dep"
	"github.com/ts4z/trz/gossip"
	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/state"
)

// ErrNotHydrated is returned by Save before the first successful load.
// Saving a partial view over settings we never read would clobber them.
var ErrNotHydrated = errors.New("settings not loaded yet")

// expirer is implemented by caching storage that can be told to drop
// what it has.
type expirer interface {
	Expire()
}

type Service struct {
	storage  state.SettingsStorage
	defaults *model.ResolvedSettings
	gossiper *gossip.Gossiper[*model.AppSettings]

	mu       sync.Mutex
	current  *model.AppSettings
	hydrated bool
}

var _ dbnotify.ClientNotifier[*model.AppSettings] = (*Service)(nil)

func NewService(storage state.SettingsStorage, defaults *model.ResolvedSettings) *Service {
	s := &Service{
		storage:  dep.Required(storage),
		defaults: dep.Required(defaults),
	}
	s.gossiper = gossip.NewGossiper[*model.AppSettings](s,
		func(a *model.AppSettings) int64 { return a.Version },
		(*model.AppSettings).Clone)
	return s
}

// Fetch lets the service act as the gossip source.
func (s *Service) Fetch(ctx context.Context, _ string) (*model.AppSettings, error) {
	return s.Current(ctx)
}

func (s *Service) set(a *model.AppSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Version > a.Version {
		return
	}
	s.current = a.Clone()
	s.hydrated = true
}

// Hydrate loads the stored settings.
func (s *Service) Hydrate(ctx context.Context) error {
	a, err := s.storage.FetchSettings(ctx)
	if err != nil {
		return err
	}
	s.set(a)
	zerolog.Ctx(ctx).Debug().Int64("version", a.Version).Msg("settings hydrated")
	return nil
}

// Current returns the stored settings, as fresh as the storage's cache
// allows.  If storage fails after a successful load, the last known
// settings are returned.
func (s *Service) Current(ctx context.Context) (*model.AppSettings, error) {
	a, err := s.storage.FetchSettings(ctx)
	if err == nil {
		s.set(a)
		return s.snapshot(), nil
	}

	s.mu.Lock()
	hydrated := s.hydrated
	s.mu.Unlock()
	if !hydrated {
		return nil, err
	}
	zerolog.Ctx(ctx).Warn().Err(err).Msg("can't refresh settings, serving last known")
	return s.snapshot(), nil
}

func (s *Service) snapshot() *model.AppSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Resolved is Current with defaults filled in.
func (s *Service) Resolved(ctx context.Context) (*model.ResolvedSettings, error) {
	a, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return a.Resolve(s.defaults), nil
}

// Defaults returns the values used for unset fields.
func (s *Service) Defaults() *model.ResolvedSettings {
	r := *s.defaults
	r.PrizeRules = s.defaults.PrizeRules.Clone()
	return &r
}

// Save writes patch through to storage and tells listeners.
func (s *Service) Save(ctx context.Context, patch *model.SettingsPatch) (*model.AppSettings, error) {
	s.mu.Lock()
	hydrated := s.hydrated
	s.mu.Unlock()
	if !hydrated {
		return nil, ErrNotHydrated
	}

	saved, err := s.storage.SaveSettings(ctx, patch)
	if err != nil {
		return nil, err
	}
	s.set(saved)
	s.gossiper.NotifyUpdated(ctx, model.SettingsID, saved)
	return saved.Clone(), nil
}

// Refresh re-reads from the database, bypassing any cache.  Clients call
// this when they regain focus.
func (s *Service) Refresh(ctx context.Context) (*model.AppSettings, error) {
	if e, ok := s.storage.(expirer); ok {
		e.Expire()
	}
	if err := s.Hydrate(ctx); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// Listen waits for settings newer than version.
func (s *Service) Listen(ctx context.Context, version int64, errCh chan<- error, ch chan<- *model.AppSettings) {
	s.gossiper.Listen(ctx, model.SettingsID, version, errCh, ch)
}

// NotifyUpdated takes changes made by other processes.
func (s *Service) NotifyUpdated(ctx context.Context, a *model.AppSettings) {
	s.set(a)
	s.gossiper.NotifyUpdated(ctx, model.SettingsID, a)
}

// NotifyDeleted is called if someone deletes the settings row.  The next
// read sees defaults, and a recreated row starts again from version 1.
func (s *Service) NotifyDeleted(ctx context.Context, id string) {
	if e, ok := s.storage.(expirer); ok {
		e.Expire()
	}
	s.mu.Lock()
	s.current = &model.AppSettings{}
	s.mu.Unlock()
	s.gossiper.NotifyDeleted(ctx, id)
}
