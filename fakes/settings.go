package fakes

import (
	"context"
	"sync"

	"github.com/ts4z/trz/model"
	"github.com/ts4z/trz/state"
)

type SettingsStorage struct {
	mu       sync.Mutex
	settings *model.AppSettings
	Fetches  int
	Err      error // returned by every call when set
}

var _ state.SettingsStorage = (*SettingsStorage)(nil)

func NewSettingsStorage() *SettingsStorage {
	return &SettingsStorage{settings: &model.AppSettings{}}
}

func (s *SettingsStorage) Close() {}

func (s *SettingsStorage) FetchSettings(ctx context.Context) (*model.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fetches++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.settings.Clone(), nil
}

func (s *SettingsStorage) SaveSettings(ctx context.Context, patch *model.SettingsPatch) (*model.AppSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	patch.Apply(s.settings)
	s.settings.Version++
	return s.settings.Clone(), nil
}

// Overwrite replaces the stored settings behind the service's back, as
// another process would.
func (s *SettingsStorage) Overwrite(settings *model.AppSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.Clone()
}
