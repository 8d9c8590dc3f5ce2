package memory

import (
	"context"
	"sync"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

type SettingsStore struct {
	mu  sync.RWMutex
	rec store.SettingsRecord
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

func (s *SettingsStore) LoadSettings(_ context.Context) (store.SettingsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec, nil
}

func (s *SettingsStore) SaveSettings(_ context.Context, rec store.SettingsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	return nil
}
