package memory

import (
	"context"
	"sync"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

// VerifyEventStore is an in-memory append-only log of PIN verifications.
// It is intended for use in tests and dev environments.
type VerifyEventStore struct {
	mu     sync.Mutex
	events []store.VerifyEventRecord
}

func NewVerifyEventStore() *VerifyEventStore {
	return &VerifyEventStore{}
}

func (s *VerifyEventStore) RecordVerifyEvent(_ context.Context, rec store.VerifyEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

// Events returns a copy of all recorded events.  Test-only helper.
func (s *VerifyEventStore) Events() []store.VerifyEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.VerifyEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
