package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

// CaptureStore keeps captures in memory. It is intended for tests and dev
// environments.
type CaptureStore struct {
	mu     sync.RWMutex
	recs   map[string]store.CaptureRecord
	images map[string][]byte
}

func NewCaptureStore() *CaptureStore {
	return &CaptureStore{
		recs:   make(map[string]store.CaptureRecord),
		images: make(map[string][]byte),
	}
}

func (s *CaptureStore) SaveCapture(_ context.Context, rec store.CaptureRecord, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Size = int64(len(image))
	s.recs[rec.ID] = rec
	s.images[rec.ID] = append([]byte(nil), image...)
	return nil
}

func (s *CaptureStore) ListCaptures(_ context.Context) ([]store.CaptureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.CaptureRecord, 0, len(s.recs))
	for _, r := range s.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *CaptureStore) GetCapture(_ context.Context, id string) (store.CaptureRecord, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return store.CaptureRecord{}, nil, store.ErrNotFound
	}
	return rec, append([]byte(nil), s.images[id]...), nil
}

func (s *CaptureStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.recs {
		if r.CreatedAt.Before(cutoff) {
			delete(s.recs, id)
			delete(s.images, id)
			n++
		}
	}
	return n, nil
}
