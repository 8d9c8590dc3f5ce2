package service_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/service"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/memory"
)

// flakySource replays counts until failing is set.
type flakySource struct {
	mu      sync.Mutex
	counts  []int
	i       int
	failing bool
}

func (f *flakySource) Next(context.Context) (service.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return service.Frame{}, errors.New("camera unplugged")
	}
	n := 0
	if len(f.counts) > 0 {
		n = f.counts[f.i%len(f.counts)]
		f.i++
	}
	return service.Frame{Image: []byte{0xff, 0xd8, 0xff}, Detections: n}, nil
}

func (f *flakySource) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func newSettings(t *testing.T) (*service.SettingsService, *memory.VerifyEventStore) {
	t.Helper()
	events := memory.NewVerifyEventStore()
	svc := service.NewSettingsService(memory.NewSettingsStore(), events, service.SettingsOptions{
		VerifyBurst: 100,
		HashCost:    bcrypt.MinCost,
	})
	return svc, events
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
