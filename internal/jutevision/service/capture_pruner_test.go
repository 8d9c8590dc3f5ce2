package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/service"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/memory"
)

// seedCaptures saves one capture per id, aged in days.
func seedCaptures(t *testing.T, cs store.CaptureStore, ages map[string]int) {
	t.Helper()
	now := time.Now().UTC()
	for id, age := range ages {
		rec := store.CaptureRecord{ID: id, Kind: store.KindCapture, CreatedAt: now.AddDate(0, 0, -age)}
		if err := cs.SaveCapture(context.Background(), rec, []byte("x")); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
}

func TestCapturePruner_PruneOnce(t *testing.T) {
	cs := memory.NewCaptureStore()
	seedCaptures(t, cs, map[string]int{"a.jpg": 45, "b.jpg": 31, "c.jpg": 2})

	p := service.NewCapturePruner(cs, service.PrunerConfig{RetentionDays: 30}, nil)
	n, err := p.PruneOnce(context.Background())
	if err != nil {
		t.Fatalf("PruneOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	list, _ := cs.ListCaptures(context.Background())
	if len(list) != 1 || list[0].ID != "c.jpg" {
		t.Errorf("unexpected survivors %+v", list)
	}
}

func TestCapturePruner_ZeroRetentionKeepsEverything(t *testing.T) {
	cs := memory.NewCaptureStore()
	seedCaptures(t, cs, map[string]int{"ancient.jpg": 3650})

	p := service.NewCapturePruner(cs, service.PrunerConfig{}, nil)
	if p.Enabled() {
		t.Fatal("expected pruner disabled")
	}
	if n, err := p.PruneOnce(context.Background()); n != 0 || err != nil {
		t.Fatalf("PruneOnce = %d, %v", n, err)
	}

	p.Start(context.Background())
	p.Stop()

	if list, _ := cs.ListCaptures(context.Background()); len(list) != 1 {
		t.Errorf("expected capture kept, got %d", len(list))
	}
}

func TestCapturePruner_StartPrunesBacklog(t *testing.T) {
	cs := memory.NewCaptureStore()
	seedCaptures(t, cs, map[string]int{"old.jpg": 40, "recent.jpg": 1})

	p := service.NewCapturePruner(cs, service.PrunerConfig{RetentionDays: 30, IntervalHours: 1}, nil)
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if list, _ := cs.ListCaptures(context.Background()); len(list) == 1 {
			if list[0].ID != "recent.jpg" {
				t.Fatalf("wrong capture survived: %s", list[0].ID)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("backlog was not pruned")
}

func TestCapturePruner_StopIsIdempotent(t *testing.T) {
	p := service.NewCapturePruner(memory.NewCaptureStore(), service.PrunerConfig{RetentionDays: 30}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
