package sqlite_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	sqlitestore "github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/sqlite"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

func newCaptureStore(t *testing.T) *sqlitestore.CaptureStore {
	t.Helper()
	conn := openTestDB(t)
	return sqlitestore.NewCaptureStore(conn, newTestWriter(t, conn))
}

func TestCaptureStore_SaveGetRoundTrip(t *testing.T) {
	cs := newCaptureStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	img := []byte{0xff, 0xd8, 0x01, 0x02}
	rec := store.CaptureRecord{
		ID:          "capture_20260301_093000_ab12cd34.jpg",
		Kind:        store.KindCapture,
		CreatedAt:   now,
		ContentType: "image/jpeg",
		Metrics:     types.FrameMetrics{WeightKg: 28.5, DetectionCount: 5, Confidence: 0.9},
	}
	if err := cs.SaveCapture(ctx, rec, img); err != nil {
		t.Fatalf("SaveCapture: %v", err)
	}

	got, gotImg, err := cs.GetCapture(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetCapture: %v", err)
	}
	if !bytes.Equal(gotImg, img) {
		t.Error("image bytes differ")
	}
	if got.Size != int64(len(img)) {
		t.Errorf("expected size %d, got %d", len(img), got.Size)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("expected created_at %v, got %v", now, got.CreatedAt)
	}
	if got.Metrics != rec.Metrics || got.Kind != store.KindCapture {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestCaptureStore_GetUnknown(t *testing.T) {
	cs := newCaptureStore(t)

	_, _, err := cs.GetCapture(context.Background(), "missing.jpg")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCaptureStore_ListNewestFirst(t *testing.T) {
	cs := newCaptureStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		rec := store.CaptureRecord{
			ID:          id,
			Kind:        store.KindUpload,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			ContentType: "image/jpeg",
		}
		if err := cs.SaveCapture(ctx, rec, []byte{byte(i)}); err != nil {
			t.Fatalf("SaveCapture %s: %v", id, err)
		}
	}

	list, err := cs.ListCaptures(ctx)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(list) != 3 || list[0].ID != "c.jpg" || list[2].ID != "a.jpg" {
		t.Errorf("unexpected order: %+v", list)
	}
}

func TestCaptureStore_PruneOlderThan(t *testing.T) {
	cs := newCaptureStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := store.CaptureRecord{ID: "old.jpg", Kind: store.KindCapture, CreatedAt: now.AddDate(0, 0, -40), ContentType: "image/jpeg"}
	recent := store.CaptureRecord{ID: "recent.jpg", Kind: store.KindCapture, CreatedAt: now.AddDate(0, 0, -1), ContentType: "image/jpeg"}
	for _, r := range []store.CaptureRecord{old, recent} {
		if err := cs.SaveCapture(ctx, r, []byte("x")); err != nil {
			t.Fatalf("SaveCapture: %v", err)
		}
	}

	deleted, err := cs.PruneOlderThan(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 pruned, got %d", deleted)
	}

	list, err := cs.ListCaptures(ctx)
	if err != nil {
		t.Fatalf("ListCaptures: %v", err)
	}
	if len(list) != 1 || list[0].ID != "recent.jpg" {
		t.Errorf("expected only recent.jpg to survive, got %+v", list)
	}
}
