package store

import (
	"context"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// CaptureKind records how an image reached the store.
type CaptureKind string

const (
	KindCapture CaptureKind = "capture"
	KindUpload  CaptureKind = "upload"
)

// CaptureRecord describes one persisted image. Image bytes are stored
// alongside but only returned by GetCapture.
type CaptureRecord struct {
	ID          string
	Kind        CaptureKind
	CreatedAt   time.Time
	ContentType string
	Size        int64
	Metrics     types.FrameMetrics
}

// CaptureStore persists annotated captures and uploads.
type CaptureStore interface {
	SaveCapture(ctx context.Context, rec CaptureRecord, image []byte) error
	// ListCaptures returns every record, newest first.
	ListCaptures(ctx context.Context) ([]CaptureRecord, error)
	// GetCapture returns ErrNotFound for an unknown id.
	GetCapture(ctx context.Context, id string) (CaptureRecord, []byte, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
