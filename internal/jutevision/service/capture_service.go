package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

var (
	ErrCaptureUnavailable = errors.New("could not capture frame")
	ErrEmptyUpload        = errors.New("uploaded file is empty")
)

const jpegContentType = "image/jpeg"

// CaptureService persists frames and uploads behind the file lock.
type CaptureService struct {
	source   FrameSource
	analyzer ImageAnalyzer
	captures store.CaptureStore
	settings *SettingsService
	logger   *slog.Logger
	now      func() time.Time
}

func NewCaptureService(src FrameSource, an ImageAnalyzer, cs store.CaptureStore, settings *SettingsService, logger *slog.Logger) *CaptureService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CaptureService{
		source:   src,
		analyzer: an,
		captures: cs,
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Capture saves the current frame.
func (s *CaptureService) Capture(ctx context.Context, filePIN string) (types.CaptureResponse, error) {
	if err := s.settings.Allow(ctx, string(gate.LockFile), filePIN); err != nil {
		return types.CaptureResponse{}, err
	}

	frame, err := s.source.Next(ctx)
	if err != nil {
		return types.CaptureResponse{}, fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	m := MetricsFromDetections(frame.Detections)
	id, err := s.save(ctx, store.KindCapture, frame.Image, m)
	if err != nil {
		return types.CaptureResponse{}, err
	}
	return types.CaptureResponse{SavedAs: id, Metrics: m}, nil
}

// Upload analyzes a submitted image and, when persist is set, saves the
// annotated result. The file lock is only consulted when persisting.
func (s *CaptureService) Upload(ctx context.Context, img []byte, persist bool, filePIN string) (types.UploadResponse, error) {
	if len(img) == 0 {
		return types.UploadResponse{}, ErrEmptyUpload
	}

	annotated, n, err := s.analyzer.Analyze(ctx, img)
	if err != nil {
		return types.UploadResponse{}, err
	}
	m := MetricsFromDetections(n)
	resp := types.UploadResponse{
		AnnotatedBase64: base64.StdEncoding.EncodeToString(annotated),
		Metrics:         m,
	}
	if !persist {
		return resp, nil
	}

	if err := s.settings.Allow(ctx, string(gate.LockFile), filePIN); err != nil {
		return types.UploadResponse{}, err
	}
	id, err := s.save(ctx, store.KindUpload, annotated, m)
	if err != nil {
		return types.UploadResponse{}, err
	}
	resp.SavedAs = id
	return resp, nil
}

// List returns saved capture ids, newest first.
func (s *CaptureService) List(ctx context.Context, filePIN string) ([]string, error) {
	if err := s.settings.Allow(ctx, string(gate.LockFile), filePIN); err != nil {
		return nil, err
	}

	recs, err := s.captures.ListCaptures(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Get returns one saved capture and its image bytes.
func (s *CaptureService) Get(ctx context.Context, id, filePIN string) (store.CaptureRecord, []byte, error) {
	if err := s.settings.Allow(ctx, string(gate.LockFile), filePIN); err != nil {
		return store.CaptureRecord{}, nil, err
	}
	return s.captures.GetCapture(ctx, strings.TrimSpace(id))
}

func (s *CaptureService) save(ctx context.Context, kind store.CaptureKind, img []byte, m types.FrameMetrics) (string, error) {
	now := s.now()
	rec := store.CaptureRecord{
		ID:          newCaptureID(kind, now),
		Kind:        kind,
		CreatedAt:   now,
		ContentType: jpegContentType,
		Size:        int64(len(img)),
		Metrics:     m,
	}
	if err := s.captures.SaveCapture(ctx, rec, img); err != nil {
		return "", fmt.Errorf("save %s: %w", kind, err)
	}
	s.logger.Info("image saved", "id", rec.ID, "kind", kind, "bytes", rec.Size)
	return rec.ID, nil
}

// newCaptureID names a capture by kind and time, with a random suffix so
// two saves in the same second do not collide.
func newCaptureID(kind store.CaptureKind, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s.jpg", kind, at.Format("20060102_150405"), suffix)
}
