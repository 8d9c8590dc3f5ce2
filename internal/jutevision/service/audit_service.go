package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// accumulationFactor is the share of each frame's estimate added to the
// running total per metrics read.
const accumulationFactor = 0.01

var progressByStatus = map[types.AuditStatus]int{
	types.StatusIdle:      0,
	types.StatusScanning:  45,
	types.StatusAnalyzing: 75,
	types.StatusComplete:  100,
	types.StatusError:     0,
}

// AuditService holds the server-side audit state: the lifecycle status
// and the running total of scanned jute.
type AuditService struct {
	source   FrameSource
	logger   *slog.Logger
	onHealth func(serving bool)

	mu      sync.Mutex
	status  types.AuditStatus
	total   float64
	last    types.FrameMetrics
	healthy bool
}

type AuditOptions struct {
	Logger *slog.Logger
	// OnHealth is called whenever the frame source changes between
	// healthy and failing.
	OnHealth func(serving bool)
}

func NewAuditService(src FrameSource, opts AuditOptions) *AuditService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuditService{
		source:   src,
		logger:   logger,
		onHealth: opts.OnHealth,
		status:   types.StatusIdle,
		healthy:  true,
	}
}

func (s *AuditService) Status() types.AuditStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start moves to scanning. The running total is kept; only Reset clears
// it.
func (s *AuditService) Start(_ context.Context) types.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = types.StatusScanning
	s.logger.Info("audit started", "total_kg", round1(s.total))
	return s.snapshotLocked()
}

func (s *AuditService) Stop(_ context.Context) types.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = types.StatusComplete
	s.logger.Info("audit stopped", "total_kg", round1(s.total))
	return s.snapshotLocked()
}

func (s *AuditService) Reset(_ context.Context) types.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = types.StatusIdle
	s.total = 0
	s.last = types.FrameMetrics{}
	s.logger.Info("audit reset")
	return s.snapshotLocked()
}

// Metrics reads one frame and, while a scan is active, adds its share to
// the running total. A frame source failure during a scan moves the
// audit to error; it is reported through the status, not as an error.
func (s *AuditService) Metrics(ctx context.Context) types.Metrics {
	frame, err := s.source.Next(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.setHealthLocked(false)
		s.last = types.FrameMetrics{}
		if s.status.Active() {
			s.logger.Error("frame source failed during scan", "err", err)
			s.status = types.StatusError
		} else {
			s.logger.Warn("frame source unavailable", "err", err)
		}
		return s.snapshotLocked()
	}

	s.setHealthLocked(true)
	s.last = MetricsFromDetections(frame.Detections)
	if s.status.Active() {
		s.total += s.last.WeightKg * accumulationFactor
	}
	return s.snapshotLocked()
}

func (s *AuditService) snapshotLocked() types.Metrics {
	return types.Metrics{
		Status:             s.status,
		ProgressPercent:    progressByStatus[s.status],
		EstimatedWeightKg:  s.last.WeightKg,
		CumulativeWeightKg: round1(s.total),
		DetectionCount:     s.last.DetectionCount,
		Confidence:         s.last.Confidence,
	}
}

func (s *AuditService) setHealthLocked(healthy bool) {
	if s.healthy == healthy {
		return
	}
	s.healthy = healthy
	if s.onHealth != nil {
		s.onHealth(healthy)
	}
}
