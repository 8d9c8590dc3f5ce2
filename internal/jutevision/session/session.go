// Package session implements the Session Controller: the audit lifecycle
// state machine, the metrics poll loop, and the gated capture commands.
//
// One Controller owns one AuditSession. Commands are queued and run one at
// a time; poll responses are applied only if no command was issued while
// they were in flight, so a reset always wins over a ghost poll.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/compliance"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// DefaultPollInterval matches the 1.5s refresh of the field client.
const DefaultPollInterval = 1500 * time.Millisecond

var (
	// ErrStale is returned by Poll when its response was discarded because
	// a command or Close happened while it was in flight.
	ErrStale = errors.New("stale poll response discarded")

	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("session controller closed")
)

// AuditSession is a read-only snapshot of the session state.
type AuditSession struct {
	Status             types.AuditStatus `json:"status"`
	ProgressPercent    int               `json:"progress_percent"`
	EstimatedWeightKg  float64           `json:"estimated_weight_kg"`
	CumulativeWeightKg float64           `json:"cumulative_weight_kg"`
	DetectionCount     int               `json:"detection_count"`
	Confidence         float64           `json:"confidence"`
}

// DetectionService is the remote service that runs detection and keeps
// the running total.
type DetectionService interface {
	Metrics(ctx context.Context) (types.Metrics, error)
	Start(ctx context.Context) (types.Metrics, error)
	Stop(ctx context.Context) (types.Metrics, error)
	Reset(ctx context.Context) (types.Metrics, error)
	Capture(ctx context.Context, credential string) (types.CaptureResponse, error)
	Upload(ctx context.Context, image []byte, persist bool, credential string) (types.UploadResponse, error)
	SavedCaptures(ctx context.Context, credential string) ([]string, error)
}

// Authorizer is the slice of the Access Gate the controller needs.
type Authorizer interface {
	IsGateRequired(lock gate.Lock) bool
	Authorize(ctx context.Context, lock gate.Lock, candidate string) (gate.Decision, error)
}

// Listener receives every applied state change with its verdict.
type Listener func(AuditSession, compliance.Verdict)

type Options struct {
	PollInterval time.Duration
	Logger       *slog.Logger
	Listener     Listener
}

type Controller struct {
	svc      DetectionService
	gate     Authorizer
	logger   *slog.Logger
	interval time.Duration
	listener Listener

	// cmds is a single-slot queue; holding the slot serializes commands.
	cmds chan struct{}

	mu              sync.Mutex
	state           AuditSession
	gen             uint64
	inflight        int
	resultsUnlocked bool
	closed          bool

	// changes numbers applied state changes under mu; notified is the
	// newest one delivered, under notifyMu.
	changes  uint64
	notifyMu sync.Mutex
	notified uint64

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a controller in the idle, all-zero state.
func New(svc DetectionService, g Authorizer, opts Options) *Controller {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		svc:      svc,
		gate:     g,
		logger:   logger,
		interval: interval,
		listener: opts.Listener,
		cmds:     make(chan struct{}, 1),
		state:    AuditSession{Status: types.StatusIdle},
	}
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() AuditSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Verdict grades the current snapshot.
func (c *Controller) Verdict() compliance.Verdict {
	return Classify(c.Snapshot())
}

// Classify grades a snapshot on its latest instantaneous metrics.
func Classify(s AuditSession) compliance.Verdict {
	return compliance.Classify(s.EstimatedWeightKg, s.Confidence, s.DetectionCount)
}

// ResultsUnlocked reports whether a stop has unlocked the final results
// view for the current session.
func (c *Controller) ResultsUnlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultsUnlocked
}

// ── Lifecycle commands ───────────────────────────────────────────────────────

// Start begins a scan. It is legal from idle, complete and error; from an
// active scan it returns ErrInvalidTransition without contacting the
// service.
func (c *Controller) Start(ctx context.Context) (AuditSession, error) {
	return c.lifecycle(ctx, "start", func(s types.AuditStatus) bool { return !s.Active() },
		c.svc.Start, func(m types.Metrics) {
			c.applyAck(m)
			c.state.Status = types.StatusScanning
			c.resultsUnlocked = false
		})
}

// Stop completes an active scan and unlocks the results view.
func (c *Controller) Stop(ctx context.Context) (AuditSession, error) {
	return c.lifecycle(ctx, "stop", types.AuditStatus.Active,
		c.svc.Stop, func(m types.Metrics) {
			c.applyAck(m)
			c.state.Status = types.StatusComplete
			c.resultsUnlocked = true
		})
}

// Reset returns the session to idle and zeroes every metric, including
// the cumulative weight. It is legal from any state. Callers confirm the
// destructive reset before calling.
func (c *Controller) Reset(ctx context.Context) (AuditSession, error) {
	return c.lifecycle(ctx, "reset", func(types.AuditStatus) bool { return true },
		c.svc.Reset, func(types.Metrics) {
			c.state = AuditSession{Status: types.StatusIdle}
			c.resultsUnlocked = false
		})
}

func (c *Controller) lifecycle(
	ctx context.Context,
	op string,
	allowed func(types.AuditStatus) bool,
	call func(context.Context) (types.Metrics, error),
	apply func(types.Metrics),
) (AuditSession, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	c.mu.Lock()
	if from := c.state.Status; !allowed(from) {
		snap := c.state
		c.mu.Unlock()
		return snap, fmt.Errorf("%s from %s: %w", op, from, fault.ErrInvalidTransition)
	}
	// Any poll issued before this point is now stale.
	c.gen++
	c.inflight++
	c.mu.Unlock()

	m, callErr := call(ctx)

	c.mu.Lock()
	c.inflight--
	c.gen++
	if callErr != nil {
		snap := c.state
		c.mu.Unlock()
		return snap, serviceErr(op, callErr)
	}
	apply(m)
	snap, seq := c.state, c.nextChangeLocked()
	c.mu.Unlock()

	c.logger.Info("audit command applied", "op", op, "status", snap.Status)
	c.notify(snap, seq)
	return snap, nil
}

// applyAck copies the instantaneous metrics of a command acknowledgement.
// The running total only moves forward here; reset is the one transition
// that lowers it. Caller holds c.mu.
func (c *Controller) applyAck(m types.Metrics) {
	if err := validateMetrics(m); err != nil {
		c.logger.Warn("ignoring metrics in command ack", "err", err)
		return
	}
	c.state.ProgressPercent = m.ProgressPercent
	c.state.EstimatedWeightKg = m.EstimatedWeightKg
	c.state.DetectionCount = m.DetectionCount
	c.state.Confidence = m.Confidence
	if m.CumulativeWeightKg >= c.state.CumulativeWeightKg {
		c.state.CumulativeWeightKg = m.CumulativeWeightKg
	}
}

// ── Polling ──────────────────────────────────────────────────────────────────

// Poll fetches metrics once and applies them. Errors are informational:
// a failed fetch leaves the state untouched and never moves the session
// to error. A response whose cumulative weight went backwards is
// discarded with ErrValidationFailure; one overtaken by a command or by
// Close is discarded with ErrStale.
func (c *Controller) Poll(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen := c.gen
	c.mu.Unlock()

	m, err := c.svc.Metrics(ctx)
	if err != nil {
		return serviceErr("poll metrics", err)
	}

	c.mu.Lock()
	if c.closed || ctx.Err() != nil || c.gen != gen || c.inflight > 0 {
		c.mu.Unlock()
		return ErrStale
	}
	if err := validateMetrics(m); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("poll metrics: %w", err)
	}
	if m.CumulativeWeightKg < c.state.CumulativeWeightKg {
		prev := c.state.CumulativeWeightKg
		c.mu.Unlock()
		return fmt.Errorf("poll metrics: cumulative weight %.1fkg below %.1fkg: %w",
			m.CumulativeWeightKg, prev, fault.ErrValidationFailure)
	}
	c.state = AuditSession{
		Status:             m.Status,
		ProgressPercent:    m.ProgressPercent,
		EstimatedWeightKg:  m.EstimatedWeightKg,
		CumulativeWeightKg: m.CumulativeWeightKg,
		DetectionCount:     m.DetectionCount,
		Confidence:         m.Confidence,
	}
	snap, seq := c.state, c.nextChangeLocked()
	c.mu.Unlock()

	c.notify(snap, seq)
	return nil
}

// Sync polls once on behalf of a caller that needs the current status
// before issuing a command. Unlike the background loop it reports every
// error.
func (c *Controller) Sync(ctx context.Context) (AuditSession, error) {
	err := c.Poll(ctx)
	return c.Snapshot(), err
}

// StartPolling runs the poll loop in the background: one poll right away,
// then one per interval. The loop exits when ctx is cancelled or
// StopPolling/Close is called. Calling it while a loop runs is a no-op.
func (c *Controller) StartPolling(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx, c.done)

	c.logger.Info("metrics polling started", "interval", c.interval)
}

// StopPolling stops the loop and waits for it to exit. Safe to call more
// than once.
func (c *Controller) StopPolling() {
	c.loopMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops polling for good. Responses still in flight are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.StopPolling()
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.tick(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	err := c.Poll(ctx)
	switch {
	case err == nil, errors.Is(err, ErrStale), errors.Is(err, ErrClosed):
	case errors.Is(err, fault.ErrValidationFailure):
		c.logger.Warn("poll response discarded", "err", err)
	default:
		// Transient; the next tick retries.
		c.logger.Debug("poll failed", "err", err)
	}
}

// ── Capture commands ─────────────────────────────────────────────────────────

// CaptureOutcome is the result of SaveCapture.
type CaptureOutcome struct {
	OK        bool
	StorageID string
	Metrics   types.FrameMetrics
	Reason    string
}

// SaveCapture asks the service to persist the current frame. When the file
// lock is enabled the secret is checked through the Access Gate first;
// otherwise the service is called with an empty credential.
func (c *Controller) SaveCapture(ctx context.Context, secret string) (CaptureOutcome, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return CaptureOutcome{Reason: fault.Reason(err)}, fmt.Errorf("save capture: %w", err)
	}
	defer release()

	credential, err := c.fileCredential(ctx, secret, false)
	if err != nil {
		return CaptureOutcome{Reason: fault.Reason(err)}, fmt.Errorf("save capture: %w", err)
	}

	resp, err := c.svc.Capture(ctx, credential)
	if err != nil {
		err = serviceErr("save capture", err)
		return CaptureOutcome{Reason: fault.Reason(err)}, err
	}

	c.logger.Info("capture saved", "storage_id", resp.SavedAs)
	return CaptureOutcome{OK: true, StorageID: resp.SavedAs, Metrics: resp.Metrics}, nil
}

// UploadOutcome is the analysis of one submitted image. Its metrics and
// verdict describe that image only, not the running session.
type UploadOutcome struct {
	OK             bool
	Metrics        types.FrameMetrics
	Verdict        compliance.Verdict
	AnnotatedImage []byte
	StorageID      string
	Reason         string
}

// UploadImage submits image bytes for analysis. Persisting behind an
// enabled file lock requires a valid secret.
func (c *Controller) UploadImage(ctx context.Context, image []byte, persist bool, secret string) (UploadOutcome, error) {
	if len(image) == 0 {
		err := fmt.Errorf("upload image: empty image: %w", fault.ErrValidationFailure)
		return UploadOutcome{Reason: "empty image"}, err
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return UploadOutcome{Reason: fault.Reason(err)}, fmt.Errorf("upload image: %w", err)
	}
	defer release()

	credential := ""
	if persist {
		credential, err = c.fileCredential(ctx, secret, true)
		if err != nil {
			return UploadOutcome{Reason: fault.Reason(err)}, fmt.Errorf("upload image: %w", err)
		}
	}

	resp, err := c.svc.Upload(ctx, image, persist, credential)
	if err != nil {
		err = serviceErr("upload image", err)
		return UploadOutcome{Reason: fault.Reason(err)}, err
	}

	annotated, err := base64.StdEncoding.DecodeString(resp.AnnotatedBase64)
	if err != nil {
		err = fmt.Errorf("upload image: annotated image: %w: %w", fault.ErrValidationFailure, err)
		return UploadOutcome{Reason: fault.Reason(err)}, err
	}

	m := resp.Metrics
	return UploadOutcome{
		OK:             true,
		Metrics:        m,
		Verdict:        compliance.Classify(m.WeightKg, m.Confidence, m.DetectionCount),
		AnnotatedImage: annotated,
		StorageID:      resp.SavedAs,
	}, nil
}

// SavedCaptures lists persisted captures, newest first, behind the file
// lock.
func (c *Controller) SavedCaptures(ctx context.Context, secret string) ([]string, error) {
	release, err := c.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("saved captures: %w", err)
	}
	defer release()

	credential, err := c.fileCredential(ctx, secret, false)
	if err != nil {
		return nil, fmt.Errorf("saved captures: %w", err)
	}

	ids, err := c.svc.SavedCaptures(ctx, credential)
	if err != nil {
		return nil, serviceErr("saved captures", err)
	}
	return ids, nil
}

// fileCredential authorizes secret against the file lock when it is
// enabled and returns the credential to forward to the service.
func (c *Controller) fileCredential(ctx context.Context, secret string, requireSecret bool) (string, error) {
	if !c.gate.IsGateRequired(gate.LockFile) {
		return "", nil
	}
	if requireSecret && secret == "" {
		return "", fmt.Errorf("file PIN required: %w", fault.ErrCredentialDenied)
	}
	if _, err := c.gate.Authorize(ctx, gate.LockFile, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (c *Controller) acquire(ctx context.Context) (func(), error) {
	select {
	case c.cmds <- struct{}{}:
		return func() { <-c.cmds }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// nextChangeLocked numbers a state change. Caller holds c.mu.
func (c *Controller) nextChangeLocked() uint64 {
	c.changes++
	return c.changes
}

// notify delivers change seq unless a newer change already reached the
// listener.
func (c *Controller) notify(snap AuditSession, seq uint64) {
	if c.listener == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.notified {
		return
	}
	c.notified = seq
	c.listener(snap, Classify(snap))
}

func validateMetrics(m types.Metrics) error {
	switch {
	case !m.Status.Valid():
		return fmt.Errorf("unknown status %q: %w", m.Status, fault.ErrValidationFailure)
	case m.ProgressPercent < 0 || m.ProgressPercent > 100:
		return fmt.Errorf("progress %d out of range: %w", m.ProgressPercent, fault.ErrValidationFailure)
	case m.EstimatedWeightKg < 0 || m.CumulativeWeightKg < 0:
		return fmt.Errorf("negative weight: %w", fault.ErrValidationFailure)
	case m.DetectionCount < 0:
		return fmt.Errorf("negative detection count: %w", fault.ErrValidationFailure)
	case m.Confidence < 0 || m.Confidence > 1:
		return fmt.Errorf("confidence %.2f out of range: %w", m.Confidence, fault.ErrValidationFailure)
	}
	return nil
}

// serviceErr wraps a service failure so it always carries a fault kind.
func serviceErr(op string, err error) error {
	if errors.Is(err, fault.ErrCredentialDenied) ||
		errors.Is(err, fault.ErrServiceUnavailable) ||
		errors.Is(err, fault.ErrValidationFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, fault.ErrServiceUnavailable, err)
}
