package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

var (
	ErrPINRequired     = errors.New("PIN required when enabling")
	ErrUnknownLock     = errors.New("pin_type must be 'app' or 'file'")
	ErrTooManyAttempts = errors.New("too many PIN attempts")
	ErrInvalidPIN      = errors.New("invalid file access PIN")
)

const (
	defaultVerifyBurst    = 10
	defaultVerifyInterval = 500 * time.Millisecond
)

type SettingsOptions struct {
	// VerifyBurst and VerifyInterval bound PIN comparisons against
	// enabled locks: a burst of attempts, then one per interval.
	VerifyBurst    int
	VerifyInterval time.Duration
	// HashCost is the bcrypt cost for new PINs.
	HashCost int
	Logger   *slog.Logger
}

// SettingsService is the credential store: it owns the two PIN locks and
// logs every verification decision.
type SettingsService struct {
	store   store.SettingsStore
	events  store.VerifyEventStore
	limiter *rate.Limiter
	cost    int
	logger  *slog.Logger

	// mu serializes read-modify-write cycles on the settings record.
	mu sync.Mutex
}

func NewSettingsService(st store.SettingsStore, es store.VerifyEventStore, opts SettingsOptions) *SettingsService {
	burst := opts.VerifyBurst
	if burst <= 0 {
		burst = defaultVerifyBurst
	}
	interval := opts.VerifyInterval
	if interval <= 0 {
		interval = defaultVerifyInterval
	}
	cost := opts.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SettingsService{
		store:   st,
		events:  es,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		cost:    cost,
		logger:  logger,
	}
}

// LockConfig reports which locks are enabled. Hashes are never returned.
func (s *SettingsService) LockConfig(ctx context.Context) (types.LockConfig, error) {
	rec, err := s.store.LoadSettings(ctx)
	if err != nil {
		return types.LockConfig{}, err
	}
	return types.LockConfig{
		AppLockEnabled:  rec.AppLockEnabled,
		FileLockEnabled: rec.FileLockEnabled,
	}, nil
}

// SetPIN enables a lock with a new PIN, or disables it. Disabling keeps
// the stored hash.
func (s *SettingsService) SetPIN(ctx context.Context, lockName string, enabled bool, pin string) error {
	lock, err := gate.ParseLock(lockName)
	if err != nil {
		return ErrUnknownLock
	}
	if enabled && pin == "" {
		return ErrPINRequired
	}

	var hash string
	if enabled {
		b, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
		if err != nil {
			return fmt.Errorf("hash PIN: %w", err)
		}
		hash = string(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	switch lock {
	case gate.LockApp:
		rec.AppLockEnabled = enabled
		if enabled {
			rec.AppPINHash = hash
		}
	case gate.LockFile:
		rec.FileLockEnabled = enabled
		if enabled {
			rec.FilePINHash = hash
		}
	}
	if err := s.store.SaveSettings(ctx, rec); err != nil {
		return err
	}

	s.logger.Info("lock updated", "lock", lock, "enabled", enabled)
	return nil
}

// Verify checks pin against a lock. A disabled lock, or one with no PIN
// set, accepts every candidate. Comparisons against enabled locks are
// rate limited.
func (s *SettingsService) Verify(ctx context.Context, lockName, pin string) (bool, error) {
	lock, err := gate.ParseLock(lockName)
	if err != nil {
		return false, ErrUnknownLock
	}

	rec, err := s.store.LoadSettings(ctx)
	if err != nil {
		return false, err
	}

	enabled, hash := rec.AppLockEnabled, rec.AppPINHash
	if lock == gate.LockFile {
		enabled, hash = rec.FileLockEnabled, rec.FilePINHash
	}

	if !enabled {
		s.recordEvent(ctx, lock, true, "lock_disabled")
		return true, nil
	}
	if hash == "" {
		s.recordEvent(ctx, lock, true, "no_pin_set")
		return true, nil
	}

	if !s.limiter.Allow() {
		s.recordEvent(ctx, lock, false, "rate_limited")
		return false, ErrTooManyAttempts
	}

	ok, legacy := comparePIN(hash, pin)
	if !ok {
		s.recordEvent(ctx, lock, false, "pin_mismatch")
		return false, nil
	}

	if legacy {
		s.upgradeHash(ctx, lock, hash, pin)
	}
	s.recordEvent(ctx, lock, true, "pin_ok")
	return true, nil
}

// Allow is Verify for gated operations: a wrong PIN becomes ErrInvalidPIN.
func (s *SettingsService) Allow(ctx context.Context, lockName, pin string) error {
	ok, err := s.Verify(ctx, lockName, pin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPIN
	}
	return nil
}

// comparePIN reports whether pin matches hash, and whether hash is in the
// legacy unsalted SHA-256 format.
func comparePIN(hash, pin string) (ok, legacy bool) {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil, false
	}

	sum := sha256.Sum256([]byte(pin))
	want, err := hex.DecodeString(hash)
	if err != nil || len(want) != sha256.Size {
		return false, true
	}
	return subtle.ConstantTimeCompare(want, sum[:]) == 1, true
}

// upgradeHash replaces a legacy hash with bcrypt after a successful
// verification. Failures are logged; the legacy hash keeps working.
func (s *SettingsService) upgradeHash(ctx context.Context, lock gate.Lock, oldHash, pin string) {
	b, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
	if err != nil {
		s.logger.Warn("rehash PIN failed", "lock", lock, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.LoadSettings(ctx)
	if err != nil {
		s.logger.Warn("rehash PIN failed", "lock", lock, "err", err)
		return
	}
	switch {
	case lock == gate.LockApp && rec.AppPINHash == oldHash:
		rec.AppPINHash = string(b)
	case lock == gate.LockFile && rec.FilePINHash == oldHash:
		rec.FilePINHash = string(b)
	default:
		return
	}
	if err := s.store.SaveSettings(ctx, rec); err != nil {
		s.logger.Warn("rehash PIN failed", "lock", lock, "err", err)
		return
	}
	s.logger.Info("legacy PIN hash upgraded", "lock", lock)
}

func (s *SettingsService) recordEvent(ctx context.Context, lock gate.Lock, granted bool, reason string) {
	if s.events == nil {
		return
	}
	err := s.events.RecordVerifyEvent(ctx, store.VerifyEventRecord{
		Lock:      string(lock),
		Granted:   granted,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("record verify event failed", "lock", lock, "err", err)
	}
}
