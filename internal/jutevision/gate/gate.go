// Package gate implements the Access Gate: two independent PIN locks that
// guard app access and file access.
//
// The gate never sees or caches a real secret. Whether a lock is enabled
// comes from the credential store's lock configuration, and every
// authorization is a single verify round trip to that store.
package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// Lock names one of the two locks.
type Lock string

const (
	LockApp  Lock = "app"
	LockFile Lock = "file"
)

// ParseLock accepts "app" or "file" (case-insensitive).
func ParseLock(s string) (Lock, error) {
	switch Lock(strings.ToLower(strings.TrimSpace(s))) {
	case LockApp:
		return LockApp, nil
	case LockFile:
		return LockFile, nil
	}
	return "", fmt.Errorf("unknown lock %q: must be app or file", s)
}

// LockConfigSource supplies the current lock configuration.
type LockConfigSource interface {
	LockConfig(ctx context.Context) (types.LockConfig, error)
}

// Verifier checks a candidate secret against a lock. A disabled lock
// verifies every candidate.
type Verifier interface {
	VerifyPIN(ctx context.Context, lock string, candidate string) (bool, error)
}

// Decision is the outcome of one authorization attempt.
type Decision struct {
	Lock       Lock
	Authorized bool
	Reason     string
}

// Gate evaluates the AccessPolicy held by an external store.
type Gate struct {
	source   LockConfigSource
	verifier Verifier

	mu     sync.RWMutex
	policy types.LockConfig
}

func New(source LockConfigSource, verifier Verifier) *Gate {
	return &Gate{source: source, verifier: verifier}
}

// Refresh reloads the lock configuration. On failure the previous policy
// is kept.
func (g *Gate) Refresh(ctx context.Context) error {
	cfg, err := g.source.LockConfig(ctx)
	if err != nil {
		return fmt.Errorf("load lock config: %w", err)
	}
	g.mu.Lock()
	g.policy = cfg
	g.mu.Unlock()
	return nil
}

// Policy returns the last loaded lock configuration.
func (g *Gate) Policy() types.LockConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

// IsGateRequired reports whether lock is enabled. Unknown locks report
// true so that callers fall through to Authorize, which rejects them.
func (g *Gate) IsGateRequired(lock Lock) bool {
	p := g.Policy()
	switch lock {
	case LockApp:
		return p.AppLockEnabled
	case LockFile:
		return p.FileLockEnabled
	}
	return true
}

// Authorize verifies candidate against lock with exactly one call to the
// credential store. A denial is terminal; the caller re-prompts and calls
// again. Transport failures are returned as errors, not as denials.
func (g *Gate) Authorize(ctx context.Context, lock Lock, candidate string) (Decision, error) {
	if lock != LockApp && lock != LockFile {
		return Decision{Lock: lock, Reason: "unknown_lock"}, fmt.Errorf("authorize %q: %w", lock, fault.ErrCredentialDenied)
	}

	ok, err := g.verifier.VerifyPIN(ctx, string(lock), candidate)
	if err != nil {
		return Decision{Lock: lock, Reason: "verify_failed"}, fmt.Errorf("authorize %s: %w", lock, err)
	}
	if !ok {
		return Decision{Lock: lock, Reason: "invalid_credential"}, fmt.Errorf("authorize %s: %w", lock, fault.ErrCredentialDenied)
	}
	return Decision{Lock: lock, Authorized: true, Reason: "authorized"}, nil
}
