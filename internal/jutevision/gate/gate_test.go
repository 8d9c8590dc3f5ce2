package gate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/gate"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// fakeStore plays the remote credential store: disabled locks verify
// everything, enabled locks compare against a PIN it alone knows.
type fakeStore struct {
	cfg      types.LockConfig
	pins     map[string]string
	calls    int
	failWith error
}

func (f *fakeStore) LockConfig(context.Context) (types.LockConfig, error) {
	if f.failWith != nil {
		return types.LockConfig{}, f.failWith
	}
	return f.cfg, nil
}

func (f *fakeStore) VerifyPIN(_ context.Context, lock, candidate string) (bool, error) {
	f.calls++
	if f.failWith != nil {
		return false, f.failWith
	}
	enabled := f.cfg.AppLockEnabled
	if lock == "file" {
		enabled = f.cfg.FileLockEnabled
	}
	if !enabled {
		return true, nil
	}
	return f.pins[lock] == candidate, nil
}

func newGate(t *testing.T, st *fakeStore) *gate.Gate {
	t.Helper()
	g := gate.New(st, st)
	if err := g.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return g
}

func TestIsGateRequired_FollowsPolicy(t *testing.T) {
	g := newGate(t, &fakeStore{cfg: types.LockConfig{AppLockEnabled: true}})

	if !g.IsGateRequired(gate.LockApp) {
		t.Error("expected app lock to be required")
	}
	if g.IsGateRequired(gate.LockFile) {
		t.Error("expected file lock not to be required")
	}
}

func TestAuthorize_DisabledFileLockAcceptsEmptySecret(t *testing.T) {
	st := &fakeStore{cfg: types.LockConfig{FileLockEnabled: false}}
	g := newGate(t, st)

	if g.IsGateRequired(gate.LockFile) {
		t.Fatal("expected file lock disabled")
	}
	d, err := g.Authorize(context.Background(), gate.LockFile, "")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Authorized {
		t.Error("expected authorized")
	}
	if st.calls != 1 {
		t.Errorf("expected exactly one verify round trip, got %d", st.calls)
	}
}

func TestAuthorize_WrongSecretDenied(t *testing.T) {
	st := &fakeStore{
		cfg:  types.LockConfig{FileLockEnabled: true},
		pins: map[string]string{"file": "2468"},
	}
	g := newGate(t, st)

	d, err := g.Authorize(context.Background(), gate.LockFile, "1111")
	if !errors.Is(err, fault.ErrCredentialDenied) {
		t.Fatalf("expected ErrCredentialDenied, got %v", err)
	}
	if d.Authorized {
		t.Error("expected denied")
	}
	if d.Reason != "invalid_credential" {
		t.Errorf("expected reason=invalid_credential, got %q", d.Reason)
	}
}

func TestAuthorize_LocksAreIndependent(t *testing.T) {
	st := &fakeStore{
		cfg:  types.LockConfig{AppLockEnabled: true, FileLockEnabled: true},
		pins: map[string]string{"app": "1111", "file": "2222"},
	}
	g := newGate(t, st)
	ctx := context.Background()

	if _, err := g.Authorize(ctx, gate.LockApp, "1111"); err != nil {
		t.Fatalf("app authorize: %v", err)
	}
	if _, err := g.Authorize(ctx, gate.LockFile, "1111"); !errors.Is(err, fault.ErrCredentialDenied) {
		t.Fatalf("app PIN must not open the file lock, got %v", err)
	}
}

func TestAuthorize_NoCaching(t *testing.T) {
	st := &fakeStore{
		cfg:  types.LockConfig{FileLockEnabled: true},
		pins: map[string]string{"file": "2222"},
	}
	g := newGate(t, st)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.Authorize(ctx, gate.LockFile, "2222"); err != nil {
			t.Fatalf("authorize %d: %v", i, err)
		}
	}
	if st.calls != 3 {
		t.Errorf("expected 3 verify calls, got %d", st.calls)
	}
}

func TestAuthorize_TransportFailureIsNotADenial(t *testing.T) {
	st := &fakeStore{cfg: types.LockConfig{FileLockEnabled: true}}
	g := newGate(t, st)
	st.failWith = fault.ErrServiceUnavailable

	_, err := g.Authorize(context.Background(), gate.LockFile, "2222")
	if !errors.Is(err, fault.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if errors.Is(err, fault.ErrCredentialDenied) {
		t.Error("transport failure must not read as a denial")
	}
}

func TestAuthorize_UnknownLockRejectedWithoutRoundTrip(t *testing.T) {
	st := &fakeStore{}
	g := newGate(t, st)

	_, err := g.Authorize(context.Background(), gate.Lock("vault"), "x")
	if !errors.Is(err, fault.ErrCredentialDenied) {
		t.Fatalf("expected ErrCredentialDenied, got %v", err)
	}
	if st.calls != 0 {
		t.Errorf("expected no verify call, got %d", st.calls)
	}
}

func TestRefresh_FailureKeepsPreviousPolicy(t *testing.T) {
	st := &fakeStore{cfg: types.LockConfig{FileLockEnabled: true}}
	g := newGate(t, st)

	st.failWith = errors.New("boom")
	if err := g.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if !g.IsGateRequired(gate.LockFile) {
		t.Error("expected previous policy to survive a failed refresh")
	}
}

func TestParseLock(t *testing.T) {
	if l, err := gate.ParseLock(" FILE "); err != nil || l != gate.LockFile {
		t.Errorf("ParseLock(FILE) = %q, %v", l, err)
	}
	if _, err := gate.ParseLock("door"); err == nil {
		t.Error("expected error for unknown lock")
	}
}
