package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/service"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/memory"
)

// ── SetPIN ───────────────────────────────────────────────────────────────────

func TestSetPIN_EnableRequiresPIN(t *testing.T) {
	svc, _ := newSettings(t)

	err := svc.SetPIN(context.Background(), "file", true, "")
	if !errors.Is(err, service.ErrPINRequired) {
		t.Fatalf("expected ErrPINRequired, got %v", err)
	}
}

func TestSetPIN_UnknownLock(t *testing.T) {
	svc, _ := newSettings(t)

	err := svc.SetPIN(context.Background(), "door", true, "1234")
	if !errors.Is(err, service.ErrUnknownLock) {
		t.Fatalf("expected ErrUnknownLock, got %v", err)
	}
}

func TestSetPIN_StoresBcryptNotPlaintext(t *testing.T) {
	st := memory.NewSettingsStore()
	svc := service.NewSettingsService(st, nil, service.SettingsOptions{HashCost: bcrypt.MinCost})
	ctx := context.Background()

	if err := svc.SetPIN(ctx, "app", true, "1234"); err != nil {
		t.Fatalf("SetPIN: %v", err)
	}
	rec, _ := st.LoadSettings(ctx)
	if !rec.AppLockEnabled {
		t.Error("expected app lock enabled")
	}
	if !strings.HasPrefix(rec.AppPINHash, "$2") || strings.Contains(rec.AppPINHash, "1234") {
		t.Errorf("unexpected hash %q", rec.AppPINHash)
	}

	cfg, err := svc.LockConfig(ctx)
	if err != nil {
		t.Fatalf("LockConfig: %v", err)
	}
	if !cfg.AppLockEnabled || cfg.FileLockEnabled {
		t.Errorf("unexpected lock config %+v", cfg)
	}
}

func TestSetPIN_DisableKeepsHash(t *testing.T) {
	st := memory.NewSettingsStore()
	svc := service.NewSettingsService(st, nil, service.SettingsOptions{HashCost: bcrypt.MinCost})
	ctx := context.Background()

	if err := svc.SetPIN(ctx, "file", true, "2468"); err != nil {
		t.Fatal(err)
	}
	before, _ := st.LoadSettings(ctx)
	if err := svc.SetPIN(ctx, "file", false, ""); err != nil {
		t.Fatal(err)
	}
	after, _ := st.LoadSettings(ctx)
	if after.FileLockEnabled {
		t.Error("expected file lock disabled")
	}
	if after.FilePINHash != before.FilePINHash {
		t.Error("disabling must keep the stored hash")
	}
}

// ── Verify ───────────────────────────────────────────────────────────────────

func TestVerify_DisabledLockAcceptsAnything(t *testing.T) {
	svc, events := newSettings(t)

	ok, err := svc.Verify(context.Background(), "file", "")
	if err != nil || !ok {
		t.Fatalf("expected valid, got %v, %v", ok, err)
	}
	evs := events.Events()
	if len(evs) != 1 || evs[0].Reason != "lock_disabled" || !evs[0].Granted {
		t.Errorf("unexpected events %+v", evs)
	}
}

func TestVerify_EnabledWithoutHashAcceptsAnything(t *testing.T) {
	st := memory.NewSettingsStore()
	_ = st.SaveSettings(context.Background(), store.SettingsRecord{FileLockEnabled: true})
	svc := service.NewSettingsService(st, nil, service.SettingsOptions{})

	ok, err := svc.Verify(context.Background(), "file", "anything")
	if err != nil || !ok {
		t.Fatalf("expected valid, got %v, %v", ok, err)
	}
}

func TestVerify_MatchAndMismatch(t *testing.T) {
	svc, events := newSettings(t)
	ctx := context.Background()
	if err := svc.SetPIN(ctx, "file", true, "2468"); err != nil {
		t.Fatal(err)
	}

	if ok, err := svc.Verify(ctx, "file", "2468"); err != nil || !ok {
		t.Errorf("expected match, got %v, %v", ok, err)
	}
	if ok, err := svc.Verify(ctx, "file", "1111"); err != nil || ok {
		t.Errorf("expected mismatch, got %v, %v", ok, err)
	}
	// The app lock is independent and still disabled.
	if ok, _ := svc.Verify(ctx, "app", "1111"); !ok {
		t.Error("expected disabled app lock to verify")
	}

	evs := events.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	if evs[0].Reason != "pin_ok" || evs[1].Reason != "pin_mismatch" || evs[1].Granted {
		t.Errorf("unexpected events %+v", evs)
	}
}

func TestVerify_LegacyHashUpgradedToBcrypt(t *testing.T) {
	st := memory.NewSettingsStore()
	ctx := context.Background()
	// sha256("1234")
	legacy := "03ac674216f3e15c761ee1a5e255f067953623c8b388b4459e13f978d7c846f4"
	_ = st.SaveSettings(ctx, store.SettingsRecord{FileLockEnabled: true, FilePINHash: legacy})
	svc := service.NewSettingsService(st, nil, service.SettingsOptions{HashCost: bcrypt.MinCost})

	if ok, _ := svc.Verify(ctx, "file", "0000"); ok {
		t.Fatal("expected mismatch against legacy hash")
	}
	if ok, err := svc.Verify(ctx, "file", "1234"); err != nil || !ok {
		t.Fatalf("expected legacy match, got %v, %v", ok, err)
	}

	rec, _ := st.LoadSettings(ctx)
	if !strings.HasPrefix(rec.FilePINHash, "$2") {
		t.Errorf("expected hash upgraded to bcrypt, got %q", rec.FilePINHash)
	}
	if ok, _ := svc.Verify(ctx, "file", "1234"); !ok {
		t.Error("expected upgraded hash to verify")
	}
}

func TestVerify_RateLimited(t *testing.T) {
	events := memory.NewVerifyEventStore()
	svc := service.NewSettingsService(memory.NewSettingsStore(), events, service.SettingsOptions{
		VerifyBurst:    2,
		VerifyInterval: time.Hour,
		HashCost:       bcrypt.MinCost,
	})
	ctx := context.Background()
	if err := svc.SetPIN(ctx, "file", true, "2468"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Verify(ctx, "file", "0000"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	_, err := svc.Verify(ctx, "file", "2468")
	if !errors.Is(err, service.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	// Disabled locks do not spend attempts.
	if ok, err := svc.Verify(ctx, "app", ""); err != nil || !ok {
		t.Errorf("expected disabled app lock to verify, got %v, %v", ok, err)
	}
}

func TestVerify_UnknownLock(t *testing.T) {
	svc, _ := newSettings(t)

	if _, err := svc.Verify(context.Background(), "vault", "1"); !errors.Is(err, service.ErrUnknownLock) {
		t.Fatalf("expected ErrUnknownLock, got %v", err)
	}
}

func TestAllow_MapsMismatchToInvalidPIN(t *testing.T) {
	svc, _ := newSettings(t)
	ctx := context.Background()
	if err := svc.SetPIN(ctx, "file", true, "2468"); err != nil {
		t.Fatal(err)
	}

	if err := svc.Allow(ctx, "file", "1"); !errors.Is(err, service.ErrInvalidPIN) {
		t.Errorf("expected ErrInvalidPIN, got %v", err)
	}
	if err := svc.Allow(ctx, "file", "2468"); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}
