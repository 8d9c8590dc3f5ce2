package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/shaw77735-web/JuteVisionAudit/internal/db"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()
	dsn := db.DSN(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestSeedDev_EnablesLocksOnFreshSettings(t *testing.T) {
	conn := openMigrated(t)
	ctx := context.Background()

	seeded, err := db.SeedDev(ctx, conn, db.SeedDevOptions{FilePINHash: "hash-f"})
	if err != nil || !seeded {
		t.Fatalf("SeedDev = %v, %v", seeded, err)
	}

	var appOn, fileOn int
	var fileHash string
	row := conn.QueryRowContext(ctx, `SELECT app_pin_enabled, file_pin_enabled, file_pin_hash FROM settings WHERE id = 1`)
	if err := row.Scan(&appOn, &fileOn, &fileHash); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if appOn != 0 || fileOn != 1 || fileHash != "hash-f" {
		t.Errorf("unexpected settings app=%d file=%d hash=%q", appOn, fileOn, fileHash)
	}
}

func TestSeedDev_LeavesSavedSettingsAlone(t *testing.T) {
	conn := openMigrated(t)
	ctx := context.Background()

	if _, err := db.SeedDev(ctx, conn, db.SeedDevOptions{AppPINHash: "first"}); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	seeded, err := db.SeedDev(ctx, conn, db.SeedDevOptions{AppPINHash: "second"})
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if seeded {
		t.Error("expected second seed to be a no-op")
	}

	var hash string
	if err := conn.QueryRowContext(ctx, `SELECT app_pin_hash FROM settings WHERE id = 1`).Scan(&hash); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if hash != "first" {
		t.Errorf("expected first hash to survive, got %q", hash)
	}
}

func TestSeedDev_NothingToSeed(t *testing.T) {
	conn := openMigrated(t)

	seeded, err := db.SeedDev(context.Background(), conn, db.SeedDevOptions{})
	if err != nil || seeded {
		t.Fatalf("SeedDev = %v, %v", seeded, err)
	}
}
