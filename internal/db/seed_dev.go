package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// Hashes to preinstall. An empty hash leaves that lock disabled.
	AppPINHash  string
	FilePINHash string
}

// SeedDev enables the dev locks on a settings row nobody has saved yet
// (updated_at_ms still 0). Settings changed through the API are never
// overwritten.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) (bool, error) {
	if opt.AppPINHash == "" && opt.FilePINHash == "" {
		return false, nil
	}
	now := time.Now().UTC().UnixMilli()

	res, err := db.ExecContext(ctx, `
UPDATE settings SET
  app_pin_enabled  = ?,
  app_pin_hash     = ?,
  file_pin_enabled = ?,
  file_pin_hash    = ?,
  updated_at_ms    = ?
WHERE id = 1 AND updated_at_ms = 0;`,
		boolInt(opt.AppPINHash != ""), opt.AppPINHash,
		boolInt(opt.FilePINHash != ""), opt.FilePINHash,
		now)
	if err != nil {
		return false, fmt.Errorf("seed settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed settings: %w", err)
	}
	return n == 1, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
