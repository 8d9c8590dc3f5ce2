package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/shaw77735-web/JuteVisionAudit/internal/db"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

type SettingsStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewSettingsStore(db *sql.DB, writer *dbpkg.Worker) *SettingsStore {
	return &SettingsStore{db: db, writer: writer}
}

func (s *SettingsStore) LoadSettings(ctx context.Context) (store.SettingsRecord, error) {
	var (
		rec         store.SettingsRecord
		appEnabled  int
		fileEnabled int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT app_pin_enabled, file_pin_enabled, app_pin_hash, file_pin_hash
FROM settings
WHERE id = 1;
`).Scan(&appEnabled, &fileEnabled, &rec.AppPINHash, &rec.FilePINHash)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SettingsRecord{}, nil
	}
	if err != nil {
		return store.SettingsRecord{}, fmt.Errorf("LoadSettings query: %w", err)
	}

	rec.AppLockEnabled = appEnabled == 1
	rec.FileLockEnabled = fileEnabled == 1
	return rec, nil
}

func (s *SettingsStore) SaveSettings(ctx context.Context, rec store.SettingsRecord) error {
	nowMs := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO settings(
  id, app_pin_enabled, file_pin_enabled, app_pin_hash, file_pin_hash, updated_at_ms
) VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  app_pin_enabled  = excluded.app_pin_enabled,
  file_pin_enabled = excluded.file_pin_enabled,
  app_pin_hash     = excluded.app_pin_hash,
  file_pin_hash    = excluded.file_pin_hash,
  updated_at_ms    = excluded.updated_at_ms;
`,
			boolInt(rec.AppLockEnabled), boolInt(rec.FileLockEnabled),
			rec.AppPINHash, rec.FilePINHash, nowMs,
		); err != nil {
			return fmt.Errorf("SaveSettings upsert: %w", err)
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
