package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/shaw77735-web/JuteVisionAudit/internal/db"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

type VerifyEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewVerifyEventStore(db *sql.DB, writer *dbpkg.Worker) *VerifyEventStore {
	return &VerifyEventStore{db: db, writer: writer}
}

func (s *VerifyEventStore) RecordVerifyEvent(ctx context.Context, rec store.VerifyEventRecord) error {
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO verify_events(lock_name, decision_granted, decision_reason, decided_at_ms)
VALUES (?, ?, ?, ?);
`,
			rec.Lock, boolInt(rec.Granted), rec.Reason, rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("RecordVerifyEvent insert: %w", err)
		}
		return nil
	})
}
