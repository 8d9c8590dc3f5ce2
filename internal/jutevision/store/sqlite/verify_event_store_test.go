package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
	sqlitestore "github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store/sqlite"
)

func TestVerifyEventStore_RecordsRow(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewVerifyEventStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	decided := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := es.RecordVerifyEvent(ctx, store.VerifyEventRecord{
		Lock:      "file",
		Granted:   false,
		Reason:    "pin_mismatch",
		DecidedAt: decided,
	}); err != nil {
		t.Fatalf("RecordVerifyEvent: %v", err)
	}

	var (
		lock      string
		granted   int
		reason    string
		decidedMs int64
	)
	err := conn.QueryRowContext(ctx, `
SELECT lock_name, decision_granted, decision_reason, decided_at_ms FROM verify_events;
`).Scan(&lock, &granted, &reason, &decidedMs)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if lock != "file" || granted != 0 || reason != "pin_mismatch" {
		t.Errorf("unexpected row lock=%s granted=%d reason=%s", lock, granted, reason)
	}
	if decidedMs != decided.UnixMilli() {
		t.Errorf("expected decided_at_ms=%d, got %d", decided.UnixMilli(), decidedMs)
	}
}

func TestVerifyEventStore_RejectsUnknownLock(t *testing.T) {
	conn := openTestDB(t)
	es := sqlitestore.NewVerifyEventStore(conn, newTestWriter(t, conn))

	err := es.RecordVerifyEvent(context.Background(), store.VerifyEventRecord{Lock: "vault", Reason: "x"})
	if err == nil {
		t.Fatal("expected CHECK constraint failure for unknown lock")
	}
}
