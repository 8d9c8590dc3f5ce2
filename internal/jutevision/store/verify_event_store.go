package store

import (
	"context"
	"time"
)

// VerifyEventRecord captures a single PIN verification decision for the
// audit log. The candidate PIN is never recorded.
type VerifyEventRecord struct {
	Lock      string
	Granted   bool
	Reason    string
	DecidedAt time.Time
}

// VerifyEventStore persists verification decisions as an append-only log.
type VerifyEventStore interface {
	RecordVerifyEvent(ctx context.Context, rec VerifyEventRecord) error
}
