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

type CaptureStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCaptureStore(db *sql.DB, writer *dbpkg.Worker) *CaptureStore {
	return &CaptureStore{db: db, writer: writer}
}

func (s *CaptureStore) SaveCapture(ctx context.Context, rec store.CaptureRecord, image []byte) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO captures(
  capture_id, kind, created_at_ms, content_type, size_bytes,
  weight_kg, detection_count, confidence, image
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, string(rec.Kind), rec.CreatedAt.UTC().UnixMilli(), rec.ContentType, len(image),
			rec.Metrics.WeightKg, rec.Metrics.DetectionCount, rec.Metrics.Confidence, image,
		); err != nil {
			return fmt.Errorf("SaveCapture insert: %w", err)
		}
		return nil
	})
}

func (s *CaptureStore) ListCaptures(ctx context.Context) ([]store.CaptureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT capture_id, kind, created_at_ms, content_type, size_bytes,
       weight_kg, detection_count, confidence
FROM captures
ORDER BY created_at_ms DESC, capture_id DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("ListCaptures query: %w", err)
	}
	defer rows.Close()

	var out []store.CaptureRecord
	for rows.Next() {
		rec, err := scanCapture(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ListCaptures scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCaptures rows: %w", err)
	}
	return out, nil
}

func (s *CaptureStore) GetCapture(ctx context.Context, id string) (store.CaptureRecord, []byte, error) {
	var image []byte
	row := s.db.QueryRowContext(ctx, `
SELECT capture_id, kind, created_at_ms, content_type, size_bytes,
       weight_kg, detection_count, confidence, image
FROM captures
WHERE capture_id = ?;
`, id)

	rec, err := scanCapture(func(dest ...any) error {
		return row.Scan(append(dest, &image)...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.CaptureRecord{}, nil, store.ErrNotFound
	}
	if err != nil {
		return store.CaptureRecord{}, nil, fmt.Errorf("GetCapture query: %w", err)
	}
	return rec, image, nil
}

// PruneOlderThan deletes captures created before cutoff and returns the
// number of rows removed.
func (s *CaptureStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM captures WHERE created_at_ms < ?;`,
			cutoff.UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("PruneOlderThan delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func scanCapture(scan func(dest ...any) error) (store.CaptureRecord, error) {
	var (
		rec       store.CaptureRecord
		kind      string
		createdMs int64
	)
	err := scan(
		&rec.ID, &kind, &createdMs, &rec.ContentType, &rec.Size,
		&rec.Metrics.WeightKg, &rec.Metrics.DetectionCount, &rec.Metrics.Confidence,
	)
	if err != nil {
		return store.CaptureRecord{}, err
	}
	rec.Kind = store.CaptureKind(kind)
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	return rec, nil
}
