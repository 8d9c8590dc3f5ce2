package httpapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

// ── Metrics ──────────────────────────────────────────────────────────────────

// metricsToProto carries the JSON field names so either encoding decodes
// into the same client type.
func metricsToProto(m types.Metrics) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"audit_status":          string(m.Status),
		"audit_progress":        m.ProgressPercent,
		"estimated_weight_kg":   m.EstimatedWeightKg,
		"total_jute_scanned_kg": m.CumulativeWeightKg,
		"detection_count":       m.DetectionCount,
		"confidence":            m.Confidence,
	})
}

// ── Generic bodies ───────────────────────────────────────────────────────────

// structToJSON round-trips a Struct through JSON into v. Numbers arrive
// as float64, so integer fields must hold whole values.
func structToJSON(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("struct to json: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("struct to json: %w", err)
	}
	return nil
}
