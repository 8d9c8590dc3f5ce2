// Package report renders a finished audit as a JSON or YAML document for
// filing alongside the inspection paperwork.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/session"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q: must be json or yaml", s)
}

type Metrics struct {
	Status             string  `json:"status" yaml:"status"`
	ProgressPercent    int     `json:"progress_percent" yaml:"progress_percent"`
	EstimatedWeightKg  float64 `json:"estimated_weight_kg" yaml:"estimated_weight_kg"`
	CumulativeWeightKg float64 `json:"total_jute_scanned_kg" yaml:"total_jute_scanned_kg"`
	DetectionCount     int     `json:"detection_count" yaml:"detection_count"`
	Confidence         float64 `json:"confidence" yaml:"confidence"`
}

type Report struct {
	Inspector   string    `json:"inspector" yaml:"inspector"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Metrics     Metrics   `json:"metrics" yaml:"metrics"`
	Grade       string    `json:"grade" yaml:"grade"`
	Compliance  string    `json:"compliance" yaml:"compliance"`
	Reason      string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Build grades snap and packages it for export.
func Build(inspector string, snap session.AuditSession, at time.Time) Report {
	v := session.Classify(snap)
	if inspector = strings.TrimSpace(inspector); inspector == "" {
		inspector = "unknown"
	}
	return Report{
		Inspector:   inspector,
		GeneratedAt: at.UTC(),
		Metrics: Metrics{
			Status:             string(snap.Status),
			ProgressPercent:    snap.ProgressPercent,
			EstimatedWeightKg:  snap.EstimatedWeightKg,
			CumulativeWeightKg: snap.CumulativeWeightKg,
			DetectionCount:     snap.DetectionCount,
			Confidence:         snap.Confidence,
		},
		Grade:      string(v.Grade),
		Compliance: string(v.Status()),
		Reason:     v.Reason,
	}
}

func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unknown report format %q", f)
}
