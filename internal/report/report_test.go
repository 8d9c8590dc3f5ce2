package report_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/session"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
	"github.com/shaw77735-web/JuteVisionAudit/internal/report"
)

var at = time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

func TestBuild_GradesSnapshot(t *testing.T) {
	snap := session.AuditSession{
		Status:             types.StatusComplete,
		ProgressPercent:    100,
		EstimatedWeightKg:  8.0,
		CumulativeWeightKg: 42.3,
		DetectionCount:     6,
		Confidence:         0.9,
	}

	r := report.Build("  R. Das ", snap, at)
	if r.Inspector != "R. Das" {
		t.Errorf("unexpected inspector %q", r.Inspector)
	}
	if r.Grade != "C" || r.Compliance != "COMPLIANT" {
		t.Errorf("unexpected verdict %s/%s", r.Grade, r.Compliance)
	}
	if r.Metrics.CumulativeWeightKg != 42.3 {
		t.Errorf("unexpected metrics %+v", r.Metrics)
	}
}

func TestBuild_EmptyInspector(t *testing.T) {
	r := report.Build("", session.AuditSession{Status: types.StatusIdle}, at)
	if r.Inspector != "unknown" {
		t.Errorf("expected placeholder inspector, got %q", r.Inspector)
	}
	if r.Compliance != "NON_COMPLIANT" || r.Reason == "" {
		t.Errorf("expected failing verdict with reason, got %+v", r)
	}
}

func TestWrite_JSONAndYAMLCarrySameFields(t *testing.T) {
	r := report.Build("inspector-7", session.AuditSession{
		Status:            types.StatusComplete,
		EstimatedWeightKg: 25,
		DetectionCount:    6,
		Confidence:        0.9,
	}, at)

	var jbuf, ybuf bytes.Buffer
	if err := report.Write(&jbuf, r, report.FormatJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if err := report.Write(&ybuf, r, report.FormatYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}

	var fromJSON, fromYAML map[string]any
	if err := json.Unmarshal(jbuf.Bytes(), &fromJSON); err != nil {
		t.Fatal(err)
	}
	if err := yaml.Unmarshal(ybuf.Bytes(), &fromYAML); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"inspector", "generated_at", "metrics", "grade", "compliance"} {
		if _, ok := fromJSON[key]; !ok {
			t.Errorf("json missing %s", key)
		}
		if _, ok := fromYAML[key]; !ok {
			t.Errorf("yaml missing %s", key)
		}
	}
	if fromYAML["grade"] != "A" || fromJSON["grade"] != "A" {
		t.Errorf("unexpected grades json=%v yaml=%v", fromJSON["grade"], fromYAML["grade"])
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]report.Format{"": report.FormatJSON, "JSON": report.FormatJSON, "yml": report.FormatYAML} {
		got, err := report.ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := report.ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}
