package cli

import (
	"fmt"
	"io"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/compliance"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/session"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

func printSession(w io.Writer, s session.AuditSession) {
	fmt.Fprintf(w, "Status:      %s (%d%%)\n", s.Status, s.ProgressPercent)
	fmt.Fprintf(w, "Estimate:    %.1f kg  (%d bales, confidence %.0f%%)\n",
		s.EstimatedWeightKg, s.DetectionCount, s.Confidence*100)
	fmt.Fprintf(w, "Scanned:     %.1f kg total\n", s.CumulativeWeightKg)
}

func printVerdict(w io.Writer, v compliance.Verdict) {
	if v.Reason == "" {
		fmt.Fprintf(w, "Grade:       %s  %s\n", v.Grade, v.Status())
		return
	}
	fmt.Fprintf(w, "Grade:       %s  %s (%s)\n", v.Grade, v.Status(), v.Reason)
}

func printFrame(w io.Writer, m types.FrameMetrics) {
	fmt.Fprintf(w, "Estimate:    %.1f kg  (%d bales, confidence %.0f%%)\n",
		m.WeightKg, m.DetectionCount, m.Confidence*100)
}

// watchLine is the single-line form used by watch.
func watchLine(s session.AuditSession, v compliance.Verdict) string {
	return fmt.Sprintf("%-9s %3d%%  est %6.1f kg  total %7.1f kg  bales %3d  conf %3.0f%%  grade %s %s",
		s.Status, s.ProgressPercent, s.EstimatedWeightKg, s.CumulativeWeightKg,
		s.DetectionCount, s.Confidence*100, v.Grade, v.Status())
}
