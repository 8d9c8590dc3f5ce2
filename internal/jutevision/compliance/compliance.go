// Package compliance grades a metrics snapshot against the jute audit
// standard.
package compliance

import (
	"encoding/json"
	"fmt"
)

// Grade is a compliance grade. A > B > C > F.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeF Grade = "F"
)

func (g Grade) rank() int {
	switch g {
	case GradeA:
		return 3
	case GradeB:
		return 2
	case GradeC:
		return 1
	default:
		return 0
	}
}

// Compare returns -1, 0 or +1 when g is worse than, equal to, or better
// than other.
func (g Grade) Compare(other Grade) int {
	a, b := g.rank(), other.rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Status is the pass/fail half of a verdict.
type Status string

const (
	Compliant    Status = "COMPLIANT"
	NonCompliant Status = "NON_COMPLIANT"
)

// Thresholds of the grading cascade.
const (
	minWeightKg      = 5.0
	minConfidence    = 0.60
	minDetections    = 2
	gradeCWeightKg   = 10.0
	gradeCConfidence = 0.75
	gradeCDetections = 5
	gradeBWeightKg   = 20.0
	gradeBConfidence = 0.85
)

// Verdict is the graded outcome for one metrics snapshot. The compliance
// status is derived from Grade and never stored on its own.
type Verdict struct {
	Grade Grade
	// Reason names the first condition that capped the grade; empty for A.
	Reason string
}

// Status reports NON_COMPLIANT for grade F and COMPLIANT otherwise.
func (v Verdict) Status() Status {
	if v.Grade == GradeF {
		return NonCompliant
	}
	return Compliant
}

// Compliant is shorthand for Status() == Compliant.
func (v Verdict) Compliant() bool { return v.Status() == Compliant }

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Grade  Grade  `json:"grade"`
		Status Status `json:"status"`
		Reason string `json:"reason,omitempty"`
	}{v.Grade, v.Status(), v.Reason})
}

// Classify grades a snapshot. The rules are an ordered cascade checked
// from most to least restrictive; the first match wins, and only the
// first rule can fail a snapshot.
func Classify(weightKg, confidence float64, detectionCount int) Verdict {
	if weightKg < minWeightKg || confidence < minConfidence || detectionCount < minDetections {
		return Verdict{Grade: GradeF, Reason: capReason(weightKg, confidence, detectionCount,
			minWeightKg, minConfidence, minDetections)}
	} else if weightKg < gradeCWeightKg || confidence < gradeCConfidence || detectionCount < gradeCDetections {
		return Verdict{Grade: GradeC, Reason: capReason(weightKg, confidence, detectionCount,
			gradeCWeightKg, gradeCConfidence, gradeCDetections)}
	} else if weightKg < gradeBWeightKg || confidence < gradeBConfidence {
		return Verdict{Grade: GradeB, Reason: capReason(weightKg, confidence, detectionCount,
			gradeBWeightKg, gradeBConfidence, 0)}
	}
	return Verdict{Grade: GradeA}
}

func capReason(weightKg, confidence float64, detections int, wMin, cMin float64, dMin int) string {
	switch {
	case weightKg < wMin:
		return fmt.Sprintf("weight %.1fkg below %.0fkg", weightKg, wMin)
	case confidence < cMin:
		return fmt.Sprintf("confidence %.2f below %.2f", confidence, cMin)
	case detections < dMin:
		return fmt.Sprintf("%d detections below %d", detections, dMin)
	}
	return ""
}
