package types

// AuditStatus is the lifecycle state of an audit session.
type AuditStatus string

const (
	StatusIdle      AuditStatus = "idle"
	StatusScanning  AuditStatus = "scanning"
	StatusAnalyzing AuditStatus = "analyzing"
	StatusComplete  AuditStatus = "complete"
	StatusError     AuditStatus = "error"
)

// Valid reports whether s is one of the five lifecycle states.
func (s AuditStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusScanning, StatusAnalyzing, StatusComplete, StatusError:
		return true
	}
	return false
}

// Active reports whether a scan is in progress.
func (s AuditStatus) Active() bool {
	return s == StatusScanning || s == StatusAnalyzing
}

// Metrics is the Detection Service's view of the running audit, as
// returned by GET /api/metrics and by every lifecycle command.
type Metrics struct {
	Status             AuditStatus `json:"audit_status"`
	ProgressPercent    int         `json:"audit_progress"`
	EstimatedWeightKg  float64     `json:"estimated_weight_kg"`
	CumulativeWeightKg float64     `json:"total_jute_scanned_kg"`
	DetectionCount     int         `json:"detection_count"`
	Confidence         float64     `json:"confidence"`
}

// FrameMetrics are the detection metrics for a single frame or image.
type FrameMetrics struct {
	WeightKg       float64 `json:"weight_kg"`
	DetectionCount int     `json:"detection_count"`
	Confidence     float64 `json:"confidence"`
}

type StatusResponse struct {
	Status AuditStatus `json:"audit_status"`
}
