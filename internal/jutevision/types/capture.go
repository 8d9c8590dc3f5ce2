package types

type CaptureRequest struct {
	FilePIN string `json:"file_pin"`
}

type CaptureResponse struct {
	SavedAs string       `json:"saved_as"`
	Metrics FrameMetrics `json:"metrics"`
}

// UploadResponse is returned by POST /api/upload. SavedAs is set only when
// the upload was persisted.
type UploadResponse struct {
	AnnotatedBase64 string       `json:"annotated_base64"`
	Metrics         FrameMetrics `json:"metrics"`
	SavedAs         string       `json:"saved_as,omitempty"`
}

type SavedListResponse struct {
	Files []string `json:"files"`
}
