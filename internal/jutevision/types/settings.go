package types

// LockConfig reports which locks are enabled. PIN hashes never leave the
// credential store.
type LockConfig struct {
	AppLockEnabled  bool `json:"app_pin_enabled"`
	FileLockEnabled bool `json:"file_pin_enabled"`
}

type SetPINRequest struct {
	Enabled bool   `json:"enabled"`
	PIN     string `json:"pin"`
}

type VerifyPINRequest struct {
	Lock string `json:"pin_type"`
	PIN  string `json:"pin"`
}

type VerifyPINResponse struct {
	Valid bool `json:"valid"`
}

// ErrorBody is the JSON error envelope of the HTTP API.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
