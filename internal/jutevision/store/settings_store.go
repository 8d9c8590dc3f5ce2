package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SettingsRecord is the credential store's persisted state. Hashes are
// bcrypt, or legacy hex SHA-256 written by older settings files; an empty
// hash means no PIN has been set.
type SettingsRecord struct {
	AppLockEnabled  bool   `json:"app_pin_enabled"`
	FileLockEnabled bool   `json:"file_pin_enabled"`
	AppPINHash      string `json:"app_pin_hash"`
	FilePINHash     string `json:"file_pin_hash"`
}

// SettingsStore loads and saves the single settings record. Load on an
// empty store returns the zero record (both locks disabled).
type SettingsStore interface {
	LoadSettings(ctx context.Context) (SettingsRecord, error)
	SaveSettings(ctx context.Context, rec SettingsRecord) error
}
