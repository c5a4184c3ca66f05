package store

import "errors"

var (
	// ErrNotFound indicates the requested device config does not exist.
	ErrNotFound = errors.New("store: device config not found")

	// ErrInvalidConfig indicates a config failed validation.
	ErrInvalidConfig = errors.New("store: invalid device config")

	// ErrInvalidBackup indicates a backup contained no restorable configs.
	ErrInvalidBackup = errors.New("store: backup contains no valid device configs")
)
