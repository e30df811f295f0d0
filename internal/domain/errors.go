package domain

import "errors"

// Error kinds surfaced by the repository and exporter. Callers match them
// with errors.Is; the wrapped message carries the artifact name and cause.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrHandleClosed       = errors.New("handle closed")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrNotFound           = errors.New("not found")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrExportFailed       = errors.New("export failed")
	ErrInvalidName        = errors.New("invalid name")
)
