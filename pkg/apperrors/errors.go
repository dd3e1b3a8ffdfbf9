package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrConnectionExists       = errors.New("project already has a connection for this platform")
	ErrSyncInProgress         = errors.New("a sync is already in progress for this connection")
	ErrPlatformNotSupported   = errors.New("platform kind not supported")
	ErrValidationFailed       = errors.New("credential validation failed")
	ErrCredentialsKeyMismatch = errors.New("connection secret was encrypted with a different key")
)
