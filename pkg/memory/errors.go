package memory

import "errors"

// Sentinel errors for the memory store.
var (
	ErrNotFound          = errors.New("memory: record not found")
	ErrTagNotFound       = errors.New("memory: tag not found")
	ErrEmptyContent      = errors.New("memory: content cannot be empty")
	ErrInvalidImportance = errors.New("memory: importance must be in [0,1]")
	ErrStoreUnavailable  = errors.New("memory: record store unavailable")
)
