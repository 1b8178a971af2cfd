package chain

import "errors"

var (
	// ErrChainNotFound indicates no persisted chain matches the trace id.
	ErrChainNotFound = errors.New("chain: not found")

	// ErrEmptyQuery indicates an execution request with no query text.
	ErrEmptyQuery = errors.New("chain: query cannot be empty")
)
