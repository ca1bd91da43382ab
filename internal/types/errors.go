package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing input file.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMedia marks an undecodable or zero-length clip.
	ErrInvalidMedia = errors.New("invalid media")
	// ErrEncode marks a failed render or write.
	ErrEncode = errors.New("encode failed")
	// ErrJobIncomplete marks a remote job that ended in any state but COMPLETED.
	ErrJobIncomplete = errors.New("job did not complete")
)

// ProviderError is a non-2xx answer from a remote provider.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Provider, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
}
