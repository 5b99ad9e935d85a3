package docstore

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not_found")
	ErrAlreadyExists    = errors.New("already_exists")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrPermissionDenied = errors.New("permission_denied")
	ErrBatchTooLarge    = errors.New("batch_too_large")
	ErrEmptyBatch       = errors.New("empty_batch")
	ErrClosed           = errors.New("store_closed")
	ErrUnavailable      = errors.New("store_unavailable")
)

// ChunkError reports a failed chunk of a chunked write. Chunks before Index committed.
type ChunkError struct {
	Index     int
	Total     int
	Committed int
	Err       error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d failed after %d committed: %v", e.Index+1, e.Total, e.Committed, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

func invalidRef(path string) error {
	return fmt.Errorf("%w: %q", ErrInvalidReference, path)
}
