package qbound

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors
var (
	ErrInvalidGraph    = errors.New("invalid graph")
	ErrStorageCorrupt  = errors.New("storage artifact corrupt")
	ErrNotFound        = errors.New("graph not found")
	ErrBadStoreParam   = errors.New("bad store param")
	ErrBadCatalogParam = errors.New("bad catalog param")
	ErrUnmarshal       = errors.New("unmarshal failed")
	ErrSeedNotFound    = errors.New("seed artifact not found")
	ErrBadStratum      = errors.New("stratum out of range")
)

// InvalidGraphError is returned for graphs the system cannot catalog: too many vertices, loops, malformed encodings,
// or a disconnected graph where a connected one is required.
type InvalidGraphError struct {
	Reason   string
	Vertices int
}

func (e *InvalidGraphError) Error() string {
	if e.Vertices > 0 {
		return fmt.Sprintf("invalid graph (%d vertices): %s", e.Vertices, e.Reason)
	}
	return "invalid graph: " + e.Reason
}

func (e *InvalidGraphError) Is(target error) bool {
	return target == ErrInvalidGraph
}

// InvalidGraph is shorthand for a *InvalidGraphError.
func InvalidGraph(numVerts int, format string, args ...any) error {
	return &InvalidGraphError{
		Reason:   fmt.Sprintf(format, args...),
		Vertices: numVerts,
	}
}

// StorageCorruptionError reports an artifact file that exists but could not be decoded.
type StorageCorruptionError struct {
	Path string
	Err  error
}

func (e *StorageCorruptionError) Error() string {
	return fmt.Sprintf("corrupt artifact %s: %v", e.Path, e.Err)
}

func (e *StorageCorruptionError) Unwrap() error {
	return e.Err
}

func (e *StorageCorruptionError) Is(target error) bool {
	return target == ErrStorageCorrupt
}
