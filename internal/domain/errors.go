package domain

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Sentinel errors shared by the stores, the Roblox client and the wizards.
// Each wraps an errdefs class so callers may test either.
var (
	ErrBindConflict        = fmt.Errorf("binding already exists: %w", errdefs.ErrConflict)
	ErrExternalNotFound    = fmt.Errorf("external entity not found: %w", errdefs.ErrNotFound)
	ErrExternalUnavailable = fmt.Errorf("external service unavailable: %w", errdefs.ErrUnavailable)
	ErrTooManyPending      = fmt.Errorf("too many pending bindings: %w", errdefs.ErrResourceExhausted)
)

// EntityNotFoundError reports a Roblox entity that does not exist.
type EntityNotFoundError struct {
	Kind EntityKind
	ID   int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *EntityNotFoundError) Unwrap() error { return ErrExternalNotFound }

// AsEntityNotFound extracts an EntityNotFoundError from err.
func AsEntityNotFound(err error) (*EntityNotFoundError, bool) {
	var nf *EntityNotFoundError
	if errors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}
