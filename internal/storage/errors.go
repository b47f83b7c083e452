package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested record does not exist
// (or, for session records, has already expired).
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidTransition is returned by TicketStore.UpdateStatus when the
// requested status change would move a ticket backwards in its lifecycle.
var ErrInvalidTransition = errors.New("storage: invalid ticket status transition")

// DimensionError is returned when a vector does not match the dimensionality
// the index was configured with.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("storage: vector dimension mismatch: want %d, got %d", e.Want, e.Got)
}
