package service

import (
	"errors"
	"fmt"

	"tablebook/internal/models"
)

// ErrPersistence marks failures of the slot store. Callers see an opaque error.
var ErrPersistence = errors.New("slot store unavailable")

var (
	ErrEmptyRequest = errors.New("booking request has no slots")
	ErrNoHolder     = errors.New("booking holder is required")
)

// ConflictMessage is shown to callers who lost a slot to someone else.
const ConflictMessage = "Booking failed, someone got there first!"

// ConflictError is returned when a requested slot is held by another holder.
// View is the shared view at the time of the conflict.
type ConflictError struct {
	Slot models.SlotKey
	View models.SharedView
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("table %d on %s at %s is already booked", e.Slot.Table, e.Slot.Date, e.Slot.Interval.Clock())
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
