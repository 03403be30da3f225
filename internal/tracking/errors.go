package tracking

import (
	"errors"

	"github.com/bustracking/bustracking/internal/api/models"
)

var (
	// ErrTripNotFound is returned when the backend has no record of the trip.
	ErrTripNotFound = errors.New("trip not found")

	// ErrTripNotActive is returned when an operation needs a tracked trip and there is none.
	ErrTripNotActive = errors.New("trip is not being tracked")

	// ErrNoRecipients is returned when a broadcast resolves to zero tokens.
	ErrNoRecipients = errors.New("no recipient tokens found")
)

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
