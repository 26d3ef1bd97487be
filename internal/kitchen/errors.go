package kitchen

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is matched by every *InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrTimeout is returned when a query exceeds the caller's budget.
	ErrTimeout = errors.New("query timed out")

	ErrUnknownLocation = errors.New("unknown location")
	ErrInvalidRange    = errors.New("invalid time range")
	ErrItemNotFound    = errors.New("inventory item not found")
)

// ValidationError describes why a single input record was rejected.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InsufficientDataError is returned by forecast models when the history is
// shorter than the configured minimum.
type InsufficientDataError struct {
	Have int `json:"have"`
	Need int `json:"need"`
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d samples, need %d", e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}
