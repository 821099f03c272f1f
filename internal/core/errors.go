package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this module wraps exactly one of them.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failure")
)

var (
	ErrNegativeAmount     = fmt.Errorf("%w: negative amount", ErrInvalidInput)
	ErrInvalidAmount      = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrInvalidCadence     = fmt.Errorf("%w: invalid cadence", ErrInvalidInput)
	ErrInvalidDate        = fmt.Errorf("%w: invalid date", ErrInvalidInput)
	ErrInvalidMonth       = fmt.Errorf("%w: invalid month", ErrInvalidInput)
	ErrInvalidFileKind    = fmt.Errorf("%w: invalid file kind", ErrInvalidInput)
	ErrEmptyName          = fmt.Errorf("%w: empty name", ErrInvalidInput)
	ErrEmptyCategory      = fmt.Errorf("%w: empty category", ErrInvalidInput)
	ErrEmptyOwner         = fmt.Errorf("%w: empty owner", ErrInvalidInput)
	ErrTooManyOccurrences = fmt.Errorf("%w: too many occurrences", ErrInvalidInput)
	ErrUnknownBlob        = fmt.Errorf("%w: unknown storage id", ErrInvalidInput)
)

// Persistence wraps a collaborator failure so callers can classify it.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Kind returns the error kind name used in logs and API envelopes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
