// Package apperrors holds the sentinel errors shared across the engine.
// Callers match them with errors.Is; producers wrap them with %w.
package apperrors

import "errors"

var (
	// ErrInvalidInput marks caller mistakes such as mixed labels or bad flags.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned by stores when a keyed record is absent.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientData means there were not enough occurrences to fit anything.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnknownState means a (label, cluster) lookup hit a state with no model.
	ErrUnknownState = errors.New("unknown state")
	// ErrNoPathToAbsorption means some transient state can never reach the target.
	ErrNoPathToAbsorption = errors.New("no path to absorption")
	// ErrMalformedModel means a model is missing fields or has mismatched dimensions.
	ErrMalformedModel = errors.New("malformed model")
)
