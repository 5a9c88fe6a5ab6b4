package experiment

import "errors"

var (
	// ErrInvalidOverrides is returned when an override names an unknown key or carries a value of the wrong type.
	ErrInvalidOverrides = errors.New("invalid config overrides")
	// ErrInvalidParams is returned when a resolved record violates a validation rule.
	ErrInvalidParams = errors.New("invalid experiment config")
	// ErrNoLayout is returned when the selected system has no directory layout registered.
	ErrNoLayout = errors.New("no directory layout for system")
)
