package config

import "errors"

var (
	// ErrNotFound is returned when a requested resource does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert violates a unique constraint.
	ErrConflict = errors.New("already exists")

	// ErrAmbiguous is returned when a lookup meant to name one row matches
	// several.
	ErrAmbiguous = errors.New("matches more than one record")
)
