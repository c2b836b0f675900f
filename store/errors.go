package store

import "errors"

var (
	// ErrNotInitialized is returned by Instance when no connection has
	// been constructed yet.
	ErrNotInitialized = errors.New("pergola: connection not initialized")

	// ErrDuplicateCallback is returned when the exact same callback
	// reference is registered twice.
	ErrDuplicateCallback = errors.New("pergola: callback already registered")

	// ErrInvalidCallback is returned when a nil callback is registered.
	ErrInvalidCallback = errors.New("pergola: callback is not callable")

	// ErrNotFound is returned when no document matches a fetch.
	ErrNotFound = errors.New("pergola: document not found")
)
