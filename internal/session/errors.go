package session

import "errors"

var (
	// ErrSessionNotFound is returned by directory operations referencing an
	// unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned by CreateSession when the id is already
	// registered.
	ErrSessionExists = errors.New("session already exists")
)
