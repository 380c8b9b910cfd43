package service

import "errors"

// The façade's error taxonomy. Handlers map these to status codes with
// errors.Is; anything else is a store failure and surfaces generically.
var (
	// ErrNoIdentity means the request carried no caller identity at all.
	// It is a precondition failure and never reaches the ownership check.
	ErrNoIdentity = errors.New("caller identity required")

	// ErrNotFound covers both a genuinely absent entity and an entity
	// owned by a different user. Collapsing the two keeps resource ids
	// from leaking across accounts.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is malformed input caught before any store access.
	ErrInvalidInput = errors.New("invalid input")
)
