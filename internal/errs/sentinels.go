// Package errs contains sentinel and typed errors shared by the session,
// store and compute layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client layers.
var (
	// ErrNotFound indicates the requested entity does not exist on the server.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the server rejected the credentials or token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotLoggedIn indicates an authenticated call was attempted without a session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrTokenExpired indicates a persisted token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrNoPatientSelected indicates a diagnosis operation without a selected patient.
	ErrNoPatientSelected = errors.New("no patient selected")

	// ErrPatientMismatch indicates a diagnosis that belongs to another patient than the selected one.
	ErrPatientMismatch = errors.New("diagnosis belongs to another patient")

	// ErrSuperseded indicates an operation whose result was discarded because a newer one replaced it.
	ErrSuperseded = errors.New("superseded")
)
