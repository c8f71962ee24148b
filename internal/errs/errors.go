package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the remote API.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Is maps well-known statuses onto sentinels so callers can use errors.Is.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// AuthError is returned by login and logout.
type AuthError struct {
	Op  string // "login" or "logout"
	Err error
}

func (e *AuthError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// StoreError is returned by entity store operations.
type StoreError struct {
	Op     string // fetch, get, create, update, delete
	Entity string // patient, diagnosis, image
	ID     int64  // zero when not applicable
	Err    error
}

func (e *StoreError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}
func (e *StoreError) Unwrap() error { return e.Err }

// ComputeError is returned by remote image computations.
type ComputeError struct {
	Op  string // classify or segment
	Key string // content key of the input image
	Err error
}

func (e *ComputeError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ComputeError) Unwrap() error { return e.Err }

// Message returns a human-readable message for err suitable for display,
// preferring the server-provided text when available.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var he *HTTPError
	if errors.As(err, &he) && he.Message != "" {
		return he.Message
	}
	return err.Error()
}
