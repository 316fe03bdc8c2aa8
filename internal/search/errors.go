package search

import (
	"errors"
	"fmt"
	"strings"
)

const (
	genericFailure = "Search failed"
	networkFailure = "Network error. Please check your connection and try again."
	timeoutFailure = "Search timed out. Please try again."
)

var (
	// ErrShapeMismatch marks a successful response whose body carries no
	// recognizable listings field.
	ErrShapeMismatch = errors.New("search response has no rides field")
	// ErrUnreachable marks a transport failure before any byte reached the
	// server (dial or name resolution).
	ErrUnreachable = errors.New("search endpoint unreachable")
	// ErrClosed is returned by mutators after Close.
	ErrClosed = errors.New("search coordinator closed")
)

// ServerError is a non-success HTTP status from the search endpoint.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return fmt.Sprintf("Server returned %d", e.Status)
}

// NetworkError is a transport failure after the endpoint was reached.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// failureMessage renders err as the text shown in a Failed state.
func failureMessage(err error) string {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Error()
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return networkFailure
	}
	return genericFailure
}

// fallbackEligible reports whether err should be answered with a placeholder
// page instead of a failure.
func fallbackEligible(err error) bool {
	return errors.Is(err, ErrShapeMismatch) || errors.Is(err, ErrUnreachable)
}
