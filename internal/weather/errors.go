package weather

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPlaceNotFound is returned when a location name resolves to no place.
	ErrPlaceNotFound = errors.New("no place found for location")

	// ErrServiceClosed is returned for requests issued after Close.
	ErrServiceClosed = errors.New("weather service closed")
)

// FetchErrorKind classifies gateway failures.
type FetchErrorKind int

const (
	FetchNetwork FetchErrorKind = iota + 1
	FetchHTTPStatus
	FetchSchemaViolation
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchNetwork:
		return "network"
	case FetchHTTPStatus:
		return "http_status"
	case FetchSchemaViolation:
		return "schema_violation"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned by a Gateway.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Path       string
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	case FetchSchemaViolation:
		return fmt.Sprintf("schema validation failed at %s: %s", e.Path, e.Reason)
	default:
		if e.Err != nil {
			return fmt.Sprintf("network: %v", e.Err)
		}
		return "network error"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same request may succeed.
// Network failures and 5xx responses are transient; 4xx and schema violations are not.
func (e *FetchError) Transient() bool {
	switch e.Kind {
	case FetchNetwork:
		return !errors.Is(e.Err, context.Canceled)
	case FetchHTTPStatus:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// IsTransient reports whether err is a retryable FetchError.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// ErrorKind is the presentation-facing name of a failure.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindNetwork         ErrorKind = "network"
	ErrorKindHTTPStatus      ErrorKind = "http_status"
	ErrorKindSchemaViolation ErrorKind = "schema_violation"
	ErrorKindNotFound        ErrorKind = "not_found"
	ErrorKindUnknown         ErrorKind = "unknown"
)

// KindOf maps an error to its ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, ErrPlaceNotFound) {
		return ErrorKindNotFound
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case FetchNetwork:
			return ErrorKindNetwork
		case FetchHTTPStatus:
			return ErrorKindHTTPStatus
		case FetchSchemaViolation:
			return ErrorKindSchemaViolation
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindNetwork
	}
	return ErrorKindUnknown
}
