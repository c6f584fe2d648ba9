package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionClosed is returned when a request is executed on a session
// whose token has been cleared by Logout.
var ErrSessionClosed = errors.New("session closed")

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classify categorizes a request outcome for observability and handling.
func classify(statusCode int, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// SettingsError reports invalid or missing configuration. It is returned
// at construction time, before any request is made.
type SettingsError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *SettingsError) Error() string {
	return fmt.Sprintf("settings: %s: %s", e.Field, e.Reason)
}

// TransportError reports a network-level failure (DNS, dial, TLS,
// timeout) where no HTTP response was obtained.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError reports an HTTP response with status >= 400. The body is kept
// so callers can inspect platform error payloads.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Endpoint   string
	Message    string
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if snippet := e.bodySnippet(); snippet != "" {
		return fmt.Sprintf("api %s error (status %d) on %s: %s: %s",
			e.Class, e.StatusCode, e.Endpoint, e.Message, snippet)
	}
	return fmt.Sprintf("api %s error (status %d) on %s: %s",
		e.Class, e.StatusCode, e.Endpoint, e.Message)
}

func (e *APIError) bodySnippet() string {
	const max = 200
	if len(e.Body) == 0 {
		return ""
	}
	if len(e.Body) > max {
		return string(e.Body[:max]) + "..."
	}
	return string(e.Body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}
