// Package errs provides structured error types and helpers for the event hub.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category surfaced by hub components.
type Code string

const (
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeNotFound indicates a missing topic, connection, or resource.
	CodeNotFound Code = "not_found"
	// CodePipeline indicates a failure inside the publish pipeline.
	CodePipeline Code = "pipeline_error"
	// CodeTransport indicates a failure sending to a subscriber connection.
	CodeTransport Code = "transport_error"
	// CodeUnavailable indicates the component is temporarily unavailable.
	CodeUnavailable Code = "unavailable"
	// CodeConflict indicates a concurrent mutation conflict.
	CodeConflict Code = "conflict"
)

// E captures structured error information produced across the hub.
type E struct {
	Component string
	Code      Code
	Message   string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component: strings.TrimSpace(component),
		Code:      code,
		Message:   "",
		cause:     nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the structured code from err, or empty when err is not an envelope.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) && envelope != nil {
		return envelope.Code
	}
	return ""
}

// IsCode reports whether err carries the provided structured code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
