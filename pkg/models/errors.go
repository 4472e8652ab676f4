package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures in the monitoring and notification pipeline.
type ErrorKind string

const (
	// KindConnection is a network or timeout failure talking to a remote
	// service. It is retried at the next natural tick, never inline.
	KindConnection ErrorKind = "connection"
	// KindUnsupportedCapability is a fetch for a capability the driver does
	// not report.
	KindUnsupportedCapability ErrorKind = "unsupported_capability"
	// KindConfiguration is malformed input or a missing reference.
	KindConfiguration ErrorKind = "configuration"
	// KindInternal is an unexpected failure during evaluation or dispatch.
	KindInternal ErrorKind = "internal"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectionError wraps a transport failure.
func NewConnectionError(msg string, err error) *Error {
	return &Error{Kind: KindConnection, Message: msg, Err: err}
}

// NewUnsupportedCapabilityError reports a fetch for capability c.
func NewUnsupportedCapabilityError(c MetricCapability) *Error {
	return &Error{Kind: KindUnsupportedCapability, Message: fmt.Sprintf("capability %q not supported", c)}
}

// NewConfigurationError reports invalid configuration.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsConnection reports whether err is a connection error.
func IsConnection(err error) bool { return isKind(err, KindConnection) }

// IsUnsupportedCapability reports whether err is an unsupported capability error.
func IsUnsupportedCapability(err error) bool { return isKind(err, KindUnsupportedCapability) }

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return isKind(err, KindConfiguration) }

// IsInternal reports whether err is an internal error.
func IsInternal(err error) bool { return isKind(err, KindInternal) }

// Detail returns err's message without the kind prefix, for API responses.
func Detail(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}
