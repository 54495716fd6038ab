// Package errors provides error types and utilities for the gobroker library.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotConnected       = errors.New("not connected")
	ErrQueueFull          = errors.New("work queue is full")
	ErrRegistryFull       = errors.New("worker registry is full")
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrDuplicateID        = errors.New("duplicate request id")
	ErrPendingNotFound    = errors.New("request not pending")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrTimeout            = errors.New("operation timed out")
	ErrShutdown           = errors.New("shutting down")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrNilRequester       = errors.New("requester cannot be nil")
)

// Prompt parsing errors
var (
	ErrUnclosedQuote = errors.New("prompt has an open quotation with no closing quotation")
	ErrInvalidNumber = errors.New("invalid numeric value")
	ErrMissingValue  = errors.New("option expects a value")
	ErrEmptyPrompt   = errors.New("empty prompt")
)

// BrokerError represents broker-specific errors
type BrokerError struct {
	Op     string // operation being performed
	Worker string // worker address (if applicable)
	Err    error  // underlying error
}

func (e *BrokerError) Error() string {
	if e.Worker != "" {
		return fmt.Sprintf("broker %s for worker %s: %v", e.Op, e.Worker, e.Err)
	}
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// ProtocolError represents a wire message that could not be decoded
type ProtocolError struct {
	Type string // message type tag as received (may be empty)
	Err  error  // underlying error
}

func (e *ProtocolError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("protocol (%s): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DeliveryError represents a failure to hand a result back to its requester
type DeliveryError struct {
	ID  string // request correlation id
	Err error  // underlying error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of %s: %v", e.ID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// WorkerError represents a failure while a worker processed a request
type WorkerError struct {
	ID       string // request correlation id
	Hostname string // worker hostname
	Err      error  // underlying error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s processing %s: %v", e.Hostname, e.ID, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// ConnectionError represents connection-related errors
type ConnectionError struct {
	URI string // connection URI (may be redacted)
	Err error  // underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.URI, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Temporary() bool {
	if t, ok := e.Err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}
	return false
}

func (e *ConnectionError) Timeout() bool {
	if t, ok := e.Err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return false
}

// Helper functions for creating errors

// NewBrokerError creates a new broker error
func NewBrokerError(op, worker string, err error) error {
	return &BrokerError{Op: op, Worker: worker, Err: err}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(msgType string, err error) error {
	return &ProtocolError{Type: msgType, Err: err}
}

// NewDeliveryError creates a new delivery error
func NewDeliveryError(id string, err error) error {
	return &DeliveryError{ID: id, Err: err}
}

// NewWorkerError creates a new worker error
func NewWorkerError(id, hostname string, err error) error {
	return &WorkerError{ID: id, Hostname: hostname, Err: err}
}

// NewConnectionError creates a new connection error
func NewConnectionError(uri string, err error) error {
	return &ConnectionError{URI: uri, Err: err}
}

// IsTemporary checks if an error is temporary and retryable
func IsTemporary(err error) bool {
	if t, ok := err.(interface{ Temporary() bool }); ok {
		return t.Temporary()
	}

	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrRegistryFull)
}

// IsTimeout checks if an error is a timeout
func IsTimeout(err error) bool {
	if t, ok := err.(interface{ Timeout() bool }); ok {
		return t.Timeout()
	}
	return errors.Is(err, ErrTimeout)
}

// IsProtocol reports whether err came from decoding a wire message
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps the non-nil errors into one
func Join(errs ...error) error {
	return errors.Join(errs...)
}
