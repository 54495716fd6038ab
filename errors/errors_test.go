package errors

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{ temporary bool }

func (e timeoutErr) Error() string   { return "i/o timeout" }
func (e timeoutErr) Timeout() bool   { return true }
func (e timeoutErr) Temporary() bool { return e.temporary }

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"broker with worker", NewBrokerError("send", "peer-1", ErrNotConnected), "broker send for worker peer-1: not connected"},
		{"broker", NewBrokerError("consume", "", ErrShutdown), "broker consume: shutting down"},
		{"protocol with type", NewProtocolError("READY", ErrMalformedMessage), "protocol (READY): malformed message"},
		{"protocol", NewProtocolError("", ErrUnknownMessageType), "protocol: unknown message type"},
		{"delivery", NewDeliveryError("abc", ErrShutdown), "delivery of abc: shutting down"},
		{"worker", NewWorkerError("abc", "gpu-01", fmt.Errorf("oom")), "worker gpu-01 processing abc: oom"},
		{"connection", NewConnectionError("redis://localhost", ErrTimeout), "connection to redis://localhost: operation timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	assert.True(t, Is(NewDeliveryError("1", ErrShutdown), ErrShutdown))
	assert.True(t, Is(NewBrokerError("send", "", fmt.Errorf("wrapped: %w", ErrWorkerNotFound)), ErrWorkerNotFound))
	assert.True(t, Is(NewWorkerError("1", "h", context.Canceled), context.Canceled))
	assert.False(t, Is(NewProtocolError("", ErrMalformedMessage), ErrShutdown))

	var we *WorkerError
	assert.True(t, As(fmt.Errorf("outer: %w", NewWorkerError("7", "gpu-02", ErrTimeout)), &we))
	assert.Equal(t, "gpu-02", we.Hostname)
}

func TestIsProtocol(t *testing.T) {
	assert.True(t, IsProtocol(fmt.Errorf("decode: %w", NewProtocolError("OUTPUT", ErrMalformedMessage))))
	assert.False(t, IsProtocol(ErrMalformedMessage))
}

func TestIsTemporaryAndTimeout(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
		timeout   bool
	}{
		{"queue full", ErrQueueFull, true, false},
		{"registry full", ErrRegistryFull, true, false},
		{"timeout sentinel", ErrTimeout, true, true},
		{"shutdown", ErrShutdown, false, false},
		{"connection timeout", NewConnectionError("x", timeoutErr{temporary: true}), true, true},
		{"connection permanent", NewConnectionError("x", timeoutErr{}), false, true},
		{"net error", &net.OpError{Op: "dial", Err: timeoutErr{}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.temporary, IsTemporary(tt.err))
			assert.Equal(t, tt.timeout, IsTimeout(tt.err))
		})
	}
}

func TestJoin(t *testing.T) {
	err := Join(nil, ErrNotConnected, nil, ErrShutdown)
	assert.True(t, Is(err, ErrNotConnected))
	assert.True(t, Is(err, ErrShutdown))
	assert.Nil(t, Join(nil, nil))
}
