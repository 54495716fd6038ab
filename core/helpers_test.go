package core

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
	"github.com/stretchr/testify/require"
)

const waitTimeout = time.Second

// TestSetup provides common test dependencies
type TestSetup struct {
	Transport *MockTransport
	Stats     *MockStatistics
}

// NewTestSetup creates a standard test setup with all mocks
func NewTestSetup() *TestSetup {
	// Set up a quiet logger for tests to avoid noise
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}))
	slog.SetDefault(logger)

	return &TestSetup{
		Transport: NewMockTransport(),
		Stats:     NewMockStatistics(),
	}
}

// ContextWithTimeout creates a context with standard timeout for tests
func ContextWithTimeout(t *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// BrokerBuilder helps create brokers for testing
type BrokerBuilder struct {
	setup   *TestSetup
	options []BrokerOption
}

// NewBroker starts building a test broker
func (s *TestSetup) NewBroker() *BrokerBuilder {
	return &BrokerBuilder{
		setup:   s,
		options: []BrokerOption{WithShutdownTimeout(time.Second)},
	}
}

// WithOptions adds broker options
func (b *BrokerBuilder) WithOptions(options ...BrokerOption) *BrokerBuilder {
	b.options = append(b.options, options...)
	return b
}

// Build creates the broker
func (b *BrokerBuilder) Build() *Broker {
	return NewBroker(b.setup.Transport, b.setup.Stats, b.options...)
}

// Started builds and starts the broker, stopping it when the test ends
func (b *BrokerBuilder) Started(t *testing.T) *Broker {
	t.Helper()
	broker := b.Build()
	require.NoError(t, broker.Start(context.Background()))
	t.Cleanup(func() { _ = broker.Stop() })
	return broker
}

// NewTestRequest creates a request with a channel requester
func NewTestRequest(t *testing.T, id string, prompt string) (*work.WorkRequest, *work.ChanRequester) {
	t.Helper()
	requester := work.NewChanRequester()
	req, err := work.NewRequestWithID(work.ID(id), work.Payload{{Name: "prompt", Value: prompt}}, requester)
	require.NoError(t, err)
	return req, requester
}

// Enqueue adds requests to the broker in order
func Enqueue(t *testing.T, broker *Broker, reqs ...*work.WorkRequest) {
	t.Helper()
	for _, req := range reqs {
		require.NoError(t, broker.Enqueue(context.Background(), req))
	}
}

// encode serializes a worker message for MockTransport.Deliver
func encode(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	return data
}

// SendReady announces a worker as ready
func (s *TestSetup) SendReady(t *testing.T, peer, hostname string) {
	s.Transport.Deliver(peer, encode(t, protocol.Ready{Hostname: hostname}))
}

// SendOutput delivers a result from a worker
func (s *TestSetup) SendOutput(t *testing.T, peer string, id work.ID, data []byte, hostname string) {
	s.Transport.Deliver(peer, encode(t, protocol.Output{ID: id, Data: data, Hostname: hostname}))
}

// SendGoodbye announces a worker is leaving
func (s *TestSetup) SendGoodbye(t *testing.T, peer string) {
	s.Transport.Deliver(peer, encode(t, protocol.Goodbye{}))
}

// Dispatch is a decoded frame the broker sent to a worker
type Dispatch struct {
	Peer    protocol.Address
	ID      work.ID
	Payload work.Payload
}

// ExpectDispatch waits for the next frame sent by the broker
func (s *TestSetup) ExpectDispatch(t *testing.T) Dispatch {
	t.Helper()
	select {
	case frame := <-s.Transport.sent:
		id, payload, err := protocol.DecodeDispatch(frame.Payload)
		require.NoError(t, err)
		return Dispatch{Peer: frame.Peer, ID: id, Payload: payload}
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for dispatch")
		return Dispatch{}
	}
}

// ExpectNoDispatch fails if the broker sends anything within d
func (s *TestSetup) ExpectNoDispatch(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case frame := <-s.Transport.sent:
		t.Fatalf("Unexpected dispatch to %s: %s", frame.Peer, frame.Payload)
	case <-time.After(d):
	}
}

// ExpectOutcome waits for the requester to be resolved
func ExpectOutcome(t *testing.T, requester *work.ChanRequester) work.Outcome {
	t.Helper()
	select {
	case outcome := <-requester.Done():
		return outcome
	case <-time.After(waitTimeout):
		t.Fatal("Timeout waiting for outcome")
		return work.Outcome{}
	}
}

// WaitForSnapshot waits until the broker reaches the given sizes
func WaitForSnapshot(t *testing.T, broker *Broker, queued, ready, pending int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := broker.Snapshot()
		return s.Queued == queued && s.Ready == ready && s.Pending == pending
	}, waitTimeout, 5*time.Millisecond, "snapshot never reached queued=%d ready=%d pending=%d, last %+v",
		queued, ready, pending, broker.Snapshot())
}
