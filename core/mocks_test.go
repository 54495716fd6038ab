package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
)

// Mock implementations for testing

// MockTransport implements the Transport interface for testing
type MockTransport struct {
	mu           sync.RWMutex
	connected    bool
	closed       bool
	connectError error
	healthError  error
	sendError    error
	sendAttempts int
	inbound      chan protocol.Frame
	sent         chan protocol.Frame
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		inbound: make(chan protocol.Frame, 64),
		sent:    make(chan protocol.Frame, 64),
	}
}

func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.closed = true
	return nil
}

func (m *MockTransport) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.healthError != nil {
		return m.healthError
	}
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	return nil
}

func (m *MockTransport) Type() string {
	return "mock"
}

func (m *MockTransport) Inbound() <-chan protocol.Frame {
	return m.inbound
}

func (m *MockTransport) Send(ctx context.Context, frame protocol.Frame) error {
	m.mu.Lock()
	m.sendAttempts++
	err := m.sendError
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.sent <- frame
	return nil
}

func (m *MockTransport) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockTransport) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendError = err
}

// SendAttempts counts Send calls, failed ones included
func (m *MockTransport) SendAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sendAttempts
}

func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Deliver pushes a frame as if a worker had sent it
func (m *MockTransport) Deliver(peer string, payload []byte) {
	m.inbound <- protocol.Frame{Peer: protocol.NewAddress(peer), Payload: payload}
}

// MockCompletion records a RecordCompleted call
type MockCompletion struct {
	ID       work.ID
	Hostname string
	Latency  time.Duration
}

// MockStatistics implements the Statistics interface for testing
type MockStatistics struct {
	mu           sync.RWMutex
	connected    bool
	connectError error
	healthError  error
	ready        []protocol.Address
	gone         []protocol.Address
	dispatched   []work.ID
	completed    []MockCompletion
	orphaned     []work.ID
	rejected     []string
	snapshots    []Snapshot
}

func NewMockStatistics() *MockStatistics {
	return &MockStatistics{}
}

func (m *MockStatistics) RecordWorkerReady(ctx context.Context, addr protocol.Address, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, addr)
	return nil
}

func (m *MockStatistics) RecordWorkerGone(ctx context.Context, addr protocol.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gone = append(m.gone, addr)
	return nil
}

func (m *MockStatistics) RecordDispatched(ctx context.Context, id work.ID, addr protocol.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatched = append(m.dispatched, id)
	return nil
}

func (m *MockStatistics) RecordCompleted(ctx context.Context, id work.ID, hostname string, latency time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, MockCompletion{ID: id, Hostname: hostname, Latency: latency})
	return nil
}

func (m *MockStatistics) RecordOrphaned(ctx context.Context, id work.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orphaned = append(m.orphaned, id)
	return nil
}

func (m *MockStatistics) RecordRejected(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = append(m.rejected, reason)
	return nil
}

func (m *MockStatistics) RecordSnapshot(ctx context.Context, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *MockStatistics) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

func (m *MockStatistics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockStatistics) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthError
}

func (m *MockStatistics) Type() string {
	return "mock"
}

func (m *MockStatistics) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

func (m *MockStatistics) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

func (m *MockStatistics) GetReady() []protocol.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]protocol.Address(nil), m.ready...)
}

func (m *MockStatistics) GetGone() []protocol.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]protocol.Address(nil), m.gone...)
}

func (m *MockStatistics) GetDispatched() []work.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]work.ID(nil), m.dispatched...)
}

func (m *MockStatistics) GetCompleted() []MockCompletion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockCompletion(nil), m.completed...)
}

func (m *MockStatistics) GetOrphaned() []work.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]work.ID(nil), m.orphaned...)
}

func (m *MockStatistics) GetRejected() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.rejected...)
}
