// Package noop is a statistics backend that records nothing.
package noop

import (
	"context"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
)

// NoOpStatistics implements the core.Statistics interface with no-op operations
type NoOpStatistics struct{}

// NewStatistics creates a new no-op statistics backend
func NewStatistics() *NoOpStatistics {
	return &NoOpStatistics{}
}

// Connect establishes connection (no-op)
func (n *NoOpStatistics) Connect(ctx context.Context) error {
	return nil
}

// Close closes the connection (no-op)
func (n *NoOpStatistics) Close() error {
	return nil
}

// Health checks connection health
func (n *NoOpStatistics) Health() error {
	return nil
}

// Type returns the statistics backend type
func (n *NoOpStatistics) Type() string {
	return "noop"
}

// RecordWorkerReady records a worker joining the registry (no-op)
func (n *NoOpStatistics) RecordWorkerReady(ctx context.Context, addr protocol.Address, hostname string) error {
	return nil
}

// RecordWorkerGone records a worker leaving (no-op)
func (n *NoOpStatistics) RecordWorkerGone(ctx context.Context, addr protocol.Address) error {
	return nil
}

// RecordDispatched records a dispatch (no-op)
func (n *NoOpStatistics) RecordDispatched(ctx context.Context, id work.ID, addr protocol.Address) error {
	return nil
}

// RecordCompleted records a delivered result (no-op)
func (n *NoOpStatistics) RecordCompleted(ctx context.Context, id work.ID, hostname string, latency time.Duration) error {
	return nil
}

// RecordOrphaned records a result nobody was waiting for (no-op)
func (n *NoOpStatistics) RecordOrphaned(ctx context.Context, id work.ID) error {
	return nil
}

// RecordRejected records a rejected message or request (no-op)
func (n *NoOpStatistics) RecordRejected(ctx context.Context, reason string) error {
	return nil
}

// RecordSnapshot records broker state (no-op)
func (n *NoOpStatistics) RecordSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	return nil
}
