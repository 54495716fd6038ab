package core

import (
	"context"
	"time"

	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
)

// Transport interface defines what core needs from an addressable transport
type Transport interface {
	// Connection management
	Connect(ctx context.Context) error
	Close() error
	Health() error
	Type() string

	// Inbound delivers frames received from workers. The channel may be
	// closed by the transport when it shuts down.
	Inbound() <-chan protocol.Frame

	// Send delivers a frame to the peer it names
	Send(ctx context.Context, frame protocol.Frame) error
}

// Statistics interface defines what core needs from a statistics backend
type Statistics interface {
	// Worker lifecycle
	RecordWorkerReady(ctx context.Context, addr protocol.Address, hostname string) error
	RecordWorkerGone(ctx context.Context, addr protocol.Address) error

	// Request metrics
	RecordDispatched(ctx context.Context, id work.ID, addr protocol.Address) error
	RecordCompleted(ctx context.Context, id work.ID, hostname string, latency time.Duration) error
	RecordOrphaned(ctx context.Context, id work.ID) error
	RecordRejected(ctx context.Context, reason string) error

	// Periodic state
	RecordSnapshot(ctx context.Context, snapshot Snapshot) error

	// Health and connection
	Connect(ctx context.Context) error
	Close() error
	Health() error
	Type() string
}

// Rejection reasons passed to Statistics.RecordRejected
const (
	RejectProtocol     = "protocol"
	RejectQueueFull    = "queue_full"
	RejectRegistryFull = "registry_full"
)

// Snapshot is a point-in-time view of the broker state
type Snapshot struct {
	Queued        int
	Ready         int
	Pending       int
	OldestPending time.Duration
	Taken         time.Time
}

// HealthStatus represents the health of the broker
type HealthStatus struct {
	Healthy         bool
	TransportHealth error
	StatsHealth     error
	Snapshot        Snapshot
	LastCheck       time.Time
}
