package statistics

import (
	"context"
	"strings"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
)

// Multi fans every call out to several backends. A failing backend does not
// stop the others; their errors are joined.
type Multi struct {
	backends []core.Statistics
}

// NewMulti combines backends
func NewMulti(backends ...core.Statistics) *Multi {
	return &Multi{backends: backends}
}

// Backends returns the combined backends
func (m *Multi) Backends() []core.Statistics {
	return m.backends
}

func (m *Multi) each(fn func(core.Statistics) error) error {
	var errs []error
	for _, backend := range m.backends {
		if err := fn(backend); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect connects every backend. If one fails the ones already connected
// are closed again.
func (m *Multi) Connect(ctx context.Context) error {
	for i, backend := range m.backends {
		if err := backend.Connect(ctx); err != nil {
			for _, connected := range m.backends[:i] {
				_ = connected.Close()
			}
			return err
		}
	}
	return nil
}

// Close closes every backend
func (m *Multi) Close() error {
	return m.each(func(s core.Statistics) error { return s.Close() })
}

// Health reports every unhealthy backend
func (m *Multi) Health() error {
	return m.each(func(s core.Statistics) error { return s.Health() })
}

// Type lists the backend types, e.g. "prometheus+redis"
func (m *Multi) Type() string {
	types := make([]string, len(m.backends))
	for i, backend := range m.backends {
		types[i] = backend.Type()
	}
	return strings.Join(types, "+")
}

// RecordWorkerReady implements core.Statistics
func (m *Multi) RecordWorkerReady(ctx context.Context, addr protocol.Address, hostname string) error {
	return m.each(func(s core.Statistics) error { return s.RecordWorkerReady(ctx, addr, hostname) })
}

// RecordWorkerGone implements core.Statistics
func (m *Multi) RecordWorkerGone(ctx context.Context, addr protocol.Address) error {
	return m.each(func(s core.Statistics) error { return s.RecordWorkerGone(ctx, addr) })
}

// RecordDispatched implements core.Statistics
func (m *Multi) RecordDispatched(ctx context.Context, id work.ID, addr protocol.Address) error {
	return m.each(func(s core.Statistics) error { return s.RecordDispatched(ctx, id, addr) })
}

// RecordCompleted implements core.Statistics
func (m *Multi) RecordCompleted(ctx context.Context, id work.ID, hostname string, latency time.Duration) error {
	return m.each(func(s core.Statistics) error { return s.RecordCompleted(ctx, id, hostname, latency) })
}

// RecordOrphaned implements core.Statistics
func (m *Multi) RecordOrphaned(ctx context.Context, id work.ID) error {
	return m.each(func(s core.Statistics) error { return s.RecordOrphaned(ctx, id) })
}

// RecordRejected implements core.Statistics
func (m *Multi) RecordRejected(ctx context.Context, reason string) error {
	return m.each(func(s core.Statistics) error { return s.RecordRejected(ctx, reason) })
}

// RecordSnapshot implements core.Statistics
func (m *Multi) RecordSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	return m.each(func(s core.Statistics) error { return s.RecordSnapshot(ctx, snapshot) })
}
