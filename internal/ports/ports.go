// Package ports implements port allocation and reconciliation: a
// synchronous allocate/release layer over internal/store's
// port_allocations table, plus a periodic bind-probe reconciliation scan.
package ports

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/store"
)

// Allocator allocates and releases host ports for projects and standalone
// containers, and reconciles externally-occupied ports on a timer.
type Allocator struct {
	db *store.Store
}

// New constructs an Allocator over db.
func New(db *store.Store) *Allocator {
	return &Allocator{db: db}
}

// Allocate reserves the lowest free port in [start, end] for ownerType/ownerID.
// This mirrors the allocation logic internal/store already runs atomically
// inside CreateProject/CreateContainer; it is exposed here for callers (e.g.
// re-provisioning a single slot) that need it outside those constructors.
func (a *Allocator) Allocate(ctx context.Context, start, end int, ownerType string, ownerID int64) (int, error) {
	allocations, err := a.db.ListPortAllocations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list port allocations: %w", err)
	}

	taken := make(map[int]bool, len(allocations))
	for _, p := range allocations {
		taken[p.Port] = true
	}

	for port := start; port <= end; port++ {
		if !taken[port] {
			if err := a.db.InsertAllocatedPort(ctx, port, ownerType, ownerID); err != nil {
				return 0, err
			}
			return port, nil
		}
	}
	return 0, store.ErrPortExhausted
}

// Release frees a port entirely, for use by the project/container
// deletion paths only — never by the scanner.
func (a *Allocator) Release(ctx context.Context, port int) error {
	return a.db.ReleasePort(ctx, port)
}

// Scan performs one pass of the bind-probe reconciliation: for each port
// in range not currently allocated, attempt a non-blocking bind; bind
// failure marks it used_by_system, bind success clears any stale
// used_by_system row. Allocated rows are never touched.
func (a *Allocator) Scan(ctx context.Context, start, end int) error {
	allocations, err := a.db.ListPortAllocations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list port allocations: %w", err)
	}

	allocated := make(map[int]bool, len(allocations))
	for _, p := range allocations {
		if p.Status == store.PortAllocated {
			allocated[p.Port] = true
		}
	}

	for port := start; port <= end; port++ {
		if allocated[port] {
			continue
		}
		if probeBind(port) {
			if err := a.db.ReleasePort(ctx, port); err != nil {
				log.Warn().Err(err).Int("port", port).Msg("port scanner: failed to release stale used_by_system row")
			}
			continue
		}
		if err := a.db.MarkPortUsedBySystem(ctx, port); err != nil {
			log.Warn().Err(err).Int("port", port).Msg("port scanner: failed to mark port used_by_system")
		}
	}
	return nil
}

// probeBind reports whether port is currently free to bind on all
// interfaces. It closes the listener immediately either way.
func probeBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// RunScanner blocks, scanning both port ranges every interval, until ctx is
// canceled.
func (a *Allocator) RunScanner(ctx context.Context, interval time.Duration, appStart, appEnd, containerStart, containerEnd int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Scan(ctx, appStart, appEnd); err != nil {
				log.Warn().Err(err).Msg("port scanner: application range scan failed")
			}
			if err := a.Scan(ctx, containerStart, containerEnd); err != nil {
				log.Warn().Err(err).Msg("port scanner: container range scan failed")
			}
		}
	}
}
