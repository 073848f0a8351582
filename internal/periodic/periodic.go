// Package periodic implements the agent's background workers: container
// cleanup, a container log streamer, a container health monitor, and a
// session sweeper. Each runs on its own ticker loop, with an initial
// short delay before the first tick, and stops cleanly on context
// cancellation.
package periodic

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
)

// Workers bundles every periodic worker over a shared store/engine/bus.
type Workers struct {
	db     *store.Store
	engine runtime.Engine
	bus    *events.Bus

	healthMu   sync.Mutex
	lastHealth map[string]bool // "project:<id>:<slot>" -> last reported is_running

	streamingMu sync.Mutex
	streaming   map[int64]context.CancelFunc // container_id -> cancel for its active log stream
}

// New constructs the periodic worker bundle.
func New(db *store.Store, engine runtime.Engine, bus *events.Bus) *Workers {
	return &Workers{
		db:         db,
		engine:     engine,
		bus:        bus,
		lastHealth: make(map[string]bool),
		streaming:  make(map[int64]context.CancelFunc),
	}
}

func runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	initial := time.NewTimer(time.Second)
	defer initial.Stop()

	select {
	case <-ctx.Done():
		return
	case <-initial.C:
		fn(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// RunContainerCleanup lists all containers every 30 minutes and removes
// stopped ones that are orphaned: build-* leftovers, project slots whose
// project is unknown to the store, or standalone containers whose name is
// unknown. Running containers are never touched.
func (w *Workers) RunContainerCleanup(ctx context.Context) {
	runTicker(ctx, 30*time.Minute, w.cleanupOnce)
}

func (w *Workers) cleanupOnce(ctx context.Context) {
	all, err := w.engine.ListAll(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("periodic: container cleanup failed to list containers")
		return
	}

	projects, err := w.db.ListProjects(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("periodic: container cleanup failed to list projects")
		return
	}
	knownProjects := make(map[int64]bool, len(projects))
	for _, p := range projects {
		knownProjects[p.ID] = true
	}

	containers, err := w.db.ListContainers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("periodic: container cleanup failed to list standalone containers")
		return
	}
	knownContainers := make(map[string]bool, len(containers))
	for _, c := range containers {
		knownContainers[c.Name] = true
	}

	for _, c := range all {
		if c.State == "running" {
			continue
		}
		if w.isOrphan(c.Name, knownProjects, knownContainers) {
			if err := w.engine.Remove(ctx, c.ID, true); err != nil {
				log.Warn().Err(err).Str("container", c.Name).Msg("periodic: container cleanup failed to remove orphan")
			}
		}
	}
}

func (w *Workers) isOrphan(name string, knownProjects map[int64]bool, knownContainers map[string]bool) bool {
	if strings.HasPrefix(name, "build-") || strings.HasPrefix(name, "/build-") {
		return true
	}

	trimmed := strings.TrimPrefix(name, "/")
	if strings.HasPrefix(trimmed, "project-") {
		parts := strings.Split(trimmed, "-")
		if len(parts) >= 3 {
			if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return !knownProjects[id]
			}
		}
		return true
	}

	if strings.HasPrefix(trimmed, "container-") {
		containerName := strings.TrimPrefix(trimmed, "container-")
		return !knownContainers[containerName]
	}

	return false
}

// RunContainerHealthMonitor polls every project's blue/green slots every
// 10 seconds and emits ContainerStatus only on transitions.
func (w *Workers) RunContainerHealthMonitor(ctx context.Context) {
	runTicker(ctx, 10*time.Second, w.healthOnce)
}

func (w *Workers) healthOnce(ctx context.Context) {
	projects, err := w.db.ListProjects(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("periodic: health monitor failed to list projects")
		return
	}

	for _, p := range projects {
		for _, slot := range []store.Slot{store.SlotBlue, store.SlotGreen} {
			id := p.ContainerIDForSlot(slot)
			status := "missing"
			if id != nil {
				running, err := w.engine.IsRunning(ctx, *id)
				if err == nil && running {
					status = "running"
				} else {
					status = "stopped"
				}
			}
			w.reportTransition(p.ID, slot, status)
		}
	}
}

func (w *Workers) reportTransition(projectID int64, slot store.Slot, status string) {
	key := "project:" + strconv.FormatInt(projectID, 10) + ":" + string(slot)

	w.healthMu.Lock()
	last, seen := w.lastHealth[key]
	changed := !seen || (last != (status == "running"))
	w.lastHealth[key] = status == "running"
	w.healthMu.Unlock()

	if changed {
		w.bus.Publish(events.ContainerStatusEvent{ProjectID: projectID, Slot: slot, Status: status, Time: time.Now().UTC()})
	}
}

// RunContainerLogStreamer polls the containers table every 5 seconds; for
// every running standalone container not yet tracked, starts a log
// stream and emits ContainerLog events; stops tracking once status leaves
// running.
func (w *Workers) RunContainerLogStreamer(ctx context.Context) {
	runTicker(ctx, 5*time.Second, w.streamOnce)
}

func (w *Workers) streamOnce(ctx context.Context) {
	containers, err := w.db.ListContainers(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("periodic: log streamer failed to list containers")
		return
	}

	running := make(map[int64]store.Container, len(containers))
	for _, c := range containers {
		if c.Status == store.ContainerRunning && c.ContainerID != nil {
			running[c.ID] = c
		}
	}

	w.streamingMu.Lock()
	defer w.streamingMu.Unlock()

	for id, c := range running {
		if _, tracked := w.streaming[id]; tracked {
			continue
		}
		streamCtx, cancel := context.WithCancel(ctx)
		w.streaming[id] = cancel
		go w.streamContainerLogs(streamCtx, c)
	}

	for id, cancel := range w.streaming {
		if _, stillRunning := running[id]; !stillRunning {
			cancel()
			delete(w.streaming, id)
		}
	}
}

func (w *Workers) streamContainerLogs(ctx context.Context, c store.Container) {
	reader, err := w.engine.StreamLogs(ctx, *c.ContainerID)
	if err != nil {
		log.Warn().Err(err).Int64("container_id", c.ID).Msg("periodic: log streamer failed to start stream")
		return
	}
	defer reader.Close()

	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			w.bus.Publish(events.ContainerLogEvent{ContainerID: c.ID, Line: string(buf[:n]), Time: time.Now().UTC()})
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// RunSessionSweeper deletes expired sessions every hour.
func (w *Workers) RunSessionSweeper(ctx context.Context) {
	runTicker(ctx, time.Hour, func(ctx context.Context) {
		n, err := w.db.DeleteExpiredSessions(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("periodic: session sweeper failed")
			return
		}
		if n > 0 {
			log.Info().Int64("count", n).Msg("periodic: session sweeper removed expired sessions")
		}
	})
}
