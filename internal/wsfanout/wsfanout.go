// Package wsfanout implements the WebSocket fan-out: a single broadcaster
// that subscribes to the event bus and dispatches each event to every
// live WebSocket subscription whose filter matches one of four kinds —
// global, project, build, or container.
package wsfanout

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/events"
)

// TargetKind names what a subscription filters on.
type TargetKind string

const (
	TargetGlobal    TargetKind = "global"
	TargetProject   TargetKind = "project"
	TargetBuild     TargetKind = "build"
	TargetContainer TargetKind = "container"
)

// Filter is one client's subscription: Global matches every event; the
// others match only events carrying the given id.
type Filter struct {
	Kind TargetKind
	ID   int64
}

// controlMessage is the client->server message shape for dynamic
// subscribe/unsubscribe.
type controlMessage struct {
	Type   string     `json:"type"` // "subscribe" | "unsubscribe"
	Target TargetKind `json:"target"`
	ID     int64      `json:"id,omitempty"`
}

type client struct {
	conn    *websocket.Conn
	mu      sync.Mutex // guards concurrent WriteJSON calls from the broadcaster
	filters map[Filter]bool
}

func (c *client) matches(f Filter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filters[Filter{Kind: TargetGlobal}] {
		return true
	}
	return c.filters[f]
}

func (c *client) send(envelope events.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(envelope); err != nil {
		return false
	}
	return true
}

// Hub is the broadcaster: it owns the live client set and runs the single
// event bus consumer loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// Register tracks conn as a client subscribed to initial by default, and
// runs its read loop (for dynamic subscribe/unsubscribe control messages)
// until the connection closes.
func (h *Hub) Register(ctx context.Context, conn *websocket.Conn, initial Filter) {
	c := &client{conn: conn, filters: map[Filter]bool{initial: true}}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		c.mu.Lock()
		f := Filter{Kind: msg.Target, ID: msg.ID}
		switch msg.Type {
		case "subscribe":
			c.filters[f] = true
		case "unsubscribe":
			delete(c.filters, f)
		}
		c.mu.Unlock()
	}
}

// Run subscribes to bus and broadcasts every event to matching clients
// until ctx is canceled.
func (h *Hub) Run(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe()
	for {
		evts, err := sub.Next(ctx)
		if err != nil {
			return
		}
		for _, e := range evts {
			h.broadcast(e)
		}
	}
}

func (h *Hub) broadcast(e events.Event) {
	matchFilters := filtersFor(e)
	envelope := events.Envelope{Type: e.EventType(), Event: e}

	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var dead []*client
	for _, c := range targets {
		matched := false
		for _, f := range matchFilters {
			if c.matches(f) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !c.send(envelope) {
			dead = append(dead, c)
		}
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range dead {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	log.Debug().Int("count", len(dead)).Msg("wsfanout: garbage-collected dead subscribers")
}

// filtersFor maps an event to every filter it should be delivered to.
func filtersFor(e events.Event) []Filter {
	filters := []Filter{{Kind: TargetGlobal}}

	switch evt := e.(type) {
	case events.BuildStatusEvent:
		filters = append(filters, Filter{Kind: TargetBuild, ID: evt.BuildID}, Filter{Kind: TargetProject, ID: evt.ProjectID})
	case events.DeploymentEvent:
		filters = append(filters, Filter{Kind: TargetBuild, ID: evt.BuildID}, Filter{Kind: TargetProject, ID: evt.ProjectID})
	case events.HealthCheckEvent:
		filters = append(filters, Filter{Kind: TargetBuild, ID: evt.BuildID}, Filter{Kind: TargetProject, ID: evt.ProjectID})
	case events.LogEvent:
		filters = append(filters, Filter{Kind: TargetBuild, ID: evt.BuildID})
	case events.ContainerStatusEvent:
		filters = append(filters, Filter{Kind: TargetProject, ID: evt.ProjectID})
	case events.StandaloneContainerStatusEvent:
		filters = append(filters, Filter{Kind: TargetContainer, ID: evt.ContainerID})
	case events.ContainerLogEvent:
		filters = append(filters, Filter{Kind: TargetContainer, ID: evt.ContainerID})
	case events.ErrorEvent:
		if evt.ProjectID != 0 {
			filters = append(filters, Filter{Kind: TargetProject, ID: evt.ProjectID})
		}
		if evt.BuildID != 0 {
			filters = append(filters, Filter{Kind: TargetBuild, ID: evt.BuildID})
		}
	}
	return filters
}
