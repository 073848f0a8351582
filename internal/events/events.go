// Package events implements the event bus component: a fixed-capacity
// ring buffer of domain events with per-subscriber cursors, lossy once
// full, publish never blocking on a slow reader.
package events

import (
	"encoding/json"
	"time"

	"github.com/easycicd/agent/internal/store"
)

// Kind discriminates the event variants carried on the bus. Marshaled
// JSON always carries it under "type".
type Kind string

const (
	KindBuildStatus               Kind = "build_status"
	KindLog                       Kind = "log"
	KindDeployment                Kind = "deployment"
	KindHealthCheck               Kind = "health_check"
	KindContainerStatus           Kind = "container_status"
	KindStandaloneContainerStatus Kind = "standalone_container_status"
	KindContainerLog              Kind = "container_log"
	KindError                     Kind = "error"
)

// Event is implemented by every event variant published on the bus.
type Event interface {
	EventType() Kind
}

// BuildStatusEvent reports a build's lifecycle transition.
type BuildStatusEvent struct {
	ProjectID int64             `json:"project_id"`
	BuildID   int64             `json:"build_id"`
	Status    store.BuildStatus `json:"status"`
	Time      time.Time         `json:"time"`
}

func (BuildStatusEvent) EventType() Kind { return KindBuildStatus }

// LogEvent streams a single line of build or deploy log output.
type LogEvent struct {
	ProjectID int64     `json:"project_id"`
	BuildID   int64     `json:"build_id"`
	Stream    string    `json:"stream"` // "build" | "deploy"
	Line      string    `json:"line"`
	Time      time.Time `json:"time"`
}

func (LogEvent) EventType() Kind { return KindLog }

// DeploymentEvent reports a blue/green state machine transition.
type DeploymentEvent struct {
	ProjectID int64      `json:"project_id"`
	BuildID   int64      `json:"build_id"`
	Stage     string     `json:"stage"` // idle|cleanup_target|start_new|health_gate|switch_active|teardown_old|fail_rollback
	Slot      store.Slot `json:"slot"`
	Message   string     `json:"message,omitempty"`
	Time      time.Time  `json:"time"`
}

func (DeploymentEvent) EventType() Kind { return KindDeployment }

// HealthCheckEvent reports one health gate attempt outcome.
type HealthCheckEvent struct {
	ProjectID int64      `json:"project_id"`
	BuildID   int64      `json:"build_id"`
	Slot      store.Slot `json:"slot"`
	Attempt   int        `json:"attempt"`
	Healthy   bool       `json:"healthy"`
	Time      time.Time  `json:"time"`
}

func (HealthCheckEvent) EventType() Kind { return KindHealthCheck }

// ContainerStatusEvent reports a project slot's runtime container status
// change.
type ContainerStatusEvent struct {
	ProjectID int64      `json:"project_id"`
	Slot      store.Slot `json:"slot"`
	Status    string     `json:"status"` // running|stopped|missing
	Time      time.Time  `json:"time"`
}

func (ContainerStatusEvent) EventType() Kind { return KindContainerStatus }

// StandaloneContainerStatusEvent reports a standalone container's status change.
type StandaloneContainerStatusEvent struct {
	ContainerID int64                 `json:"container_id"`
	Status      store.ContainerStatus `json:"status"`
	Time        time.Time             `json:"time"`
}

func (StandaloneContainerStatusEvent) EventType() Kind { return KindStandaloneContainerStatus }

// ContainerLogEvent streams a single line of output from a standalone
// container's runtime logs.
type ContainerLogEvent struct {
	ContainerID int64     `json:"container_id"`
	Line        string    `json:"line"`
	Time        time.Time `json:"time"`
}

func (ContainerLogEvent) EventType() Kind { return KindContainerLog }

// ErrorEvent reports an operational error worth surfacing to subscribers
// (e.g. a build or deploy failure reason) without being a log line.
type ErrorEvent struct {
	ProjectID int64     `json:"project_id,omitempty"`
	BuildID   int64     `json:"build_id,omitempty"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

func (ErrorEvent) EventType() Kind { return KindError }

// Envelope is the wire shape for any event: a type discriminator flattened
// alongside the variant's own fields (an externally-tagged union, but
// folded into one JSON object instead of nested under the type name, so
// clients can switch on "type" without an extra unwrap step).
type Envelope struct {
	Type  Kind
	Event Event
}

// MarshalJSON flattens Type and Event's own fields into a single object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}

	typeJSON, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON

	return json.Marshal(fields)
}
