// Package runtime implements the container runtime adapter: the only
// component in the agent that talks to the local container daemon.
// Everything else (build service, deployment service, periodic workers,
// the API's log/terminal endpoints) goes through the Engine interface, so
// it can be exercised in tests against MockEngine without a real daemon.
package runtime

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrImageUnavailable is returned by EnsureImage when the image can't be
// pulled (network failure, auth failure, or unknown reference).
var ErrImageUnavailable = errors.New("runtime: image unavailable")

// BuildNonZeroExitError is returned by RunBuild when the build container
// exits with a non-zero status. Logs collected up to that point are still
// returned to the caller alongside the error.
type BuildNonZeroExitError struct {
	ExitCode int
}

func (e *BuildNonZeroExitError) Error() string {
	return "runtime: build container exited non-zero"
}

// Mount describes a bind mount into a container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// BuildConfig is the input to RunBuild: mounts the checkout read-only at
// /app, an output dir read-write at /output, and the cache dir at its
// canonical path; runs `sh -c command` with working directory /app (or
// /app/<working_directory>).
type BuildConfig struct {
	Image            string
	Command          string
	WorkspaceDir     string // host path, mounted read-only at /app
	OutputDir        string // host path, mounted read-write at /output
	CacheDir         string // host path; empty means no cache mount
	CacheMountPath   string // container path for CacheDir, e.g. /root/.gradle
	WorkingDirectory string // relative to /app, may be empty
	Labels           map[string]string
}

// BuildResult is the outcome of RunBuild.
type BuildResult struct {
	ContainerID string
	Logs        string
	ExitCode    int
}

// RuntimeConfig is the input to RunRuntime: publishes exactly one port,
// mounts the build's output directory read-only at /app, runs
// `sh -c command`.
type RuntimeConfig struct {
	Name          string // project-<id>-<blue|green> or container-<name>
	Image         string
	Command       string
	ArtifactDir   string // host path, mounted read-only at /app; empty for standalone containers with no build artifact
	HostPort      int
	ContainerPort int
	Env           map[string]string
	NetworkName   string // empty means default bridge
	NetworkAlias  string
	Labels        map[string]string
	PersistVolume string // host path for a named data mount at /data, when PersistData is set
}

// ContainerInfo is a summary row returned by ListAll, covering running and
// stopped containers alike.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	State   string // created|running|paused|restarting|removing|exited|dead
	Labels  map[string]string
	Created time.Time
}

// ExecSession is an attached interactive exec session, used by the
// container terminal WebSocket endpoint.
type ExecSession struct {
	ExecID string
	Stdin  io.WriteCloser
	Output io.Reader
	Close  func() error
}

// Engine abstracts all interaction with the local container daemon.
type Engine interface {
	// EnsureImage pulls image if it is not already present locally.
	// Returns ErrImageUnavailable on pull failure.
	EnsureImage(ctx context.Context, image string) error

	// RunBuild creates a one-shot build container, waits for it to exit,
	// collects combined stdout+stderr, force-removes it, and returns the
	// result. Returns a *BuildNonZeroExitError (with logs still populated
	// in the result) if the container's exit code is non-zero.
	RunBuild(ctx context.Context, cfg BuildConfig) (BuildResult, error)

	// RunRuntime creates (or idempotently replaces) a long-lived runtime
	// container under the given name, with restart policy
	// "unless-stopped", and returns its container id.
	RunRuntime(ctx context.Context, cfg RuntimeConfig) (string, error)

	// IsRunning reports whether id is a currently-running container.
	// A missing container is reported as not running, not an error.
	IsRunning(ctx context.Context, id string) (bool, error)

	// Start starts an existing, stopped container. Idempotent: starting an
	// already-running container succeeds.
	Start(ctx context.Context, id string) error

	// Stop stops a container, allowing graceSeconds before SIGKILL.
	// Idempotent: stopping an already-stopped or missing container
	// succeeds.
	Stop(ctx context.Context, id string, graceSeconds int) error

	// Remove force-removes a container. Idempotent: removing a missing
	// container succeeds.
	Remove(ctx context.Context, id string, force bool) error

	// StreamLogs returns a lazy, unbounded stream of combined
	// stdout+stderr byte chunks. Restartable only by calling StreamLogs
	// again.
	StreamLogs(ctx context.Context, id string) (io.ReadCloser, error)

	// CreateExec starts an interactive exec session attached to stdin/stdout.
	CreateExec(ctx context.Context, id string, cmd []string) (*ExecSession, error)

	// ResizeTTY resizes the pseudo-TTY of a running exec session.
	ResizeTTY(ctx context.Context, execID string, rows, cols uint) error

	// ListAll returns every container the daemon knows about, including
	// stopped ones, for cleanup sweeps.
	ListAll(ctx context.Context) ([]ContainerInfo, error)

	// EnsureNetwork creates networkName if it doesn't already exist.
	EnsureNetwork(ctx context.Context, networkName string, labels map[string]string) error

	// ConnectNetwork attaches a container to a network under the given aliases.
	ConnectNetwork(ctx context.Context, networkName, containerID string, aliases []string) error

	// Close releases any resources held by the engine (e.g. the daemon
	// client connection).
	Close() error
}
