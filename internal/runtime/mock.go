package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockEngine implements Engine in memory, for tests that exercise the
// build/deploy/worker/periodic packages without a real container daemon.
type MockEngine struct {
	mu sync.Mutex

	ensureImageErr error
	runBuildErr    error
	runRuntimeErr  error
	stopErr        error
	removeErr      error

	runBuildResult BuildResult
	runtimeID      string

	running  map[string]bool
	all      []ContainerInfo
	mockLogs string
	networks map[string]bool
	calls    []string

	// runtimeStartsRunning controls whether RunRuntime immediately marks
	// its container as running, simulating the common case where the
	// process comes up cleanly. Tests exercising a health-gate failure
	// should set this false so IsRunning stays false until explicitly
	// marked (via MarkRunning), modeling a container that starts then
	// crashes before the gate passes.
	runtimeStartsRunning bool
}

// NewMockEngine returns a MockEngine with sane defaults: EnsureImage and
// RunBuild succeed, RunRuntime returns a synthetic container id.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		runtimeID:            "mock-runtime-container",
		running:              make(map[string]bool),
		networks:             make(map[string]bool),
		runtimeStartsRunning: true,
		runBuildResult: BuildResult{
			ContainerID: "mock-build-container",
			Logs:        "",
			ExitCode:    0,
		},
	}
}

func (m *MockEngine) record(call string) {
	m.calls = append(m.calls, call)
}

// Calls returns the method-name call log, in order, for assertions.
func (m *MockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockEngine) SetEnsureImageError(err error)   { m.ensureImageErr = err }
func (m *MockEngine) SetRunBuildError(err error)       { m.runBuildErr = err }
func (m *MockEngine) SetRunRuntimeError(err error)     { m.runRuntimeErr = err }
func (m *MockEngine) SetStopError(err error)           { m.stopErr = err }
func (m *MockEngine) SetRemoveError(err error)         { m.removeErr = err }
func (m *MockEngine) SetRunBuildResult(r BuildResult)  { m.runBuildResult = r }
func (m *MockEngine) SetRuntimeContainerID(id string)  { m.runtimeID = id }
func (m *MockEngine) SetMockLogs(logs string)          { m.mockLogs = logs }
func (m *MockEngine) SetRuntimeStartsRunning(v bool)   { m.runtimeStartsRunning = v }
func (m *MockEngine) SetAllContainers(c []ContainerInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = c
}

// MarkRunning sets whether IsRunning should report id as running.
func (m *MockEngine) MarkRunning(id string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[id] = running
}

func (m *MockEngine) EnsureImage(ctx context.Context, image string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EnsureImage:" + image)
	if m.ensureImageErr != nil {
		return fmt.Errorf("%w: %v", ErrImageUnavailable, m.ensureImageErr)
	}
	return nil
}

func (m *MockEngine) RunBuild(ctx context.Context, cfg BuildConfig) (BuildResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RunBuild:" + cfg.Image)
	if m.runBuildErr != nil {
		return BuildResult{}, m.runBuildErr
	}
	result := m.runBuildResult
	if result.ExitCode != 0 {
		return result, &BuildNonZeroExitError{ExitCode: result.ExitCode}
	}
	return result, nil
}

func (m *MockEngine) RunRuntime(ctx context.Context, cfg RuntimeConfig) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("RunRuntime:" + cfg.Name)
	if m.runRuntimeErr != nil {
		return "", m.runRuntimeErr
	}
	if m.runtimeStartsRunning {
		m.running[m.runtimeID] = true
	}
	return m.runtimeID, nil
}

func (m *MockEngine) IsRunning(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id], nil
}

func (m *MockEngine) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Start:" + id)
	m.running[id] = true
	return nil
}

func (m *MockEngine) Stop(ctx context.Context, id string, graceSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop:" + id)
	if m.stopErr != nil {
		return m.stopErr
	}
	m.running[id] = false
	return nil
}

func (m *MockEngine) Remove(ctx context.Context, id string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Remove:" + id)
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.running, id)
	return nil
}

func (m *MockEngine) StreamLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("StreamLogs:" + id)
	return io.NopCloser(strings.NewReader(m.mockLogs)), nil
}

func (m *MockEngine) CreateExec(ctx context.Context, id string, cmd []string) (*ExecSession, error) {
	m.record("CreateExec:" + id)
	r, w := io.Pipe()
	return &ExecSession{
		ExecID: "mock-exec-" + id,
		Stdin:  w,
		Output: r,
		Close:  func() error { return w.Close() },
	}, nil
}

func (m *MockEngine) ResizeTTY(ctx context.Context, execID string, rows, cols uint) error {
	m.record("ResizeTTY:" + execID)
	return nil
}

func (m *MockEngine) ListAll(ctx context.Context) ([]ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.all, nil
}

func (m *MockEngine) EnsureNetwork(ctx context.Context, networkName string, labels map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("EnsureNetwork:" + networkName)
	m.networks[networkName] = true
	return nil
}

func (m *MockEngine) ConnectNetwork(ctx context.Context, networkName, containerID string, aliases []string) error {
	m.record("ConnectNetwork:" + networkName)
	return nil
}

func (m *MockEngine) Close() error { return nil }
