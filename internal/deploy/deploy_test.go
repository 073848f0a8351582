package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func fastConfig() Config {
	return Config{HealthGateRetries: 3, HealthGateDelay: time.Millisecond}
}

func TestDeployHealthGatePassSwitchesActiveSlot(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	project, err := db.CreateProject(ctx, 10000, 14999, store.ProjectSpec{
		Name: "hello", Repo: "octocat/hello", RuntimeImage: "nginx:alpine", RuntimeCommand: "nginx", RuntimePort: 8080,
	})
	require.NoError(t, err)

	b, err := db.CreateBuild(ctx, store.BuildSpec{ProjectID: project.ID})
	require.NoError(t, err)

	engine := runtime.NewMockEngine()
	engine.SetRuntimeContainerID("project-1-green")

	bus := events.NewBus(100)
	sub := bus.Subscribe()

	svc := New(db, bus, engine, fastConfig())
	require.NoError(t, svc.Deploy(ctx, "trace-1", project, b.ID, "/tmp/output"))

	reloaded, err := db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SlotGreen, reloaded.ActiveSlot)
	require.NotNil(t, reloaded.GreenContainerID)

	finishedBuild, err := db.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BuildSuccess, finishedBuild.Status)
	require.NotNil(t, finishedBuild.DeployedSlot)
	assert.Equal(t, store.SlotGreen, *finishedBuild.DeployedSlot)

	polled, err := sub.Poll()
	require.NoError(t, err)
	assert.NotEmpty(t, polled)
}

func TestDeployHealthGateFailureRollsBackAndKeepsOldSlotActive(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	project, err := db.CreateProject(ctx, 10000, 14999, store.ProjectSpec{
		Name: "hello", Repo: "octocat/hello", RuntimeImage: "nginx:alpine", RuntimeCommand: "nginx", RuntimePort: 8080,
	})
	require.NoError(t, err)

	b, err := db.CreateBuild(ctx, store.BuildSpec{ProjectID: project.ID})
	require.NoError(t, err)

	engine := runtime.NewMockEngine()
	// RunRuntime succeeds but the container never reports running:
	// simulates a process that starts then crashes before the gate passes.
	engine.SetRuntimeContainerID("project-1-green")
	engine.SetRuntimeStartsRunning(false)

	bus := events.NewBus(100)
	svc := New(db, bus, engine, fastConfig())

	err = svc.Deploy(ctx, "trace-1", project, b.ID, "/tmp/output")
	require.Error(t, err)

	reloaded, err := db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, store.SlotBlue, reloaded.ActiveSlot, "old slot must remain active on health-gate failure")

	failedBuild, err := db.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BuildFailed, failedBuild.Status)
}

func TestRollbackRequiresDeployedSlot(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	project, err := db.CreateProject(ctx, 10000, 14999, store.ProjectSpec{Name: "hello", Repo: "octocat/hello", RuntimePort: 8080})
	require.NoError(t, err)

	b, err := db.CreateBuild(ctx, store.BuildSpec{ProjectID: project.ID})
	require.NoError(t, err)

	engine := runtime.NewMockEngine()
	bus := events.NewBus(100)
	svc := New(db, bus, engine, fastConfig())

	err = svc.Rollback(ctx, "trace-1", project, b)
	assert.ErrorIs(t, err, ErrRollbackPrecondition)
}

func TestRollbackFailureLeavesTargetBuildUntouched(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	project, err := db.CreateProject(ctx, 10000, 14999, store.ProjectSpec{
		Name: "hello", Repo: "octocat/hello", RuntimeImage: "nginx:alpine", RuntimeCommand: "nginx", RuntimePort: 8080,
	})
	require.NoError(t, err)

	b, err := db.CreateBuild(ctx, store.BuildSpec{ProjectID: project.ID})
	require.NoError(t, err)

	engine := runtime.NewMockEngine()
	engine.SetRuntimeContainerID("project-1-green")

	bus := events.NewBus(100)
	svc := New(db, bus, engine, fastConfig())
	require.NoError(t, svc.Deploy(ctx, "trace-1", project, b.ID, "/tmp/output"))

	deployed, err := db.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, store.BuildSuccess, deployed.Status)
	require.NotNil(t, deployed.OutputPath)

	project, err = db.GetProject(ctx, project.ID)
	require.NoError(t, err)

	// Now make the runtime fail the health gate for the rollback attempt.
	engine.SetRuntimeStartsRunning(false)
	err = svc.Rollback(ctx, "trace-2", project, deployed)
	require.Error(t, err)

	stillDeployed, err := db.GetBuild(ctx, deployed.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BuildSuccess, stillDeployed.Status, "a failed rollback must not touch the target build's status")
	require.NotNil(t, stillDeployed.OutputPath)
	assert.Equal(t, *deployed.OutputPath, *stillDeployed.OutputPath)

	// A subsequent rollback attempt against the same build must still pass
	// precondition checks.
	reloadedProject, err := db.GetProject(ctx, project.ID)
	require.NoError(t, err)
	engine.SetRuntimeStartsRunning(true)
	assert.NoError(t, svc.Rollback(ctx, "trace-3", reloadedProject, stillDeployed))
}
