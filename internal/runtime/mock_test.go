package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEngineRunBuildSuccess(t *testing.T) {
	eng := NewMockEngine()
	eng.SetRunBuildResult(BuildResult{ContainerID: "c1", Logs: "ok\n", ExitCode: 0})

	result, err := eng.RunBuild(context.Background(), BuildConfig{Image: "golang:1.24"})
	require.NoError(t, err)
	assert.Equal(t, "c1", result.ContainerID)
	assert.Equal(t, 0, result.ExitCode)
}

func TestMockEngineRunBuildNonZeroExit(t *testing.T) {
	eng := NewMockEngine()
	eng.SetRunBuildResult(BuildResult{ContainerID: "c1", Logs: "fail\n", ExitCode: 1})

	result, err := eng.RunBuild(context.Background(), BuildConfig{Image: "golang:1.24"})
	var exitErr *BuildNonZeroExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Equal(t, "fail\n", result.Logs)
}

func TestMockEngineEnsureImageFailureWrapsSentinel(t *testing.T) {
	eng := NewMockEngine()
	eng.SetEnsureImageError(errors.New("auth denied"))

	err := eng.EnsureImage(context.Background(), "private/repo:latest")
	assert.ErrorIs(t, err, ErrImageUnavailable)
}

func TestMockEngineRunRuntimeThenIsRunning(t *testing.T) {
	eng := NewMockEngine()
	eng.SetRuntimeContainerID("project-1-blue")

	id, err := eng.RunRuntime(context.Background(), RuntimeConfig{Name: "project-1-blue"})
	require.NoError(t, err)
	assert.Equal(t, "project-1-blue", id)

	running, err := eng.IsRunning(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, running)

	require.NoError(t, eng.Stop(context.Background(), id, 10))
	running, err = eng.IsRunning(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestMockEngineStopAndRemoveAreIdempotent(t *testing.T) {
	eng := NewMockEngine()
	assert.NoError(t, eng.Stop(context.Background(), "missing-id", 10))
	assert.NoError(t, eng.Remove(context.Background(), "missing-id", true))
}
