package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easycicd/agent/internal/build"
	"github.com/easycicd/agent/internal/deploy"
	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/queue"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *queue.Queue) {
	t.Helper()
	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus(events.DefaultCapacity)
	engine := runtime.NewMockEngine()
	q := queue.New()
	builder := build.New(db, bus, engine, t.TempDir())
	deployer := deploy.New(db, bus, engine, deploy.Config{HealthGateRetries: 1, HealthGateDelay: time.Millisecond})

	return New(db, q, builder, deployer), q
}

func TestProcessFailsFastOnUnknownBuild(t *testing.T) {
	w, q := newTestWorker(t)
	ctx := context.Background()

	q.StartProcessing(1, 999)
	assert.True(t, q.IsProcessing(1))

	w.process(ctx, 1, 999)

	assert.False(t, q.IsProcessing(1))
}

func TestTickOnceDrainsQueuedProjectsWithoutDoubleProcessing(t *testing.T) {
	w, q := newTestWorker(t)
	ctx := context.Background()

	q.Enqueue(1, 100)
	q.StartProcessing(2, 200)

	w.tickOnce(ctx)

	assert.True(t, q.IsProcessing(1), "project 1's build should now be in flight")
	assert.True(t, q.IsProcessing(2), "project 2 was already processing and must not be re-dequeued")

	require.Eventually(t, func() bool {
		return !q.IsProcessing(1)
	}, 2*time.Second, 10*time.Millisecond)
}
