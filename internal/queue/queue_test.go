package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFOPerProject(t *testing.T) {
	q := New()
	q.Enqueue(1, 100)
	q.Enqueue(1, 101)
	q.Enqueue(1, 102)

	first, ok := q.Dequeue(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), first)

	second, ok := q.Dequeue(1)
	require.True(t, ok)
	assert.Equal(t, int64(101), second)
}

func TestQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := New()
	_, ok := q.Dequeue(42)
	assert.False(t, ok)
}

func TestQueueAtMostOneInFlightPerProject(t *testing.T) {
	q := New()
	q.StartProcessing(1, 100)
	assert.True(t, q.IsProcessing(1))
	assert.False(t, q.IsProcessing(2))

	q.FinishProcessing(1)
	assert.False(t, q.IsProcessing(1))
}

func TestQueueParallelAcrossProjects(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for p := int64(1); p <= 20; p++ {
		wg.Add(1)
		go func(projectID int64) {
			defer wg.Done()
			q.Enqueue(projectID, projectID*10)
			q.StartProcessing(projectID, projectID*10)
			q.FinishProcessing(projectID)
		}(p)
	}
	wg.Wait()

	projects := q.QueuedProjects()
	assert.Len(t, projects, 20)
}
