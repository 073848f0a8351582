// Package queue implements the build queue: an in-memory, per-project
// FIFO of pending build ids, reset on restart.
package queue

import "sync"

// Queue is a per-project FIFO of build ids with an in-flight flag per
// project, so at most one build runs per project while unrelated
// projects build in parallel.
type Queue struct {
	mu         sync.Mutex
	pending    map[int64][]int64
	processing map[int64]int64 // project_id -> build_id currently in flight
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		pending:    make(map[int64][]int64),
		processing: make(map[int64]int64),
	}
}

// Enqueue appends buildID to projectID's FIFO.
func (q *Queue) Enqueue(projectID, buildID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[projectID] = append(q.pending[projectID], buildID)
}

// Dequeue pops the head build id for projectID, if any.
func (q *Queue) Dequeue(projectID int64) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.pending[projectID]
	if len(list) == 0 {
		return 0, false
	}
	buildID := list[0]
	q.pending[projectID] = list[1:]
	return buildID, true
}

// IsProcessing reports whether projectID currently has an in-flight build.
func (q *Queue) IsProcessing(projectID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.processing[projectID]
	return ok
}

// StartProcessing marks projectID as having buildID in flight. Callers
// must have already confirmed IsProcessing was false and Dequeue returned
// this buildID; both calls happen under the worker's own serialized loop
// iteration so there is no separate compare-and-set here.
func (q *Queue) StartProcessing(projectID, buildID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing[projectID] = buildID
}

// FinishProcessing clears projectID's in-flight marker.
func (q *Queue) FinishProcessing(projectID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, projectID)
}

// QueuedProjects returns every project with at least one pending build,
// alongside its queued build ids, in no particular cross-project order.
func (q *Queue) QueuedProjects() []ProjectQueue {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ProjectQueue, 0, len(q.pending))
	for projectID, builds := range q.pending {
		if len(builds) == 0 {
			continue
		}
		copied := make([]int64, len(builds))
		copy(copied, builds)
		out = append(out, ProjectQueue{ProjectID: projectID, BuildIDs: copied})
	}
	return out
}

// ProjectQueue is one project's pending build ids, as returned by QueuedProjects.
type ProjectQueue struct {
	ProjectID int64
	BuildIDs  []int64
}
