// Package worker implements the build worker: a single long-running loop
// that drains the build queue's per-project FIFOs and drives each queued
// build through the build service then the deployment service.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/build"
	"github.com/easycicd/agent/internal/deploy"
	"github.com/easycicd/agent/internal/queue"
	"github.com/easycicd/agent/internal/store"
)

// Worker drains the build queue and drives builds to completion.
type Worker struct {
	db      *store.Store
	q       *queue.Queue
	builder *build.Service
	deploer *deploy.Service

	tick    time.Duration
	deflake time.Duration
}

// New constructs a build Worker.
func New(db *store.Store, q *queue.Queue, builder *build.Service, deployer *deploy.Service) *Worker {
	return &Worker{
		db:      db,
		q:       q,
		builder: builder,
		deploer: deployer,
		tick:    time.Second,
		deflake: 100 * time.Millisecond,
	}
}

// Run blocks, processing queued builds until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tickOnce(ctx)
		}
	}
}

func (w *Worker) tickOnce(ctx context.Context) {
	for _, pq := range w.q.QueuedProjects() {
		if w.q.IsProcessing(pq.ProjectID) {
			continue
		}
		buildID, ok := w.q.Dequeue(pq.ProjectID)
		if !ok {
			continue
		}
		w.q.StartProcessing(pq.ProjectID, buildID)

		go w.process(ctx, pq.ProjectID, buildID)
	}
}

func (w *Worker) process(ctx context.Context, projectID, buildID int64) {
	defer w.q.FinishProcessing(projectID)
	defer time.Sleep(w.deflake)

	traceID := fmt.Sprintf("worker-%d-%s", projectID, uuid.NewString())

	outputPath, err := w.builder.ExecuteBuild(ctx, traceID, buildID)
	if err != nil {
		log.Error().Str("trace_id", traceID).Int64("build_id", buildID).Err(err).Msg("worker: build failed")
		return
	}

	project, err := w.db.GetProject(ctx, projectID)
	if err != nil {
		log.Error().Str("trace_id", traceID).Int64("project_id", projectID).Err(err).Msg("worker: failed to reload project before deploy")
		w.markInterrupted(ctx, buildID)
		return
	}

	if err := w.deploer.Deploy(ctx, traceID, project, buildID, outputPath); err != nil {
		log.Error().Str("trace_id", traceID).Int64("build_id", buildID).Err(err).Msg("worker: deploy failed")
		return
	}

	log.Info().Str("trace_id", traceID).Int64("project_id", projectID).Int64("build_id", buildID).Msg("worker: build+deploy complete")
}

func (w *Worker) markInterrupted(ctx context.Context, buildID int64) {
	if err := w.db.FinishBuild(ctx, buildID, store.BuildFailed, nil); err != nil {
		log.Warn().Err(err).Int64("build_id", buildID).Msg("worker: failed to mark interrupted build as failed")
	}
}
