// Package deploy implements the blue/green deployment state machine:
// deploy and rollback both drive the same cutover algorithm, starting
// from cleanup of the inactive slot.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
)

// ErrRollbackPrecondition is returned by Rollback when the target build
// was never deployed or its output no longer exists on disk.
var ErrRollbackPrecondition = errors.New("deploy: rollback precondition failed")

// Config tunes the health gate.
type Config struct {
	HealthGateRetries int
	HealthGateDelay   time.Duration
}

// DefaultConfig returns the agent's default health gate: 10 attempts, 2s apart.
func DefaultConfig() Config {
	return Config{HealthGateRetries: 10, HealthGateDelay: 2 * time.Second}
}

// Service runs the blue/green cutover algorithm.
type Service struct {
	db     *store.Store
	bus    *events.Bus
	engine runtime.Engine
	cfg    Config
}

// New constructs a deployment Service.
func New(db *store.Store, bus *events.Bus, engine runtime.Engine, cfg Config) *Service {
	return &Service{db: db, bus: bus, engine: engine, cfg: cfg}
}

// Deploy runs the cutover algorithm for a freshly-built artifact:
// cleanup_target -> start_new -> health_gate -> switch_active ->
// teardown_old, or fail_rollback on any failure.
func (s *Service) Deploy(ctx context.Context, traceID string, project store.Project, buildID int64, outputPath string) error {
	return s.cutover(ctx, traceID, project, buildID, outputPath, false)
}

// Rollback re-runs the same cutover algorithm against a previously
// successful build's stored output path. It does not alter the target
// build's own status/metadata.
func (s *Service) Rollback(ctx context.Context, traceID string, project store.Project, targetBuild store.Build) error {
	if targetBuild.DeployedSlot == nil {
		return fmt.Errorf("%w: build %d was never deployed", ErrRollbackPrecondition, targetBuild.ID)
	}
	if targetBuild.OutputPath == nil {
		return fmt.Errorf("%w: build %d has no output path", ErrRollbackPrecondition, targetBuild.ID)
	}
	if targetBuild.ProjectID != project.ID {
		return fmt.Errorf("%w: build %d does not belong to project %d", ErrRollbackPrecondition, targetBuild.ID, project.ID)
	}
	if _, err := os.Stat(*targetBuild.OutputPath); err != nil {
		return fmt.Errorf("%w: output path %s missing: %v", ErrRollbackPrecondition, *targetBuild.OutputPath, err)
	}

	return s.cutover(ctx, traceID, project, targetBuild.ID, *targetBuild.OutputPath, true)
}

func (s *Service) cutover(ctx context.Context, traceID string, project store.Project, buildID int64, outputPath string, isRollback bool) error {
	target := project.ActiveSlot.Opposite()
	old := project.ActiveSlot
	targetPort := project.PortForSlot(target)

	s.emitStage(ctx, project.ID, buildID, "cleanup_target", target, "")

	// 1. cleanup_target
	if existing := project.ContainerIDForSlot(target); existing != nil {
		if err := s.stopAndRemove(ctx, *existing); err != nil {
			log.Warn().Err(err).Str("container_id", *existing).Msg("deploy: cleanup_target failed to remove prior container")
		}
		if err := s.db.SetSlotContainerID(ctx, project.ID, target, nil); err != nil {
			return s.failRollback(ctx, traceID, project, buildID, target, nil, isRollback, fmt.Errorf("failed to clear target slot: %w", err))
		}
	}

	// 2. start_new
	s.emitStage(ctx, project.ID, buildID, "start_new", target, "")
	if err := s.engine.EnsureImage(ctx, project.RuntimeImage); err != nil {
		return s.failRollback(ctx, traceID, project, buildID, target, nil, isRollback, fmt.Errorf("failed to ensure runtime image: %w", err))
	}

	newID, err := s.engine.RunRuntime(ctx, runtime.RuntimeConfig{
		Name:          project.ContainerName(target),
		Image:         project.RuntimeImage,
		Command:       project.RuntimeCommand,
		ArtifactDir:   outputPath,
		HostPort:      targetPort,
		ContainerPort: project.RuntimePort,
		NetworkName:   project.NetworkName,
		NetworkAlias:  project.ContainerName(target),
		Labels:        map[string]string{"easycicd.project_id": fmt.Sprint(project.ID), "easycicd.slot": string(target)},
	})
	if err != nil {
		return s.failRollback(ctx, traceID, project, buildID, target, nil, isRollback, fmt.Errorf("failed to start new container: %w", err))
	}
	if err := s.db.SetSlotContainerID(ctx, project.ID, target, &newID); err != nil {
		return s.failRollback(ctx, traceID, project, buildID, target, &newID, isRollback, fmt.Errorf("failed to persist new container id: %w", err))
	}

	// 3. health_gate: only checks is_running; the project's declared
	// health_check_url is intentionally not probed.
	s.emitStage(ctx, project.ID, buildID, "health_gate", target, "")
	passed := false
	for attempt := 1; attempt <= s.cfg.HealthGateRetries; attempt++ {
		running, err := s.engine.IsRunning(ctx, newID)
		healthy := err == nil && running
		s.bus.Publish(events.HealthCheckEvent{ProjectID: project.ID, BuildID: buildID, Slot: target, Attempt: attempt, Healthy: healthy, Time: time.Now().UTC()})
		if healthy {
			passed = true
			break
		}
		if attempt < s.cfg.HealthGateRetries {
			select {
			case <-ctx.Done():
				return s.failRollback(ctx, traceID, project, buildID, target, &newID, isRollback, ctx.Err())
			case <-time.After(s.cfg.HealthGateDelay):
			}
		}
	}
	if !passed {
		return s.failRollback(ctx, traceID, project, buildID, target, &newID, isRollback, errors.New("health gate timed out"))
	}

	// 4. switch_active
	s.emitStage(ctx, project.ID, buildID, "switch_active", target, "")
	if err := s.db.SetActiveSlot(ctx, project.ID, target); err != nil {
		return s.failRollback(ctx, traceID, project, buildID, target, &newID, isRollback, fmt.Errorf("failed to switch active slot: %w", err))
	}

	if isRollback {
		// Rollback is non-destructive: the target build's own status and
		// metadata are left untouched.
		s.bus.Publish(events.DeploymentEvent{ProjectID: project.ID, BuildID: buildID, Stage: "Rollback Success", Slot: target, Time: time.Now().UTC()})
	} else {
		if err := s.db.FinishBuild(ctx, buildID, store.BuildSuccess, &outputPath); err != nil {
			log.Warn().Err(err).Int64("build_id", buildID).Msg("deploy: failed to mark build success")
		}
		if err := s.db.SetBuildDeployedSlot(ctx, buildID, target); err != nil {
			log.Warn().Err(err).Int64("build_id", buildID).Msg("deploy: failed to record deployed slot")
		}
		s.bus.Publish(events.DeploymentEvent{ProjectID: project.ID, BuildID: buildID, Stage: "Success", Slot: target, Time: time.Now().UTC()})
		s.bus.Publish(events.BuildStatusEvent{ProjectID: project.ID, BuildID: buildID, Status: store.BuildSuccess, Time: time.Now().UTC()})
	}

	// 5. teardown_old
	s.emitStage(ctx, project.ID, buildID, "teardown_old", old, "")
	if oldID := project.ContainerIDForSlot(old); oldID != nil {
		if err := s.stopAndRemove(ctx, *oldID); err != nil {
			log.Warn().Err(err).Str("container_id", *oldID).Msg("deploy: teardown_old failed")
		}
		if err := s.db.SetSlotContainerID(ctx, project.ID, old, nil); err != nil {
			log.Warn().Err(err).Msg("deploy: failed to clear old slot container id")
		}
	}

	log.Info().Str("trace_id", traceID).Int64("project_id", project.ID).Int64("build_id", buildID).Str("slot", string(target)).Msg("deploy: cutover complete")
	return nil
}

// failRollback stops/removes the new container and leaves active_slot and
// the old container untouched. On a Deploy failure it also marks the build
// Failed. A Rollback failure never mutates the target build's row: that
// build was already Success with a real output_path, and a second rollback
// attempt against it must stay valid. Either way it emits
// Deployment{Failed} + BuildStatus{Failed} + Error.
func (s *Service) failRollback(ctx context.Context, traceID string, project store.Project, buildID int64, target store.Slot, newID *string, isRollback bool, cause error) error {
	if newID != nil {
		if err := s.stopAndRemove(ctx, *newID); err != nil {
			log.Warn().Err(err).Str("container_id", *newID).Msg("deploy: fail_rollback failed to remove new container")
		}
		if err := s.db.SetSlotContainerID(ctx, project.ID, target, nil); err != nil {
			log.Warn().Err(err).Msg("deploy: fail_rollback failed to clear target slot")
		}
	}

	now := time.Now().UTC()
	if !isRollback {
		if err := s.db.FinishBuild(ctx, buildID, store.BuildFailed, nil); err != nil {
			log.Warn().Err(err).Int64("build_id", buildID).Msg("deploy: failed to record build failure")
		}
	}
	s.bus.Publish(events.DeploymentEvent{ProjectID: project.ID, BuildID: buildID, Stage: "Failed", Slot: target, Message: cause.Error(), Time: now})
	s.bus.Publish(events.BuildStatusEvent{ProjectID: project.ID, BuildID: buildID, Status: store.BuildFailed, Time: now})
	s.bus.Publish(events.ErrorEvent{ProjectID: project.ID, BuildID: buildID, Message: cause.Error(), Time: now})

	log.Error().Str("trace_id", traceID).Int64("project_id", project.ID).Int64("build_id", buildID).Err(cause).Msg("deploy: fail_rollback")
	return fmt.Errorf("deploy: fail_rollback: %w", cause)
}

func (s *Service) emitStage(ctx context.Context, projectID, buildID int64, stage string, slot store.Slot, message string) {
	s.bus.Publish(events.DeploymentEvent{ProjectID: projectID, BuildID: buildID, Stage: stage, Slot: slot, Message: message, Time: time.Now().UTC()})
	s.appendDeployLog(ctx, buildID, fmt.Sprintf("[DEPLOY] stage=%s slot=%s %s", stage, slot, message))
}

// appendDeployLog writes one line to the build's deploy log file. Best-effort: failures here never fail a cutover.
func (s *Service) appendDeployLog(ctx context.Context, buildID int64, line string) {
	b, err := s.db.GetBuild(ctx, buildID)
	if err != nil || b.DeployLogPath == "" {
		return
	}
	f, err := os.OpenFile(b.DeployLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Int64("build_id", buildID).Msg("deploy: failed to open deploy log")
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, line); err != nil {
		log.Warn().Err(err).Int64("build_id", buildID).Msg("deploy: failed to write deploy log")
	}
}

func (s *Service) stopAndRemove(ctx context.Context, containerID string) error {
	if err := s.engine.Stop(ctx, containerID, 10); err != nil {
		return err
	}
	return s.engine.Remove(ctx, containerID, true)
}
