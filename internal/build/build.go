// Package build implements the build service: a single operation,
// ExecuteBuild, that prepares a workspace, clones or pulls the project's
// source, runs it through the container runtime, and persists logs.
package build

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/easycicd/agent/internal/events"
	"github.com/easycicd/agent/internal/runtime"
	"github.com/easycicd/agent/internal/store"
)

// ErrEmptyWorkspace is raised when a checkout contains nothing but .git.
var ErrEmptyWorkspace = errors.New("build: workspace is empty")

// ErrBuildFailed wraps any failure during ExecuteBuild, after the build
// has already been marked Failed and its events emitted.
var ErrBuildFailed = errors.New("build: failed")

// Service runs builds.
type Service struct {
	db     *store.Store
	bus    *events.Bus
	engine runtime.Engine

	dataDir string // root containing workspace/, output/, cache/, easycicd/logs/
}

// New constructs a build Service rooted at dataDir (matching internal/config.Config.DataDir).
func New(db *store.Store, bus *events.Bus, engine runtime.Engine, dataDir string) *Service {
	return &Service{db: db, bus: bus, engine: engine, dataDir: dataDir}
}

func (s *Service) workspaceDir(projectID int64) string {
	return filepath.Join(s.dataDir, "workspace", itoa(projectID))
}

func (s *Service) outputDir(buildID int64) string {
	return filepath.Join(s.dataDir, "output", "build"+itoa(buildID))
}

func (s *Service) cacheDir(cacheType store.CacheType) string {
	return filepath.Join(s.dataDir, "cache", string(cacheType))
}

// LogPaths computes a build's log and deploy-log paths from its
// project_id and build_number.
func (s *Service) LogPaths(projectID, buildNumber int64) (logPath, deployLogPath string) {
	dir := filepath.Join(s.dataDir, "easycicd", "logs", itoa(projectID))
	base := itoa(buildNumber)
	return filepath.Join(dir, base+".log"), filepath.Join(dir, base+"_deploy.log")
}

func itoa(n int64) string {
	return fmt.Sprintf("%d", n)
}

// ExecuteBuild runs the build pipeline for buildID and returns the path to
// its output directory on success. traceID is added to the log lines for
// a failed or completed build; the events this call publishes do not
// carry it.
func (s *Service) ExecuteBuild(ctx context.Context, traceID string, buildID int64) (string, error) {
	b, err := s.db.GetBuild(ctx, buildID)
	if err != nil {
		return "", fmt.Errorf("failed to load build %d: %w", buildID, err)
	}
	project, err := s.db.GetProject(ctx, b.ProjectID)
	if err != nil {
		return "", fmt.Errorf("failed to load project %d: %w", b.ProjectID, err)
	}

	if err := s.db.SetBuildBuilding(ctx, buildID); err != nil {
		return "", fmt.Errorf("failed to mark build building: %w", err)
	}
	s.bus.Publish(events.BuildStatusEvent{ProjectID: project.ID, BuildID: buildID, Status: store.BuildBuilding, Time: time.Now().UTC()})

	workspace := s.workspaceDir(project.ID)
	output := s.outputDir(buildID)
	cache := s.cacheDir(project.CacheType)

	for _, dir := range []string{workspace, output, cache, filepath.Dir(b.LogPath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", s.fail(ctx, project, buildID, traceID, fmt.Errorf("failed to prepare directories: %w", err))
		}
	}

	if err := s.checkoutSource(ctx, workspace, project.Repo, project.Branch); err != nil {
		return "", s.fail(ctx, project, buildID, traceID, err)
	}

	if err := verifyNonEmptyWorkspace(workspace); err != nil {
		return "", s.fail(ctx, project, buildID, traceID, err)
	}

	if strings.Contains(project.RuntimeImage, "nginx") {
		if err := writeStaticNginxConf(output); err != nil {
			return "", s.fail(ctx, project, buildID, traceID, fmt.Errorf("failed to write nginx.conf: %w", err))
		}
	}

	cfg := runtime.BuildConfig{
		Image:            project.BuildImage,
		Command:          project.BuildCommand,
		WorkspaceDir:     workspace,
		OutputDir:        output,
		CacheDir:         cache,
		CacheMountPath:   store.CacheMountPath(project.CacheType),
		WorkingDirectory: project.WorkingDirectory,
		Labels:           map[string]string{"easycicd.project_id": itoa(project.ID), "easycicd.build_id": itoa(buildID)},
	}

	if err := s.engine.EnsureImage(ctx, project.BuildImage); err != nil {
		return "", s.fail(ctx, project, buildID, traceID, fmt.Errorf("failed to ensure build image: %w", err))
	}

	result, runErr := s.engine.RunBuild(ctx, cfg)
	if err := s.persistLogs(ctx, project.ID, buildID, b.LogPath, result.Logs); err != nil {
		log.Warn().Err(err).Int64("build_id", buildID).Msg("build: failed to persist build logs")
	}
	if runErr != nil {
		return "", s.fail(ctx, project, buildID, traceID, fmt.Errorf("build container failed: %w", runErr))
	}

	log.Info().Str("trace_id", traceID).Int64("build_id", buildID).Str("output", output).Msg("build: completed")
	return output, nil
}

func (s *Service) fail(ctx context.Context, project store.Project, buildID int64, traceID string, cause error) error {
	now := time.Now().UTC()
	if err := s.db.FinishBuild(ctx, buildID, store.BuildFailed, nil); err != nil {
		log.Warn().Err(err).Int64("build_id", buildID).Msg("build: failed to record build failure")
	}
	s.bus.Publish(events.BuildStatusEvent{ProjectID: project.ID, BuildID: buildID, Status: store.BuildFailed, Time: now})
	s.bus.Publish(events.ErrorEvent{ProjectID: project.ID, BuildID: buildID, Message: cause.Error(), Time: now})
	log.Error().Str("trace_id", traceID).Int64("build_id", buildID).Err(cause).Msg("build: failed")
	return fmt.Errorf("%w: %v", ErrBuildFailed, cause)
}

// persistLogs writes the build's collected log to log_path and emits a Log
// event per line.
func (s *Service) persistLogs(ctx context.Context, projectID, buildID int64, logPath, logs string) error {
	f, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file %s: %w", logPath, err)
	}
	defer f.Close()

	writer := bufio.NewWriter(f)
	defer writer.Flush()

	scanner := bufio.NewScanner(strings.NewReader(logs))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("failed to write log line: %w", err)
		}
		s.bus.Publish(events.LogEvent{ProjectID: projectID, BuildID: buildID, Stream: "build", Line: line, Time: time.Now().UTC()})
	}
	return scanner.Err()
}

// checkoutSource clones the repo if no workspace exists yet, or pulls the
// branch if one does.
func (s *Service) checkoutSource(ctx context.Context, workspace, repo, branch string) error {
	gitDir := filepath.Join(workspace, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		cmd := exec.CommandContext(ctx, "git", "pull", "origin", branch)
		cmd.Dir = workspace
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("git pull failed: %w: %s", err, out)
		}
		return nil
	}

	url := resolveRepoURL(repo)
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", branch, url, workspace)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, out)
	}
	return nil
}

// resolveRepoURL resolves an "owner/name" shorthand against GitHub;
// anything else (a full URL or an SSH remote) is used verbatim.
func resolveRepoURL(repo string) string {
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		return repo
	}
	parts := strings.Split(repo, "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return "https://github.com/" + repo + ".git"
	}
	return repo
}

// verifyNonEmptyWorkspace rejects a checkout that contains nothing but .git.
func verifyNonEmptyWorkspace(workspace string) error {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return fmt.Errorf("failed to read workspace: %w", err)
	}
	for _, e := range entries {
		if e.Name() != ".git" {
			return nil
		}
	}
	return ErrEmptyWorkspace
}

// staticNginxConf is the fixed template the build service writes for
// nginx-based static runtimes.
const staticNginxConf = `daemon off;
events {}
http {
 server {
 listen 8080;
 root /app;
 location / {
 try_files $uri $uri/ /index.html;
 }
 location ~* \.(css|js|png|jpg|jpeg|gif|svg|ico|woff2?)$ {
 expires 7d;
 add_header Cache-Control "public";
 }
 location /health {
 return 200;
 }
 }
}
`

func writeStaticNginxConf(outputDir string) error {
	return os.WriteFile(filepath.Join(outputDir, "nginx.conf"), []byte(staticNginxConf), 0o644)
}
