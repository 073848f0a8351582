package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DockerEngine implements Engine against a local Docker (Moby) daemon.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the daemon described by the standard Docker
// environment variables (DOCKER_HOST, DOCKER_CERT_PATH...).
func NewDockerEngine() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

func (e *DockerEngine) EnsureImage(ctx context.Context, imageName string) error {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := e.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImageUnavailable, imageName, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImageUnavailable, imageName, err)
	}
	return nil
}

func buildMounts(cfg BuildConfig) []Mount {
	mounts := []Mount{
		{HostPath: cfg.WorkspaceDir, ContainerPath: "/app", ReadOnly: true},
		{HostPath: cfg.OutputDir, ContainerPath: "/output", ReadOnly: false},
	}
	if cfg.CacheDir != "" && cfg.CacheMountPath != "" {
		mounts = append(mounts, Mount{HostPath: cfg.CacheDir, ContainerPath: cfg.CacheMountPath})
	}
	return mounts
}

func toDockerBinds(mounts []Mount) []string {
	binds := make([]string, 0, len(mounts))
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, mode))
	}
	return binds
}

// RunBuild implements the build container contract.
func (e *DockerEngine) RunBuild(ctx context.Context, cfg BuildConfig) (BuildResult, error) {
	workdir := "/app"
	if cfg.WorkingDirectory != "" {
		workdir = "/app/" + cfg.WorkingDirectory
	}

	containerCfg := &container.Config{
		Image:      cfg.Image,
		Cmd:        []string{"sh", "-c", cfg.Command},
		WorkingDir: workdir,
		Labels:     cfg.Labels,
	}
	hostCfg := &container.HostConfig{
		Binds: toDockerBinds(buildMounts(cfg)),
	}

	resp, err := e.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to create build container: %w", err)
	}
	id := resp.ID

	defer e.cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})

	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return BuildResult{}, fmt.Errorf("failed to start build container: %w", err)
	}

	waitCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return BuildResult{}, fmt.Errorf("failed to wait for build container: %w", err)
		}
	case status := <-waitCh:
		exitCode = status.StatusCode
	}

	logs, err := e.collectLogs(context.Background(), id)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to collect build logs: %w", err)
	}

	result := BuildResult{ContainerID: id, Logs: logs, ExitCode: int(exitCode)}
	if exitCode != 0 {
		return result, &BuildNonZeroExitError{ExitCode: int(exitCode)}
	}
	return result, nil
}

func (e *DockerEngine) collectLogs(ctx context.Context, id string) (string, error) {
	reader, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil && err != io.EOF {
		return buf.String(), err
	}
	return buf.String(), nil
}

// RunRuntime implements the runtime container contract, idempotent by
// container name: any pre-existing container with the target name is
// stopped and removed first.
func (e *DockerEngine) RunRuntime(ctx context.Context, cfg RuntimeConfig) (string, error) {
	if existing, err := e.findByName(ctx, cfg.Name); err == nil && existing != "" {
		e.cli.ContainerStop(ctx, existing, container.StopOptions{})
		e.cli.ContainerRemove(ctx, existing, container.RemoveOptions{Force: true})
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	exposedPorts := make(nat.PortSet)
	portBindings := make(nat.PortMap)
	containerPort := nat.Port(strconv.Itoa(cfg.ContainerPort) + "/tcp")
	exposedPorts[containerPort] = struct{}{}
	portBindings[containerPort] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(cfg.HostPort)}}

	var binds []string
	if cfg.ArtifactDir != "" {
		binds = append(binds, fmt.Sprintf("%s:/app:ro", cfg.ArtifactDir))
	}
	if cfg.PersistVolume != "" {
		binds = append(binds, fmt.Sprintf("%s:/data:rw", cfg.PersistVolume))
	}

	var cmd []string
	if cfg.Command != "" {
		cmd = []string{"sh", "-c", cfg.Command}
	}

	containerCfg := &container.Config{
		Image:        cfg.Image,
		Cmd:          cmd,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       cfg.Labels,
	}
	hostCfg := &container.HostConfig{
		PortBindings:  portBindings,
		Binds:         binds,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	resp, err := e.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create runtime container %s: %w", cfg.Name, err)
	}

	if cfg.NetworkName != "" {
		if err := e.EnsureNetwork(ctx, cfg.NetworkName, cfg.Labels); err != nil {
			return "", err
		}
		aliases := []string{}
		if cfg.NetworkAlias != "" {
			aliases = []string{cfg.NetworkAlias}
		}
		if err := e.ConnectNetwork(ctx, cfg.NetworkName, resp.ID, aliases); err != nil {
			return "", err
		}
	}

	if err := e.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start runtime container %s: %w", cfg.Name, err)
	}

	return resp.ID, nil
}

func (e *DockerEngine) findByName(ctx context.Context, name string) (string, error) {
	inspect, err := e.cli.ContainerInspect(ctx, name)
	if err != nil {
		return "", err
	}
	return inspect.ID, nil
}

func (e *DockerEngine) IsRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := e.cli.ContainerInspect(ctx, id)
	if client.IsErrNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

func (e *DockerEngine) Start(ctx context.Context, id string) error {
	err := e.cli.ContainerStart(ctx, id, container.StartOptions{})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

func (e *DockerEngine) Stop(ctx context.Context, id string, graceSeconds int) error {
	timeout := graceSeconds
	err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

func (e *DockerEngine) Remove(ctx context.Context, id string, force bool) error {
	err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

func (e *DockerEngine) StreamLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	reader, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return nil, fmt.Errorf("failed to stream logs for container %s: %w", id, err)
	}
	return reader, nil
}

func (e *DockerEngine) CreateExec(ctx context.Context, id string, cmd []string) (*ExecSession, error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
	}
	created, err := e.cli.ContainerExecCreate(ctx, id, execCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec on container %s: %w", id, err)
	}

	attach, err := e.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec %s: %w", created.ID, err)
	}

	return &ExecSession{
		ExecID: created.ID,
		Stdin:  attach.Conn,
		Output: attach.Reader,
		Close:  func() error { attach.Close(); return nil },
	}, nil
}

func (e *DockerEngine) ResizeTTY(ctx context.Context, execID string, rows, cols uint) error {
	err := e.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{Height: rows, Width: cols})
	if err != nil {
		return fmt.Errorf("failed to resize exec %s: %w", execID, err)
	}
	return nil
}

func (e *DockerEngine) ListAll(ctx context.Context) ([]ContainerInfo, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		out = append(out, ContainerInfo{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			State:   c.State,
			Labels:  c.Labels,
			Created: time.Unix(c.Created, 0),
		})
	}
	return out, nil
}

func (e *DockerEngine) EnsureNetwork(ctx context.Context, networkName string, labels map[string]string) error {
	networks, err := e.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == networkName {
			return nil
		}
	}

	_, err = e.cli.NetworkCreate(ctx, networkName, network.CreateOptions{Driver: "bridge", Labels: labels})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", networkName, err)
	}
	return nil
}

func (e *DockerEngine) ConnectNetwork(ctx context.Context, networkName, containerID string, aliases []string) error {
	err := e.cli.NetworkConnect(ctx, networkName, containerID, &network.EndpointSettings{Aliases: aliases})
	if err != nil {
		return fmt.Errorf("failed to connect container %s to network %s: %w", containerID, networkName, err)
	}
	return nil
}
