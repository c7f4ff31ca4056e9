package task

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

// MountPath is where Options.Dir is mounted inside the container.
const MountPath = "/mount"

// DockerAPI is the subset of the Docker Engine API used by DockerRunner.
// *client.Client satisfies it.
type DockerAPI interface {
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

type containerHandle struct {
	stopFollow context.CancelFunc
	followed   chan struct{}
}

// DockerRunner runs commands in containers of a single image.
type DockerRunner struct {
	docker        DockerAPI
	image         string
	containerName string
	port          int
	mountDir      string
	logger        *zap.SugaredLogger
}

// NewDockerRunner returns a runner for opts. Without opts.Docker a client is
// configured from the DOCKER_* environment.
func NewDockerRunner(opts Options) (*DockerRunner, error) {
	if opts.Image == "" {
		return nil, errors.New("docker runner requires an image")
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("task.docker")
	}

	api := opts.Docker
	if api == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Docker client")
		}
		api = cli
	}

	mountDir := opts.Dir
	if mountDir != "" {
		abs, err := filepath.Abs(mountDir)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid mount directory %s", mountDir)
		}
		mountDir = abs
	}

	return &DockerRunner{
		docker:        api,
		image:         opts.Image,
		containerName: opts.ContainerName,
		port:          opts.Port,
		mountDir:      mountDir,
		logger:        opts.Logger,
	}, nil
}

// Run removes a stale same-named container, pulls the image and starts a
// container running command through sh.
func (r *DockerRunner) Run(ctx context.Context, command string) (*Task, error) {
	if r.containerName != "" {
		if err := r.remove(ctx, r.containerName); err != nil {
			return nil, errors.Wrapf(err, "failed to remove stale container %s", r.containerName)
		}
	}

	if err := r.pull(ctx); err != nil {
		return nil, err
	}

	cfg, hostCfg := r.containerConfig(command)
	created, err := r.docker.ContainerCreate(ctx, cfg, hostCfg, nil, nil, r.containerName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create container (image=%s)", r.image)
	}
	for _, w := range created.Warnings {
		r.logger.Warnw("Container warning", logger.FieldTaskID, created.ID, "warning", w)
	}

	if err := r.docker.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = r.remove(context.WithoutCancel(ctx), created.ID)
		return nil, errors.Wrapf(err, "failed to start container %s", created.ID)
	}

	r.logger.Debugw("Container started",
		logger.FieldTaskID, created.ID,
		logger.FieldImage, r.image,
		logger.FieldCommand, command)

	t := &Task{
		kind:      KindContainer,
		id:        created.ID,
		command:   command,
		container: r.follow(created.ID),
	}
	return t, nil
}

// Wait blocks until the container exits, then returns its logs.
func (r *DockerRunner) Wait(ctx context.Context, t *Task) (string, error) {
	if err := t.consume(); err != nil {
		return "", err
	}
	defer r.unfollow(t)

	statusCh, errCh := r.docker.ContainerWait(ctx, t.id, container.WaitConditionNotRunning)
	var status container.WaitResponse
	select {
	case err := <-errCh:
		return "", errors.Wrapf(err, "failed waiting for container %s", t.id)
	case status = <-statusCh:
	case <-ctx.Done():
		_ = r.remove(context.WithoutCancel(ctx), t.id)
		return "", errors.Wrapf(ctx.Err(), "waiting for container %s", t.id)
	}

	output, err := r.logs(ctx, t.id)
	if err != nil {
		return "", err
	}
	if err := r.remove(ctx, t.id); err != nil {
		r.logger.Warnw("Failed to remove finished container", logger.FieldTaskID, t.id, logger.FieldError, err)
	}

	if status.StatusCode != 0 {
		return output, errors.Mark(
			errors.Newf("Task failed with status code %d: %s", status.StatusCode, output),
			errors.ErrProcessFailed,
		)
	}
	return output, nil
}

// Stop captures the container's logs and force-removes it. Failures are
// logged, never returned, except for a task that was already consumed.
func (r *DockerRunner) Stop(ctx context.Context, t *Task) (string, error) {
	if err := t.consume(); err != nil {
		return "", err
	}
	defer r.unfollow(t)

	output, err := r.logs(ctx, t.id)
	if err != nil && !errdefs.IsNotFound(errors.UnwrapAll(err)) {
		r.logger.Warnw("Failed to capture container logs", logger.FieldTaskID, t.id, logger.FieldError, err)
	}
	if err := r.remove(ctx, t.id); err != nil {
		r.logger.Warnw("Failed to remove stopped container", logger.FieldTaskID, t.id, logger.FieldError, err)
	}
	return output, nil
}

func (r *DockerRunner) containerConfig(command string) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:      r.image,
		Entrypoint: []string{"sh", "-c"},
		Cmd:        []string{command},
		User:       fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
	hostCfg := &container.HostConfig{}

	if r.port != 0 {
		port := nat.Port(fmt.Sprintf("%d/tcp", r.port))
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostPort: strconv.Itoa(r.port)}},
		}
	}

	if r.mountDir != "" {
		hostCfg.Binds = []string{r.mountDir + ":" + MountPath}
		cfg.WorkingDir = MountPath
	}

	return cfg, hostCfg
}

func (r *DockerRunner) pull(ctx context.Context) error {
	stream, err := r.docker.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed to pull image %s", r.image)
	}
	defer stream.Close()

	progress := logger.NewLineWriter(r.logger, "Image pull", logger.FieldImage, r.image)
	defer progress.Flush()

	// Errors reported inside the progress stream fail the pull too
	if err := jsonmessage.DisplayJSONMessagesStream(stream, progress, 0, false, nil); err != nil {
		return errors.Wrapf(err, "failed to pull image %s", r.image)
	}
	return nil
}

// follow streams the container's combined log to the debug logger until unfollow.
func (r *DockerRunner) follow(id string) *containerHandle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &containerHandle{stopFollow: cancel, followed: make(chan struct{})}

	go func() {
		defer close(h.followed)
		rc, err := r.docker.ContainerLogs(ctx, id, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Tail:       "100",
		})
		if err != nil {
			return
		}
		defer rc.Close()

		w := logger.NewLineWriter(r.logger, "Container output", logger.FieldTaskID, id)
		_, _ = stdcopy.StdCopy(w, w, rc)
		w.Flush()
	}()

	return h
}

func (r *DockerRunner) unfollow(t *Task) {
	if t.container == nil {
		return
	}
	t.container.stopFollow()
	<-t.container.followed
}

func (r *DockerRunner) logs(ctx context.Context, id string) (string, error) {
	rc, err := r.docker.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", errors.Wrapf(err, "failed to read logs of container %s", id)
	}
	defer rc.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return out.String(), errors.Wrapf(err, "failed to read logs of container %s", id)
	}
	return out.String(), nil
}

// remove force-removes a container; a missing container is not an error.
func (r *DockerRunner) remove(ctx context.Context, idOrName string) error {
	err := r.docker.ContainerRemove(ctx, idOrName, container.RemoveOptions{Force: true})
	if err == nil || errdefs.IsNotFound(err) {
		return nil
	}
	return err
}
