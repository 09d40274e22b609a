package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

const managedByLabel = "app.kubernetes.io/managed-by"

// DockerRuntime runs each execution in a fresh container.
type DockerRuntime struct {
	client *client.Client
	logger *slog.Logger
}

// DockerHandle represents a running container.
type DockerHandle struct {
	client      *client.Client
	containerID string
	timeout     context.Context
	cancel      context.CancelFunc
}

// NewDockerRuntime creates a runtime from the standard environment (DOCKER_HOST, etc.).
func NewDockerRuntime(logger *slog.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerRuntime{client: cli, logger: logger.With("component", "docker")}, nil
}

// Start pulls the image when missing, then creates and starts the container.
func (d *DockerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if _, _, err := d.client.ImageInspectWithRaw(ctx, opts.Image); err != nil {
		d.logger.Info("pulling image", "image", opts.Image)
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	resp, err := d.client.ContainerCreate(ctx, &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    envList(opts.Env),
		Tty:    true,
		Labels: map[string]string{
			managedByLabel:     "planetoidgen",
			"planetoidgen.run": opts.Name,
		},
	}, nil, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	d.logger.Debug("container started", "container_id", resp.ID, "image", opts.Image)

	h := &DockerHandle{client: d.client, containerID: resp.ID}
	if opts.Timeout > 0 {
		h.timeout, h.cancel = context.WithTimeout(context.Background(), opts.Timeout)
	}
	return h, nil
}

func (h *DockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	var deadline <-chan struct{}
	if h.timeout != nil {
		defer h.cancel()
		deadline = h.timeout.Done()
	}

	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		if status.Error != nil {
			return ExitResult{
				ExitCode: int(status.StatusCode),
				Error:    fmt.Errorf("%s", status.Error.Message),
			}, nil
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-deadline:
		_ = h.Stop(ctx)
		return ExitResult{ExitCode: -1, Error: fmt.Errorf("timed out: %w", context.DeadlineExceeded)}, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *DockerHandle) Stop(ctx context.Context) error {
	timeout := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout})
}

// StreamLogs follows the container output. The container runs with a TTY so
// the stream is raw text.
func (h *DockerHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	return h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
}
