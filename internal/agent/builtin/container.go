package builtin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"planetoidgen/internal/agent"
	"planetoidgen/internal/messaging"
	"planetoidgen/internal/tile"
	"planetoidgen/internal/worker/runtime"
)

const defaultContainerTimeout = 30 * time.Minute

type containerSettings struct {
	Image        string            `yaml:"image"`
	Command      []string          `yaml:"command"`
	Env          map[string]string `yaml:"env"`
	Timeout      time.Duration     `yaml:"timeout"`
	Dependencies []tile.Direction  `yaml:"dependencies"`
}

// ContainerAgent runs the stage as an external process through the worker's runtime.
// The tile address is passed in the environment.
type ContainerAgent struct {
	settings containerSettings
	runtime  runtime.Runtime
	logger   *slog.Logger
}

func (a *ContainerAgent) Title() string { return ContainerTitle }

func (a *ContainerAgent) Description() string {
	return "Runs an image or command per tile. Settings: image, command, env, timeout, dependencies."
}

func (a *ContainerAgent) Initialize(settings string, deps agent.Deps) error {
	a.settings = containerSettings{Timeout: defaultContainerTimeout}
	if err := decodeSettings(ContainerTitle, settings, &a.settings); err != nil {
		return err
	}
	if a.settings.Image == "" && len(a.settings.Command) == 0 {
		return errors.Join(agent.ErrInvalidSettings, errors.New("image or command is required"))
	}
	if a.settings.Timeout <= 0 {
		a.settings.Timeout = defaultContainerTimeout
	}

	deps = deps.WithDefaults()
	a.runtime = deps.Runtime
	a.logger = deps.Logger
	return nil
}

func (a *ContainerAgent) Dependencies(z int16) ([]agent.Dependency, error) {
	return dependencies(a.settings.Dependencies), nil
}

// Env is the environment handed to the stage process.
func Env(job messaging.Job) map[string]string {
	return map[string]string{
		"PLANETOID_ID":  strconv.Itoa(job.PlanetoidID),
		"TILE_Z":        strconv.Itoa(int(job.Z)),
		"TILE_X":        strconv.FormatInt(job.X, 10),
		"TILE_Y":        strconv.FormatInt(job.Y, 10),
		"AGENT_INDEX":   strconv.Itoa(job.AgentIndex),
		"JOB_ID":        job.ID,
		"CONNECTION_ID": job.ConnectionID,
	}
}

func (a *ContainerAgent) Execute(ctx context.Context, job messaging.Job) error {
	if a.runtime == nil {
		return errors.New("no container runtime configured on this worker")
	}

	env := Env(job)
	for k, v := range a.settings.Env {
		if _, reserved := env[k]; !reserved {
			env[k] = v
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, a.settings.Timeout)
	defer cancel()

	handle, err := a.runtime.Start(execCtx, runtime.StartOptions{
		Name:    fmt.Sprintf("%s-%d", job.ID, job.AgentIndex),
		Image:   a.settings.Image,
		Command: a.settings.Command,
		Env:     env,
		Timeout: a.settings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to start stage: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.streamLogs(execCtx, job, handle)
	}()

	result, err := handle.Wait(execCtx)
	if err != nil {
		if cause := execCtx.Err(); cause != nil {
			// Timed out or the worker is shutting down: the run must not outlive the job.
			a.stop(job, handle)
			wg.Wait()
			if cause == context.DeadlineExceeded {
				return fmt.Errorf("stage timed out after %v", a.settings.Timeout)
			}
			return fmt.Errorf("stage interrupted: %w", cause)
		}
		wg.Wait()
		return fmt.Errorf("waiting for stage: %w", err)
	}
	wg.Wait()

	if err := result.Err(); err != nil {
		return fmt.Errorf("stage failed: %w", err)
	}
	return nil
}

func (a *ContainerAgent) stop(job messaging.Job, handle runtime.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := handle.Stop(ctx); err != nil {
		a.logger.Error("failed to stop stage run", "job", job.String(), "error", err)
	}
}

// streamLogs forwards the stage output to the worker log, one record per line.
func (a *ContainerAgent) streamLogs(ctx context.Context, job messaging.Job, handle runtime.Handle) {
	rc, err := handle.StreamLogs(ctx)
	if err != nil {
		a.logger.Warn("failed to get log stream", "job", job.String(), "error", err)
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := strings.ReplaceAll(scanner.Text(), "\x00", "")
		a.logger.Info(line, "job", job.String(), "agent_index", job.AgentIndex, "stream", "stage")
	}
}
