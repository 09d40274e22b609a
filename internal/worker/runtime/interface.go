// Package runtime runs a pipeline stage as an external process or container.
package runtime

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Runtime starts stage executions.
// Implementations include Docker, Kubernetes and raw process execution.
type Runtime interface {
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting an execution.
type StartOptions struct {
	// Name identifies the run. It names the work directory, the container
	// or the Kubernetes Job. A random name is used when empty.
	Name    string
	Image   string
	Command []string
	Env     map[string]string
	// Timeout bounds the run. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// ExitResult describes how an execution ended.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Err converts a finished result into an error, nil when the run exited cleanly.
func (r ExitResult) Err() error {
	if r.ExitCode == 0 && r.Error == nil {
		return nil
	}
	if r.Error != nil {
		return fmt.Errorf("exit code %d: %w", r.ExitCode, r.Error)
	}
	return fmt.Errorf("exit code %d", r.ExitCode)
}

// Handle represents a running execution.
type Handle interface {
	// Wait blocks until the execution finishes.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop terminates the execution.
	Stop(ctx context.Context) error

	// StreamLogs follows the combined stdout/stderr of the execution.
	StreamLogs(ctx context.Context) (io.ReadCloser, error)
}

func envList(m map[string]string) []string {
	env := make([]string, 0, len(m))
	for k, v := range m {
		env = append(env, k+"="+v)
	}
	return env
}
