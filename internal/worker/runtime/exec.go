package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ExecRuntime runs commands as local processes. The image is ignored.
// Meant for development and single-host deployments.
type ExecRuntime struct {
	WorkDir string
}

// NewExecRuntime creates a process runtime rooted at workDir.
func NewExecRuntime(workDir string) *ExecRuntime {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "planetoidgen", "runner")
	}
	return &ExecRuntime{WorkDir: workDir}
}

// Start launches the command in its own work directory under WorkDir.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("command is required")
	}

	name := opts.Name
	if name == "" {
		name = uuid.NewString()
	}
	dir := filepath.Join(e.WorkDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	logs := newLogBuffer()
	cmd := exec.CommandContext(runCtx, opts.Command[0], opts.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), envList(opts.Env)...)
	cmd.Stdout = logs
	cmd.Stderr = logs
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start %s: %w", opts.Command[0], err)
	}

	h := &ExecHandle{
		cmd:    cmd,
		logs:   logs,
		runCtx: runCtx,
		done:   make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		logs.close()
		cancel()
		close(h.done)
	}()
	return h, nil
}

// ExecHandle is a running process.
type ExecHandle struct {
	cmd    *exec.Cmd
	logs   *logBuffer
	runCtx context.Context

	done    chan struct{}
	waitErr error
}

func (h *ExecHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	case <-h.done:
	}
	if err := ctx.Err(); err != nil {
		return ExitResult{ExitCode: -1, Error: err}, err
	}
	if h.waitErr == nil {
		return ExitResult{ExitCode: 0}, nil
	}
	if errors.Is(h.runCtx.Err(), context.DeadlineExceeded) {
		return ExitResult{ExitCode: -1, Error: fmt.Errorf("timed out: %w", context.DeadlineExceeded)}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(h.waitErr, &exitErr) {
		return ExitResult{ExitCode: exitErr.ExitCode()}, nil
	}
	return ExitResult{ExitCode: -1, Error: h.waitErr}, nil
}

// Stop sends SIGTERM and kills the process if it outlives ctx.
func (h *ExecHandle) Stop(ctx context.Context) error {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return h.kill()
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return h.kill()
	}
}

func (h *ExecHandle) kill() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// StreamLogs returns the output from the start. Reads block until more output
// arrives and end with io.EOF once the process has exited.
func (h *ExecHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	return &logReader{buf: h.logs}, nil
}

// logBuffer keeps the whole process output so every reader sees it from the start.
type logBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   bytes.Buffer
	closed bool
}

func newLogBuffer() *logBuffer {
	b := &logBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.data.Write(p)
	b.cond.Broadcast()
	return n, err
}

func (b *logBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

type logReader struct {
	buf *logBuffer
	off int
}

func (r *logReader) Read(p []byte) (int, error) {
	b := r.buf
	b.mu.Lock()
	defer b.mu.Unlock()
	for r.off >= b.data.Len() && !b.closed {
		b.cond.Wait()
	}
	if r.off >= b.data.Len() {
		return 0, io.EOF
	}
	n := copy(p, b.data.Bytes()[r.off:])
	r.off += n
	return n, nil
}

func (r *logReader) Close() error { return nil }
