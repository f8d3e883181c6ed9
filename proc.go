package mcpwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// CommandOption represents the options for a CommandTransport.
type CommandOption func(*CommandTransport)

// CommandTransport launches a child process and exposes its stdin/stdout pair as a
// line transport. The command must be covered by the process-wide allowlist before
// the transport will launch it. Terminate guarantees the child is no longer running
// when it returns, escalating from a graceful signal to a kill.
type CommandTransport struct {
	cmd  *exec.Cmd
	pipe *PipeTransport

	logger *slog.Logger
	grace  time.Duration

	exited  chan struct{}
	waitErr error

	termOnce sync.Once
}

// WithTerminateGrace sets how long Terminate waits after the graceful termination
// signal before force-killing the process.
func WithTerminateGrace(grace time.Duration) CommandOption {
	return func(t *CommandTransport) {
		t.grace = grace
	}
}

// WithCommandLogger sets the logger for the transport.
func WithCommandLogger(logger *slog.Logger) CommandOption {
	return func(t *CommandTransport) {
		t.logger = logger.With(slog.String("component", "command-transport"))
	}
}

// StartCommand validates command against the allowlist, launches it with the given
// argument vector, and returns a running transport over its standard streams. Only
// stdout carries protocol frames; the child's stderr is discarded.
func StartCommand(command string, args []string, options ...CommandOption) (*CommandTransport, error) {
	if !CommandAllowed(command) {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotAllowed, command)
	}

	t := &CommandTransport{
		logger: slog.Default().With(slog.String("component", "command-transport")),
		exited: make(chan struct{}),
	}
	for _, opt := range options {
		opt(t)
	}
	if t.grace == 0 {
		t.grace = defaultTerminateGrace
	}

	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	t.cmd = cmd
	t.pipe = NewPipeTransport(stdout, stdin)
	t.pipe.SetLogger(t.logger)

	go func() {
		t.waitErr = cmd.Wait()
		close(t.exited)
	}()

	t.logger.Debug("started process",
		slog.String("command", command),
		slog.Int("pid", cmd.Process.Pid))

	return t, nil
}

// SendLine transmits one framed line to the child's stdin.
func (t *CommandTransport) SendLine(ctx context.Context, line string) error {
	return t.pipe.SendLine(ctx, line)
}

// ReceiveLine reads one framed line from the child's stdout. When the child exits,
// its stdout closes and pending receives observe io.EOF; a context deadline yields
// ErrReadTimeout and leaves the child running.
func (t *CommandTransport) ReceiveLine(ctx context.Context) (string, error) {
	return t.pipe.ReceiveLine(ctx)
}

// Exited is closed once the child process has exited, for any reason.
func (t *CommandTransport) Exited() <-chan struct{} {
	return t.exited
}

// Err returns the child's exit error, meaningful once Exited is closed. A clean exit
// and a still-running child both report nil.
func (t *CommandTransport) Err() error {
	select {
	case <-t.exited:
		return t.waitErr
	default:
		return nil
	}
}

// Running reports whether the child process is still alive.
func (t *CommandTransport) Running() bool {
	select {
	case <-t.exited:
		return false
	default:
		return true
	}
}

// Terminate shuts the child down: it closes stdin, sends SIGTERM, waits up to the
// configured grace interval, and force-kills if the process is still alive. After
// Terminate returns the subprocess is guaranteed not running.
func (t *CommandTransport) Terminate(ctx context.Context) error {
	var err error
	t.termOnce.Do(func() {
		err = t.terminate(ctx)
	})
	if err != nil {
		return err
	}

	select {
	case <-t.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *CommandTransport) terminate(ctx context.Context) error {
	// Closing the stream pair first gives a well-behaved peer EOF on stdin, the
	// cooperative half of the shutdown.
	t.pipe.Close()

	select {
	case <-t.exited:
		return nil
	default:
	}

	if err := t.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// The process may have exited between the check and the signal.
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return nil
		}
		t.logger.Warn("failed to signal process", slog.String("err", err.Error()))
	}

	select {
	case <-t.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.grace):
	}

	t.logger.Warn("process did not exit gracefully, killing",
		slog.Int("pid", t.cmd.Process.Pid))
	if err := t.cmd.Process.Kill(); err != nil &&
		!errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill process: %w", err)
	}

	select {
	case <-t.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the child with a background context and releases the stream pair.
func (t *CommandTransport) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.grace+defaultTerminateGrace)
	defer cancel()
	return t.Terminate(ctx)
}
