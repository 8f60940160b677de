package gdal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Runner executes external commands. ExecRunner is the production
// implementation; tests substitute fakes.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Run runs the command, streaming its stdout.
	Run(ctx context.Context, name string, args ...string) error
}

// CommandError describes a command that could not start or exited non-zero.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Name, strings.Join(e.Args, " "))
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(": exit status %d", e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// maxStderr bounds how much stderr is kept for error messages.
const maxStderr = 4 << 10

// ExecRunner runs commands with os/exec. Stdout receives the streamed output
// of Run (discarded when nil).
type ExecRunner struct {
	Stdout io.Writer
	// WaitDelay bounds how long a canceled command may linger.
	WaitDelay time.Duration
}

func (r ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := r.command(ctx, name, args...)
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: maxStderr}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), commandError(name, args, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := r.command(ctx, name, args...)
	stderr := &tailBuffer{max: maxStderr}
	cmd.Stdout = r.Stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return commandError(name, args, stderr.String(), err)
	}
	return nil
}

func (r ExecRunner) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	wd := r.WaitDelay
	if wd <= 0 {
		wd = 5 * time.Second
	}
	cmd.WaitDelay = wd
	return cmd
}

func commandError(name string, args []string, stderr string, err error) error {
	ce := &CommandError{
		Name:   name,
		Args:   append([]string(nil), args...),
		Stderr: strings.TrimSpace(stderr),
		Err:    err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	}
	return ce
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

// ExitStatus reports the command's exit code, 0 when it never ran to exit.
func (e *CommandError) ExitStatus() int { return e.ExitCode }
