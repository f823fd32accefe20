// Package command runs the external tools (ffmpeg, ffprobe, whisper) with a
// per-call timeout and captured output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/translate/chunkscribe/internal/apperr"
	"github.com/obiente/translate/chunkscribe/internal/metrics"
)

// Request describes one invocation.
type Request struct {
	// Name is the logical command ("ffmpeg", "ffprobe", "whisper"), used to
	// resolve the binary and to label metrics.
	Name    string
	Args    []string
	Timeout time.Duration // 0 means no timeout
}

// Response is the captured result of a finished process.
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs external commands. Tests substitute a fake that records requests.
type Executor interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// ExitError is returned when the process ran but exited non-zero.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 500 {
		msg = "..." + msg[len(msg)-500:]
	}
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.ExitCode, msg)
}

// Local executes commands on this machine.
type Local struct {
	// Binaries maps a logical name to a path. Names missing here are looked up on PATH.
	Binaries map[string]string
	// Verbose copies the child's stderr to Diagnostics while it runs.
	Verbose     bool
	Diagnostics io.Writer
	Metrics     *metrics.Recorder
}

// Run executes req and waits for it. A deadline hit kills the whole process
// group and returns an apperr.Timeout.
func (l *Local) Run(ctx context.Context, req Request) (Response, error) {
	bin, err := l.resolve(req.Name)
	if err != nil {
		return Response{ExitCode: -1}, fmt.Errorf("resolve %s: %w", req.Name, err)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, req.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if l.Verbose {
		diag := l.Diagnostics
		if diag == nil {
			diag = os.Stderr
		}
		cmd.Stderr = io.MultiWriter(&stderr, diag)
	}

	log.Debug().Str("command", req.Name).Strs("args", req.Args).Msg("exec")
	start := time.Now()
	runErr := cmd.Run()
	resp := Response{
		ExitCode: exitCode(runErr),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case runErr == nil:
		l.Metrics.RecordCommand(req.Name, "success", resp.Duration.Seconds())
		return resp, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		l.Metrics.RecordCommand(req.Name, "timeout", resp.Duration.Seconds())
		return resp, apperr.New(apperr.Timeout, req.Name,
			fmt.Errorf("no result after %v: %w", req.Timeout, context.DeadlineExceeded))
	default:
		l.Metrics.RecordCommand(req.Name, "failed", resp.Duration.Seconds())
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return resp, &ExitError{Name: req.Name, ExitCode: resp.ExitCode, Stderr: resp.Stderr}
		}
		return resp, fmt.Errorf("run %s: %w", req.Name, runErr)
	}
}

// LookPath reports whether the logical command resolves to an executable.
func (l *Local) LookPath(name string) (string, error) {
	return l.resolve(name)
}

func (l *Local) resolve(name string) (string, error) {
	if p, ok := l.Binaries[name]; ok && p != "" {
		return exec.LookPath(p)
	}
	return exec.LookPath(name)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
