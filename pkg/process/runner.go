// Package process runs external build tools and propagates their exit status
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pybundle/pybundle/pkg/logger"
)

// Invocation describes one external tool call
type Invocation struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string
}

// String renders the invocation for logs
func (inv Invocation) String() string {
	if len(inv.Args) == 0 {
		return inv.Name
	}
	return inv.Name + " " + strings.Join(inv.Args, " ")
}

// Runner executes external tools. Pipeline stages depend on this
// interface so tests can substitute a recorder.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs invocations via os/exec, teeing combined output to an
// optional log sink.
type ExecRunner struct {
	Logger  logger.Logger
	LogSink io.Writer
}

// NewExecRunner creates a runner that logs through the given logger
func NewExecRunner(log logger.Logger, logSink io.Writer) *ExecRunner {
	return &ExecRunner{Logger: log, LogSink: logSink}
}

// Run executes the invocation and blocks until it completes. A non-zero
// exit wraps the *exec.ExitError so the caller can recover the code.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir

	if len(inv.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range inv.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	var outputBuffer bytes.Buffer
	var sink io.Writer = &outputBuffer
	if r.LogSink != nil {
		sink = io.MultiWriter(&outputBuffer, r.LogSink)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if r.Logger != nil {
		r.Logger.Debug("Executing " + inv.String())
	}
	r.logToSink(fmt.Sprintf("$ %s\n", inv.String()))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		output := strings.TrimSpace(outputBuffer.String())
		if r.Logger != nil {
			r.Logger.Error("Command failed",
				logger.WithField("command", inv.String()),
				logger.WithField("error", err))
		}
		if output != "" {
			return fmt.Errorf("%s failed: %w\n%s", inv.Name, err, output)
		}
		return fmt.Errorf("%s failed: %w", inv.Name, err)
	}

	if r.Logger != nil {
		r.Logger.Debug("Command completed",
			logger.WithField("command", inv.Name),
			logger.WithField("duration", duration.Round(time.Millisecond)))
	}
	return nil
}

func (r *ExecRunner) logToSink(line string) {
	if r.LogSink != nil {
		r.LogSink.Write([]byte(line))
	}
}

// ExitCode extracts the exit code of a failed invocation. Returns -1
// when the error does not carry one.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
