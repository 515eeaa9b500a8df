// Package runner invokes the external batch pipeline.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/metalagman/cutscan/internal/logging"
	"github.com/rs/zerolog/log"
)

// Request identifies one pipeline invocation.
type Request struct {
	OutputDir string
	RunName   string
	Condition string
}

// Runner executes the pipeline synchronously. A non-zero exit is reported as
// *ExternalRunFailure together with the exit code.
type Runner interface {
	Run(ctx context.Context, req Request) (exitCode int, err error)
}

// ExternalRunFailure reports a run that did not exit cleanly.
type ExternalRunFailure struct {
	RunName  string
	ExitCode int
	Err      error
}

func (e *ExternalRunFailure) Error() string {
	return fmt.Sprintf("run %s failed (exit code %d): %v", e.RunName, e.ExitCode, e.Err)
}

func (e *ExternalRunFailure) Unwrap() error { return e.Err }

// Config describes how to start the pipeline.
type Config struct {
	// Command is the executable followed by fixed leading arguments.
	Command []string
	WorkDir string
	// LogRoot receives <condition>/<run>/logs/{stdout,stderr}.txt.
	LogRoot string
	Env     []string
}

// Exec runs the pipeline as a child process.
type Exec struct {
	cfg Config
}

// New validates cfg and returns an Exec runner.
func New(cfg Config) (*Exec, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.New("runner command is required")
	}
	if cfg.LogRoot == "" {
		return nil, errors.New("runner log root is required")
	}
	return &Exec{cfg: cfg}, nil
}

// LogDir returns the directory holding the logs of a run.
func (e *Exec) LogDir(req Request) string {
	return filepath.Join(e.cfg.LogRoot, req.Condition, req.RunName, "logs")
}

// Run invokes "<command...> <outputDir> <runName> <condition>".
func (e *Exec) Run(ctx context.Context, req Request) (int, error) {
	logsDir := e.LogDir(req)
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return -1, fmt.Errorf("create logs dir: %w", err)
	}
	stdoutFile, err := os.OpenFile(filepath.Join(logsDir, "stdout.txt"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return -1, fmt.Errorf("create stdout log file: %w", err)
	}
	defer func() { _ = stdoutFile.Close() }()

	stderrFile, err := os.OpenFile(filepath.Join(logsDir, "stderr.txt"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return -1, fmt.Errorf("create stderr log file: %w", err)
	}
	defer func() { _ = stderrFile.Close() }()

	args := append(append([]string(nil), e.cfg.Command[1:]...), req.OutputDir, req.RunName, req.Condition)
	cmd := exec.CommandContext(ctx, e.cfg.Command[0], args...)
	cmd.Dir = e.cfg.WorkDir
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Stdout, cmd.Stderr = outputWriters(logging.DebugEnabled(), stdoutFile, stderrFile)

	log.Debug().Str("cmd", e.cfg.Command[0]).Strs("args", args).Str("dir", e.cfg.WorkDir).Msg("starting runner")
	err = cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return exitCode(err), fmt.Errorf("run %s: %w", req.RunName, ctxErr)
	}
	code := exitCode(err)
	return code, &ExternalRunFailure{RunName: req.RunName, ExitCode: code, Err: err}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func outputWriters(debugEnabled bool, stdoutLog io.Writer, stderrLog io.Writer) (io.Writer, io.Writer) {
	if !debugEnabled {
		return stdoutLog, stderrLog
	}
	return io.MultiWriter(os.Stderr, stdoutLog), io.MultiWriter(os.Stderr, stderrLog)
}
