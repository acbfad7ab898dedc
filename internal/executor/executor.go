// Package executor runs external tools, either buffered until exit or as a
// streamed pipeline whose diagnostic output is read line by line.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Command is an argument vector for one process.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries ("KEY=value") are appended to the parent environment.
	Env []string
}

// Cmd builds a Command from a name and arguments.
func Cmd(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			p = fmt.Sprintf("%q", p)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func (c Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	c.apply(cmd)
	return cmd
}

// detached builds a process whose lifetime the caller manages itself.
func (c Command) detached() *exec.Cmd {
	cmd := exec.Command(c.Name, c.Args...)
	c.apply(cmd)
	return cmd
}

func (c Command) apply(cmd *exec.Cmd) {
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
}

// Result is the outcome of a buffered run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Err returns an *ExitError when the run exited non-zero, nil otherwise.
func (r Result) Err(c Command) error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExitError{Command: c.String(), Code: r.ExitCode, Stderr: strings.TrimSpace(r.Stderr)}
}

// ExitError reports a process that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.Code, e.Stderr)
}

// SpawnError reports a process that could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a spawn failure caused by a missing
// executable.
func IsNotFound(err error) bool {
	var se *SpawnError
	if !errors.As(err, &se) {
		return false
	}
	return errors.Is(se.Err, exec.ErrNotFound) || errors.Is(se.Err, os.ErrNotExist)
}

var restoreOnce sync.Once

// Executor spawns processes and logs what it runs.
type Executor struct {
	log logrus.FieldLogger
}

// New returns an Executor logging through log.
func New(log logrus.FieldLogger) *Executor {
	restoreOnce.Do(restoreSignals)
	return &Executor{log: log}
}

// Run starts c, waits for it and returns its captured output. A non-zero exit
// status is not an error here; spawn failures return a *SpawnError.
func (e *Executor) Run(ctx context.Context, c Command) (Result, error) {
	cmd := c.build(ctx)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.WithField("cmd", c.String()).Debug("running command")
	if err := cmd.Start(); err != nil {
		return Result{}, &SpawnError{Command: c.String(), Err: err}
	}
	waitErr := cmd.Wait()

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("waiting for %s: %w", c, waitErr)
	}
	if res.ExitCode != 0 {
		e.log.WithFields(logrus.Fields{
			"cmd":    c.String(),
			"status": res.ExitCode,
			"stderr": strings.TrimSpace(res.Stderr),
		}).Debug("command exited non-zero")
	}
	return res, nil
}

// Check runs c and turns a non-zero exit into an *ExitError.
func (e *Executor) Check(ctx context.Context, c Command) (Result, error) {
	res, err := e.Run(ctx, c)
	if err != nil {
		return res, err
	}
	return res, res.Err(c)
}
