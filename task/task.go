// Package task runs shell commands as external units of work: Docker
// containers or native process groups.
//
// A Task is created by Runner.Run and consumed exactly once, by Wait for
// bounded work or by Stop for long-lived services.
package task

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/config"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

// Runner starts, awaits and stops tasks.
type Runner interface {
	// Run starts command through a shell. Setup failures (image pull,
	// container creation, process spawn) are returned immediately.
	Run(ctx context.Context, command string) (*Task, error)

	// Wait blocks until the task terminates and returns its combined output.
	// A nonzero exit is an error embedding that output.
	Wait(ctx context.Context, t *Task) (string, error)

	// Stop terminates a running task and returns the output captured so far.
	// Termination by request is not an error.
	Stop(ctx context.Context, t *Task) (string, error)
}

// Kind distinguishes the backends behind a Task.
type Kind string

const (
	KindContainer Kind = "container"
	KindProcess   Kind = "process"
)

// Task is an opaque handle to a running unit of work.
type Task struct {
	kind     Kind
	id       string
	command  string
	consumed atomic.Bool

	container *containerHandle
	process   *process
}

// ID returns the container id or the process id.
func (t *Task) ID() string {
	return t.id
}

// Kind returns the backend that runs the task.
func (t *Task) Kind() Kind {
	return t.kind
}

// Command returns the shell command the task runs.
func (t *Task) Command() string {
	return t.command
}

func (t *Task) consume() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return errors.Wrapf(errors.ErrTaskConsumed, "%s %s", t.kind, t.id)
	}
	return nil
}

// Options configures a Runner.
type Options struct {
	Image         string // docker only
	ContainerName string // docker only; a same-named container is removed before each run
	Port          int    // docker only; 0 = no published port
	Dir           string // bind-mounted at /mount for docker, working directory for native
	Docker        DockerAPI
	Logger        *zap.SugaredLogger
}

// New returns the runner for mode (config.ModeDocker or config.ModeNative).
func New(mode string, opts Options) (Runner, error) {
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("task")
	}
	switch mode {
	case config.ModeDocker:
		return NewDockerRunner(opts)
	case config.ModeNative:
		return NewNativeRunner(opts.Dir, opts.Logger), nil
	default:
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrUnknownRunnerMode, "task runner mode %q", mode),
			"use docker or native",
		)
	}
}
