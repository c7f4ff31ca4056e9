package task

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

// waitDelay bounds how long Wait keeps reading output after the shell exits.
const waitDelay = 5 * time.Second

// NativeRunner runs commands as detached sh process groups on the host.
type NativeRunner struct {
	dir    string
	logger *zap.SugaredLogger

	mu     sync.Mutex
	stdout map[int]*lockedBuffer
	stderr map[int]*lockedBuffer
}

type process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	// set before done is closed
	exitCode int
	state    string

	attached atomic.Bool // a Wait or Stop is listening
	stopping atomic.Bool
}

// NewNativeRunner returns a runner executing commands inside dir.
func NewNativeRunner(dir string, l *zap.SugaredLogger) *NativeRunner {
	if l == nil {
		l = logger.ComponentLogger("task.native")
	}
	return &NativeRunner{
		dir:    dir,
		logger: l,
		stdout: make(map[int]*lockedBuffer),
		stderr: make(map[int]*lockedBuffer),
	}
}

// Run spawns sh -c command in a new process group.
func (r *NativeRunner) Run(ctx context.Context, command string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = r.dir
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	stdout, stderr := &lockedBuffer{}, &lockedBuffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to spawn %q (dir=%s)", command, r.dir)
	}

	p := &process{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}
	r.mu.Lock()
	r.stdout[p.pid] = stdout
	r.stderr[p.pid] = stderr
	r.mu.Unlock()

	r.logger.Debugw("Process started", logger.FieldTaskID, p.pid, logger.FieldCommand, command)

	go r.monitor(p, command)

	return &Task{
		kind:    KindProcess,
		id:      strconv.Itoa(p.pid),
		command: command,
		process: p,
	}, nil
}

// monitor reaps the process and reports crashes nobody is waiting for.
func (r *NativeRunner) monitor(p *process, command string) {
	_ = p.cmd.Wait()
	p.exitCode = p.cmd.ProcessState.ExitCode()
	p.state = p.cmd.ProcessState.String()
	close(p.done)

	if p.exitCode != 0 && !p.attached.Load() && !p.stopping.Load() {
		r.logger.Errorw("Process exited unexpectedly",
			logger.FieldTaskID, p.pid,
			logger.FieldCommand, command,
			"exit_code", p.exitCode,
			logger.FieldOutput, r.peekOutput(p.pid))
	}
}

// Wait blocks until the process exits. Cancelling ctx terminates the process group.
func (r *NativeRunner) Wait(ctx context.Context, t *Task) (string, error) {
	if err := t.consume(); err != nil {
		return "", err
	}
	p := t.process
	p.attached.Store(true)

	select {
	case <-p.done:
	case <-ctx.Done():
		p.stopping.Store(true)
		_ = terminateGroup(p.pid)
		<-p.done
		return r.takeOutput(p.pid), errors.Wrapf(ctx.Err(), "waiting for process %d", p.pid)
	}

	output := r.takeOutput(p.pid)
	if p.exitCode == 0 {
		return output, nil
	}
	if p.exitCode < 0 {
		return output, errors.Mark(
			errors.Newf("Process failed (%s): %s", p.state, output),
			errors.ErrProcessFailed,
		)
	}
	return output, errors.Mark(
		errors.Newf("Process failed with code %d: %s", p.exitCode, output),
		errors.ErrProcessFailed,
	)
}

// terminate is replaced in tests.
var terminate = terminateGroup

// Stop sends SIGTERM to the whole process group and waits for it to close.
// Stopping never fails: a process that is already gone or cannot be
// signalled is logged and its output returned.
func (r *NativeRunner) Stop(ctx context.Context, t *Task) (string, error) {
	if err := t.consume(); err != nil {
		return "", err
	}
	p := t.process
	p.stopping.Store(true)
	p.attached.Store(true)

	select {
	case <-p.done:
		return r.takeOutput(p.pid), nil
	default:
	}

	if err := terminate(p.pid); err != nil {
		r.logger.Warnw("Failed to terminate process group, killing it", logger.FieldTaskID, p.pid, logger.FieldError, err)
		if err := killGroup(p.pid); err != nil {
			r.logger.Warnw("Failed to kill process group", logger.FieldTaskID, p.pid, logger.FieldError, err)
			return r.takeOutput(p.pid), nil
		}
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		_ = killGroup(p.pid)
		<-p.done
	}
	return r.takeOutput(p.pid), nil
}

// takeOutput returns stdout followed by stderr and releases the buffers.
func (r *NativeRunner) takeOutput(pid int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	output := r.output(pid)
	delete(r.stdout, pid)
	delete(r.stderr, pid)
	return output
}

func (r *NativeRunner) peekOutput(pid int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output(pid)
}

func (r *NativeRunner) output(pid int) string {
	var out string
	if b, ok := r.stdout[pid]; ok {
		out += b.String()
	}
	if b, ok := r.stderr[pid]; ok {
		out += b.String()
	}
	return out
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
