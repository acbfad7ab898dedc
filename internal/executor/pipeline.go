package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// StageStatus is the exit state of one pipeline stage.
type StageStatus struct {
	Command  string
	PID      int
	ExitCode int
	// Killed is set when the stage was terminated by Kill.
	Killed bool
	Err    error
}

// OK reports a clean zero exit.
func (s StageStatus) OK() bool {
	return s.Err == nil && s.ExitCode == 0 && !s.Killed
}

func (s StageStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("%s: %v", s.Command, s.Err)
	case s.Killed:
		return fmt.Sprintf("%s: killed", s.Command)
	default:
		return fmt.Sprintf("%s: exit status %d", s.Command, s.ExitCode)
	}
}

type stage struct {
	command Command
	cmd     *exec.Cmd
	done    chan struct{}
	err     error
	tail    *TailBuffer
	killed  atomic.Bool
}

func (s *stage) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Pipeline is a chain of processes, each stdout feeding the next stdin. The
// last stage's stderr is the diagnostic stream exposed by Lines.
type Pipeline struct {
	stages  []*stage
	lines   chan string
	allDone chan struct{}
	log     logrus.FieldLogger
}

// Stream starts cmds as a pipeline. Cancelling ctx kills every stage. The
// caller must drain Lines until it is closed and then call Wait.
func (e *Executor) Stream(ctx context.Context, cmds ...Command) (*Pipeline, error) {
	if len(cmds) == 0 {
		return nil, errors.New("empty pipeline")
	}

	diagR, diagW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating diagnostic pipe: %w", err)
	}

	p := &Pipeline{
		lines:   make(chan string, 64),
		allDone: make(chan struct{}),
		log:     e.log,
	}

	var stdin *os.File
	fail := func(err error) (*Pipeline, error) {
		if stdin != nil {
			stdin.Close()
		}
		diagR.Close()
		diagW.Close()
		p.Kill()
		for _, st := range p.stages {
			<-st.done
		}
		return nil, err
	}

	for i, c := range cmds {
		st := &stage{
			command: c,
			cmd:     c.detached(),
			done:    make(chan struct{}),
			tail:    NewTailBuffer(defaultTail),
		}
		st.cmd.SysProcAttr = sysProcAttr()
		if stdin != nil {
			st.cmd.Stdin = stdin
		}

		var r, w *os.File
		if i == len(cmds)-1 {
			st.cmd.Stdout = st.tail
			st.cmd.Stderr = diagW
		} else {
			r, w, err = os.Pipe()
			if err != nil {
				return fail(fmt.Errorf("creating pipe after %s: %w", c, err))
			}
			st.cmd.Stdout = w
			st.cmd.Stderr = st.tail
		}

		startErr := st.cmd.Start()
		// the child holds its own copies of the pipe ends now
		if w != nil {
			w.Close()
		}
		if stdin != nil {
			stdin.Close()
			stdin = nil
		}
		if startErr != nil {
			if r != nil {
				r.Close()
			}
			return fail(&SpawnError{Command: c.String(), Err: startErr})
		}
		stdin = r
		p.track(st)
	}
	diagW.Close()

	e.log.WithField("pipeline", p.String()).Debug("pipeline started")

	go p.scan(diagR)
	go func() {
		for _, st := range p.stages {
			<-st.done
		}
		close(p.allDone)
	}()
	go func() {
		select {
		case <-ctx.Done():
			p.Kill()
		case <-p.allDone:
		}
	}()

	return p, nil
}

func (p *Pipeline) track(st *stage) {
	p.stages = append(p.stages, st)
	go func() {
		st.err = st.cmd.Wait()
		close(st.done)
	}()
}

func (p *Pipeline) scan(r io.ReadCloser) {
	defer close(p.lines)
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(ScanLines)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		p.lines <- line
	}
	if err := sc.Err(); err != nil {
		p.log.WithError(err).Warn("reading diagnostic stream")
	}
}

func (p *Pipeline) String() string {
	parts := make([]string, len(p.stages))
	for i, st := range p.stages {
		parts[i] = st.command.String()
	}
	return strings.Join(parts, " | ")
}

// Lines yields the writer's diagnostic output one line at a time. It is closed
// once every process holding the stream has exited.
func (p *Pipeline) Lines() <-chan string {
	return p.lines
}

func (p *Pipeline) writer() *stage {
	return p.stages[len(p.stages)-1]
}

// Alive reports whether any stage is still running.
func (p *Pipeline) Alive() bool {
	for _, st := range p.stages {
		if st.alive() {
			return true
		}
	}
	return false
}

// WriterAlive reports whether the last stage is still running.
func (p *Pipeline) WriterAlive() bool {
	return p.writer().alive()
}

// WriterDone is closed when the last stage has exited.
func (p *Pipeline) WriterDone() <-chan struct{} {
	return p.writer().done
}

// Done is closed when every stage has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.allDone
}

// Signal delivers sig to the last stage.
func (p *Pipeline) Signal(sig os.Signal) error {
	w := p.writer()
	if !w.alive() {
		return os.ErrProcessDone
	}
	return w.cmd.Process.Signal(sig)
}

// Kill forcibly terminates every stage that is still running, along with
// anything it spawned. Calling it again is harmless.
func (p *Pipeline) Kill() {
	for _, st := range p.stages {
		if !st.alive() {
			continue
		}
		st.killed.Store(true)
		if err := killTree(st.cmd.Process.Pid); err != nil {
			p.log.WithError(err).WithField("pid", st.cmd.Process.Pid).Debug("kill failed")
		}
	}
}

// PIDs returns the process ids of all stages, in pipeline order.
func (p *Pipeline) PIDs() []int {
	pids := make([]int, len(p.stages))
	for i, st := range p.stages {
		pids[i] = st.cmd.Process.Pid
	}
	return pids
}

// Tail returns the captured output of stage i: stderr for the leading stages,
// stdout for the writer.
func (p *Pipeline) Tail(i int) string {
	if i < 0 || i >= len(p.stages) {
		return ""
	}
	return p.stages[i].tail.String()
}

// Wait blocks until every stage has exited and returns their statuses.
func (p *Pipeline) Wait() []StageStatus {
	<-p.allDone
	statuses := make([]StageStatus, len(p.stages))
	for i, st := range p.stages {
		s := StageStatus{
			Command:  st.command.String(),
			PID:      st.cmd.Process.Pid,
			ExitCode: st.cmd.ProcessState.ExitCode(),
			Killed:   st.killed.Load(),
		}
		var exitErr *exec.ExitError
		if st.err != nil && !errors.As(st.err, &exitErr) {
			s.Err = st.err
		}
		statuses[i] = s
	}
	return statuses
}
