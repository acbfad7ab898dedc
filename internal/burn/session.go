// Package burn drives one decompress-and-write pipeline from start to a
// terminal verdict while turning the writer's chatter into progress reports.
package burn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/progress"
)

// State is the lifecycle position of a Session.
type State int

const (
	Created State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// ErrAlreadyStarted is returned when a session is started a second time.
var ErrAlreadyStarted = errors.New("burn session already started")

// ProgressFunc receives percent (0..100) and a human status line. It is called
// from the draining goroutine and must return quickly.
type ProgressFunc func(percent int, status string)

// Pipeline describes the processes a session runs.
type Pipeline struct {
	// Stages run in order, the last one being the raw device writer.
	Stages []executor.Command
	Parser progress.Parser
	// PollSignal, when set, is sent to the writer periodically to make it
	// print a progress line.
	PollSignal os.Signal
}

// Options tunes reporting and process handling.
type Options struct {
	ReportInterval  time.Duration
	PollInterval    time.Duration
	PollDelay       time.Duration
	ReapGrace       time.Duration
	Estimator       progress.Estimator
	ETAUnknownAfter time.Duration
	Clock           func() time.Time
}

// DefaultOptions returns the reference cadence: reports and polls every 300ms,
// first poll after one second.
func DefaultOptions() Options {
	return Options{
		ReportInterval:  300 * time.Millisecond,
		PollInterval:    300 * time.Millisecond,
		PollDelay:       time.Second,
		ReapGrace:       2 * time.Second,
		Estimator:       progress.Estimator{Smoothing: progress.DefaultSmoothing},
		ETAUnknownAfter: 24 * time.Hour,
		Clock:           time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReportInterval <= 0 {
		o.ReportInterval = d.ReportInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.PollDelay < 0 {
		o.PollDelay = d.PollDelay
	}
	if o.ReapGrace <= 0 {
		o.ReapGrace = d.ReapGrace
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// Result is the terminal outcome of a session.
type Result struct {
	State State
	Err   error
}

// Success reports whether the image was written completely.
func (r Result) Success() bool {
	return r.State == Completed && r.Err == nil
}

const maxUnparsed = 20

// Session owns exactly one pipeline for its lifetime. It is single-use: a
// retry needs a new Session.
type Session struct {
	id       string
	exec     *executor.Executor
	pipeline Pipeline
	total    int64
	report   ProgressFunc
	opts     Options
	log      logrus.FieldLogger

	mu              sync.Mutex
	state           State
	cancel          context.CancelFunc
	cancelRequested bool
	proc            *executor.Pipeline

	// Owned by the draining goroutine, read only after it has finished.
	previous       progress.Sample
	stage          int
	pendingFailure bool
	errorLines     []string
	unparsed       []string
}

// NewSession prepares a session writing totalBytes through pipeline.
func NewSession(exec *executor.Executor, pipeline Pipeline, totalBytes int64, report ProgressFunc, opts Options, log logrus.FieldLogger) (*Session, error) {
	if len(pipeline.Stages) == 0 {
		return nil, errors.New("burn pipeline has no stages")
	}
	if pipeline.Parser == nil {
		return nil, errors.New("burn pipeline has no progress parser")
	}
	if totalBytes <= 0 {
		return nil, fmt.Errorf("invalid image size %d", totalBytes)
	}
	if report == nil {
		report = func(int, string) {}
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		exec:     exec,
		pipeline: pipeline,
		total:    totalBytes,
		report:   report,
		opts:     opts.withDefaults(),
		log:      log.WithField("session", id),
		state:    Created,
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run starts the session and blocks until it reaches a terminal state.
func (s *Session) Run(ctx context.Context) Result {
	return <-s.Start(ctx)
}

// Start spawns the pipeline and returns a channel that yields the terminal
// Result exactly once.
func (s *Session) Start(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)

	s.mu.Lock()
	if s.state != Created {
		state := s.state
		s.mu.Unlock()
		out <- Result{State: state, Err: ErrAlreadyStarted}
		return out
	}
	if s.cancelRequested {
		s.mu.Unlock()
		out <- s.finish(Cancelled, context.Canceled)
		return out
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = Running
	s.mu.Unlock()

	s.previous = progress.Sample{Timestamp: s.opts.Clock()}
	s.report(0, "preparing to burn OS image..")

	proc, err := s.exec.Stream(runCtx, s.pipeline.Stages...)
	if err != nil {
		cancel()
		category := failure.BurnError
		if executor.IsNotFound(err) {
			category = failure.ToolsError
		}
		out <- s.finish(Failed, failure.New(category, err, err.Error()))
		return out
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	s.log.WithField("pipeline", proc.String()).Info("burning image")

	go func() {
		defer cancel()
		out <- s.run(runCtx, proc)
	}()
	return out
}

// Cancel kills the pipeline and stops polling. It is a no-op on a terminal
// session; on a session not yet started it makes the start end Cancelled.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Terminal():
	case s.state == Created:
		s.cancelRequested = true
	default:
		s.log.Info("cancelling burn")
		s.cancel()
	}
}

func (s *Session) run(ctx context.Context, proc *executor.Pipeline) Result {
	drained := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		defer close(drained)
		s.drain(proc)
		return nil
	})
	if s.pipeline.PollSignal != nil {
		g.Go(func() error {
			s.poll(ctx, proc, drained)
			return nil
		})
	}
	_ = g.Wait()

	statuses := s.reap(proc)

	if ctx.Err() != nil {
		return s.finish(Cancelled, ctx.Err())
	}

	var errs *multierror.Error
	if s.pendingFailure {
		errs = multierror.Append(errs, fmt.Errorf("writer reported: %s", s.errorLines[0]))
	}
	for i, st := range statuses {
		if !st.OK() {
			errs = multierror.Append(errs, fmt.Errorf("stage %d failed: %s", i+1, st))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return s.finish(Failed, failure.New(failure.BurnError, err, s.diagnostic(proc, statuses)))
	}

	res := s.finish(Completed, nil)
	s.report(100, "burning finished successfully")
	return res
}

// drain consumes the diagnostic stream until it closes. The verdict is left to
// the caller: one bad line does not stop the stream.
func (s *Session) drain(proc *executor.Pipeline) {
	for raw := range proc.Lines() {
		line := s.pipeline.Parser.Parse(raw, s.opts.Clock())
		if line.IsError {
			s.pendingFailure = true
			s.errorLines = append(s.errorLines, raw)
			s.log.WithField("line", raw).Warn("writer reported an error")
		}
		if line.Sample != nil {
			s.observe(*line.Sample)
			continue
		}
		if !line.IsError {
			s.log.WithField("line", raw).Debug("unrecognized writer output")
			s.unparsed = append(s.unparsed, raw)
			if len(s.unparsed) > maxUnparsed {
				s.unparsed = s.unparsed[1:]
			}
		}
	}
}

func (s *Session) observe(sample progress.Sample) {
	if sample.BytesWritten < s.previous.BytesWritten {
		s.stage++
		s.log.WithFields(logrus.Fields{
			"stage":    s.stage,
			"previous": s.previous.BytesWritten,
			"current":  sample.BytesWritten,
		}).Info("writer counter restarted, new stage")
		s.previous = progress.Sample{Timestamp: s.previous.Timestamp}
	}
	if sample.BytesWritten <= s.previous.BytesWritten {
		return
	}
	elapsed := sample.Timestamp.Sub(s.previous.Timestamp)
	if elapsed < s.opts.ReportInterval {
		return
	}
	percent := progress.Percent(sample.BytesWritten, s.total)
	if percent >= 100 {
		// 100% is reported once the pipeline has actually finished
		return
	}
	speed, eta := s.opts.Estimator.Estimate(s.previous.BytesWritten, sample.BytesWritten, elapsed.Seconds(), s.total)
	s.report(percent, progress.Status(speed, eta, percent, s.opts.ETAUnknownAfter))
	s.previous = sample
}

func (s *Session) poll(ctx context.Context, proc *executor.Pipeline, drained <-chan struct{}) {
	wait := func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return true
		case <-ctx.Done():
		case <-proc.WriterDone():
		case <-drained:
		}
		return false
	}

	if !wait(s.opts.PollDelay) {
		return
	}
	s.log.Debug("polling writer for progress")
	for {
		if err := proc.Signal(s.pipeline.PollSignal); err != nil {
			if !proc.WriterAlive() {
				return
			}
			s.log.WithError(err).Warn("signalling writer for progress")
		}
		if !wait(s.opts.PollInterval) {
			return
		}
	}
}

// reap makes sure no stage outlives the stream: stages still running after the
// grace period are killed, then all are waited for.
func (s *Session) reap(proc *executor.Pipeline) []executor.StageStatus {
	if proc.Alive() {
		t := time.NewTimer(s.opts.ReapGrace)
		select {
		case <-proc.Done():
		case <-t.C:
			s.log.Warn("pipeline still running after its output closed, terminating")
			proc.Kill()
		}
		t.Stop()
	}
	return proc.Wait()
}

func (s *Session) finish(state State, err error) Result {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	entry := s.log.WithField("state", state.String())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("burn finished")
	return Result{State: state, Err: err}
}

func (s *Session) diagnostic(proc *executor.Pipeline, statuses []executor.StageStatus) string {
	var b strings.Builder
	for _, l := range s.errorLines {
		fmt.Fprintf(&b, "error: %s\n", l)
	}
	for i, st := range statuses {
		fmt.Fprintf(&b, "stage %d: %s\n", i+1, st)
		if tail := strings.TrimSpace(proc.Tail(i)); tail != "" {
			fmt.Fprintf(&b, "stage %d output:\n%s\n", i+1, tail)
		}
	}
	if len(s.unparsed) > 0 {
		fmt.Fprintf(&b, "writer output:\n%s\n", strings.Join(s.unparsed, "\n"))
	}
	return b.String()
}
