// Package prepare runs the ordered steps that make a disk writable: unmount,
// format and re-check, each advancing a small state machine.
package prepare

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"sdburn/internal/failure"
)

// State is how far a disk has come towards being writable.
type State int

const (
	Unprepared State = iota
	Unmounted
	Formatted
	Ready
)

func (s State) String() string {
	switch s {
	case Unprepared:
		return "unprepared"
	case Unmounted:
		return "unmounted"
	case Formatted:
		return "formatted"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step is one preparation action. On success the disk is in Target; on
// failure the error is reported under Category.
type Step struct {
	Name     string
	Target   State
	Category failure.Category
	Run      func(ctx context.Context) error
}

// Prepared is the proof that a disk went through every step. Only Run hands
// one out.
type Prepared struct {
	DiskID   string
	Duration time.Duration
}

// Sequencer executes steps for a single disk strictly in order.
type Sequencer struct {
	diskID string
	steps  []Step
	log    logrus.FieldLogger
	state  State
}

func NewSequencer(diskID string, log logrus.FieldLogger, steps ...Step) *Sequencer {
	return &Sequencer{
		diskID: diskID,
		steps:  steps,
		log:    log.WithField("disk", diskID),
	}
}

// State returns where the last Run left the disk.
func (s *Sequencer) State() State {
	return s.state
}

// Run executes every step. The first failing step stops the sequence; report
// is told the name of each step as it begins.
func (s *Sequencer) Run(ctx context.Context, report func(step string)) (Prepared, error) {
	started := time.Now()
	s.state = Unprepared

	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return Prepared{}, err
		}
		if step.Target < s.state {
			return Prepared{}, failure.New(failure.FormatError,
				fmt.Errorf("step %q would move disk %s back from %s to %s", step.Name, s.diskID, s.state, step.Target), "")
		}

		log := s.log.WithFields(logrus.Fields{"step": step.Name, "target": step.Target.String()})
		log.Info("preparing disk")
		if report != nil {
			report(step.Name)
		}

		if err := step.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return Prepared{}, ctx.Err()
			}
			log.WithError(err).Error("preparation step failed")
			return Prepared{}, failure.Wrap(step.Category, fmt.Errorf("%s: %w", step.Name, err))
		}
		s.state = step.Target
	}

	if s.state != Ready {
		return Prepared{}, failure.New(failure.FormatError,
			fmt.Errorf("disk %s ended preparation %s, not ready", s.diskID, s.state), "")
	}
	return Prepared{DiskID: s.diskID, Duration: time.Since(started)}, nil
}
