package prepare

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdburn/internal/failure"
	"sdburn/internal/logging"
)

func step(name string, target State, cat failure.Category, calls *[]string, err error) Step {
	return Step{
		Name:     name,
		Target:   target,
		Category: cat,
		Run: func(context.Context) error {
			*calls = append(*calls, name)
			return err
		},
	}
}

func TestSequencerRunsInOrder(t *testing.T) {
	var calls, reported []string
	seq := NewSequencer("sdb", logging.Discard(),
		step("unmount", Unmounted, failure.UnmountError, &calls, nil),
		step("format", Formatted, failure.FormatError, &calls, nil),
		step("unmount again", Ready, failure.UnmountError, &calls, nil),
	)

	ready, err := seq.Run(context.Background(), func(s string) { reported = append(reported, s) })

	require.NoError(t, err)
	assert.Equal(t, "sdb", ready.DiskID)
	assert.Equal(t, Ready, seq.State())
	assert.Equal(t, []string{"unmount", "format", "unmount again"}, calls)
	assert.Equal(t, calls, reported)
}

func TestSequencerStopsAtFirstFailure(t *testing.T) {
	var calls []string
	seq := NewSequencer("sdb", logging.Discard(),
		step("unmount", Unmounted, failure.UnmountError, &calls, nil),
		step("format", Formatted, failure.FormatError, &calls, errors.New("mkdosfs: exit status 1")),
		step("unmount again", Ready, failure.UnmountError, &calls, nil),
	)

	_, err := seq.Run(context.Background(), nil)

	require.Error(t, err)
	cat, ok := failure.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, failure.FormatError, cat)
	assert.Contains(t, err.Error(), "format")
	assert.Equal(t, []string{"unmount", "format"}, calls)
	assert.Equal(t, Unmounted, seq.State())
}

func TestSequencerKeepsStepCategory(t *testing.T) {
	var calls []string
	inner := failure.New(failure.ToolsError, errors.New("nircmd missing"), "")
	seq := NewSequencer("1", logging.Discard(),
		step("close explorer", Unmounted, failure.UnmountError, &calls, inner),
	)

	_, err := seq.Run(context.Background(), nil)

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.ToolsError, cat)
}

func TestSequencerRejectsBackwardStep(t *testing.T) {
	var calls []string
	seq := NewSequencer("sdb", logging.Discard(),
		step("format", Formatted, failure.FormatError, &calls, nil),
		step("unmount", Unmounted, failure.UnmountError, &calls, nil),
	)

	_, err := seq.Run(context.Background(), nil)

	cat, _ := failure.CategoryOf(err)
	assert.Equal(t, failure.FormatError, cat)
	assert.Equal(t, []string{"format"}, calls)
}

func TestSequencerMustEndReady(t *testing.T) {
	var calls []string
	seq := NewSequencer("sdb", logging.Discard(),
		step("unmount", Unmounted, failure.UnmountError, &calls, nil),
	)

	_, err := seq.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestSequencerCancelledBetweenSteps(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	seq := NewSequencer("sdb", logging.Discard(),
		Step{Name: "unmount", Target: Unmounted, Run: func(context.Context) error {
			calls = append(calls, "unmount")
			cancel()
			return nil
		}},
		step("format", Formatted, failure.FormatError, &calls, nil),
	)

	_, err := seq.Run(ctx, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"unmount"}, calls)
}
