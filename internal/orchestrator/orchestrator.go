// Package orchestrator ties disk listing, preparation, burning and ejection
// into one attempt per disk.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"sdburn/internal/burn"
	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/platform"
)

// Sizer measures how many bytes an image expands to.
type Sizer interface {
	UncompressedSize(ctx context.Context, path string) (int64, error)
}

type Options struct {
	Bounds platform.Bounds
	Burn   burn.Options
	// RetryDelay is the pause between two attempts of BurnWithRetry.
	RetryDelay time.Duration
}

// Orchestrator runs burn attempts. Attempts on the same disk are serialized;
// different disks may be burned concurrently.
type Orchestrator struct {
	platform platform.Platform
	exec     *executor.Executor
	sizes    Sizer
	opts     Options
	log      logrus.FieldLogger

	mu    sync.Mutex
	locks map[string]chan struct{}
}

func New(p platform.Platform, exec *executor.Executor, sizes Sizer, opts Options, log logrus.FieldLogger) *Orchestrator {
	if opts.Bounds == (platform.Bounds{}) {
		opts.Bounds = platform.DefaultBounds
	}
	return &Orchestrator{
		platform: p,
		exec:     exec,
		sizes:    sizes,
		opts:     opts,
		log:      log,
		locks:    map[string]chan struct{}{},
	}
}

// ListDisks enumerates the disks that may be written to.
func (o *Orchestrator) ListDisks(ctx context.Context) ([]platform.Disk, error) {
	all, err := o.platform.ListDisks(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.NoDisksError, err)
	}
	disks := platform.FilterDisks(all, o.opts.Bounds)
	if len(disks) == 0 {
		return nil, failure.New(failure.NoDisksError,
			fmt.Errorf("no removable disk between %d and %d bytes among %d detected", o.opts.Bounds.Min, o.opts.Bounds.Max, len(all)), "")
	}
	return disks, nil
}

// FindDisk looks id up among the eligible disks.
func (o *Orchestrator) FindDisk(ctx context.Context, id string) (platform.Disk, error) {
	disks, err := o.ListDisks(ctx)
	if err != nil {
		return platform.Disk{}, err
	}
	for _, d := range disks {
		if d.ID == id {
			return d, nil
		}
	}
	return platform.Disk{}, failure.New(failure.NoDisksError, fmt.Errorf("disk %s is not an eligible target", id), "")
}

// acquire waits for exclusive use of diskID.
func (o *Orchestrator) acquire(ctx context.Context, diskID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	sem, ok := o.locks[diskID]
	if !ok {
		sem = make(chan struct{}, 1)
		o.locks[diskID] = sem
	}
	o.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Burn prepares disk, writes imagePath to it and ejects it. Every returned
// error carries a failure category, except cancellation.
func (o *Orchestrator) Burn(ctx context.Context, disk platform.Disk, imagePath string, report burn.ProgressFunc) (burn.Result, error) {
	if report == nil {
		report = func(int, string) {}
	}
	release, err := o.acquire(ctx, disk.ID)
	if err != nil {
		return burn.Result{State: burn.Cancelled, Err: err}, err
	}
	defer release()

	log := o.log.WithFields(logrus.Fields{"disk": disk.ID, "image": imagePath})

	report(0, "calculating uncompressed image size..")
	total, err := o.sizes.UncompressedSize(ctx, imagePath)
	if err != nil {
		return o.fail(ctx, failure.BurnError, fmt.Errorf("measuring image: %w", err))
	}
	log.WithField("bytes", total).Debug("image size known")

	if _, err := o.platform.PrepareDisk(ctx, disk, func(step string) { report(0, step+"..") }); err != nil {
		return o.fail(ctx, failure.FormatError, err)
	}

	pipeline, err := o.platform.BurnPipeline(disk, imagePath)
	if err != nil {
		return o.fail(ctx, failure.BurnError, err)
	}
	session, err := burn.NewSession(o.exec, pipeline, total, report, o.opts.Burn, log)
	if err != nil {
		return o.fail(ctx, failure.BurnError, err)
	}

	res := session.Run(ctx)
	if !res.Success() {
		if res.State == burn.Cancelled {
			return res, res.Err
		}
		return res, failure.Wrap(failure.BurnError, res.Err)
	}

	if err := o.platform.EjectDisk(ctx, disk); err != nil {
		// eject failures keep EJECT_ERROR whatever the cause was tagged
		err = failure.New(failure.EjectError, err, failure.DiagnosticOf(err))
		return burn.Result{State: burn.Failed, Err: err}, err
	}
	log.Info("disk burned and ejected")
	return res, nil
}

// BurnWithRetry runs up to attempts full attempts, RetryDelay apart. Each
// attempt looks the disk up again by ID, since device paths change between
// insert events, and starts over from preparation with a fresh session.
// Cancellation, a missing tool and a vanished disk end the retries at once.
func (o *Orchestrator) BurnWithRetry(ctx context.Context, disk platform.Disk, imagePath string, attempts int, report burn.ProgressFunc) (burn.Result, error) {
	if attempts < 1 {
		attempts = 1
	}
	log := o.log.WithField("disk", disk.ID)

	var res burn.Result
	op := func() error {
		current, err := o.FindDisk(ctx, disk.ID)
		if err != nil {
			res, err = o.fail(ctx, failure.NoDisksError, err)
			return backoff.Permanent(err)
		}
		res, err = o.Burn(ctx, current, imagePath, report)
		if err != nil && o.permanent(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait).Warn("burn attempt failed, retrying")
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(o.opts.RetryDelay), uint64(attempts-1))
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if err != nil && isCancel(ctx, err) && res.State != burn.Cancelled {
		// cancelled while waiting for the next attempt
		res = burn.Result{State: burn.Cancelled, Err: err}
	}
	return res, err
}

func (o *Orchestrator) permanent(ctx context.Context, err error) bool {
	if isCancel(ctx, err) {
		return true
	}
	cat, _ := failure.CategoryOf(err)
	return cat == failure.ToolsError || cat == failure.NoDisksError
}

func (o *Orchestrator) fail(ctx context.Context, cat failure.Category, err error) (burn.Result, error) {
	if isCancel(ctx, err) {
		return burn.Result{State: burn.Cancelled, Err: err}, err
	}
	err = failure.Wrap(cat, err)
	return burn.Result{State: burn.Failed, Err: err}, err
}

func isCancel(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}
