// Package platform hides the operating-system specific parts of burning a
// disk: enumeration, preparation, the writer pipeline and ejection.
package platform

import (
	"context"
	"errors"
	"runtime"

	"github.com/sirupsen/logrus"

	"sdburn/internal/burn"
	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/prepare"
	"sdburn/internal/workspace"
)

// ErrUnsupported is returned by New on operating systems without a backend.
var ErrUnsupported = errors.New("platform not supported: " + runtime.GOOS)

// Platform is the set of capabilities the orchestrator needs from the OS.
type Platform interface {
	Name() string
	// CheckPrivileges fails when the process cannot write raw devices.
	CheckPrivileges() error
	// ListDisks enumerates every whole disk, unfiltered.
	ListDisks(ctx context.Context) ([]Disk, error)
	PrepareDisk(ctx context.Context, disk Disk, report func(step string)) (prepare.Prepared, error)
	BurnPipeline(disk Disk, imagePath string) (burn.Pipeline, error)
	EjectDisk(ctx context.Context, disk Disk) error
}

type Options struct {
	Exec      *executor.Executor
	Workspace *workspace.Workspace
	// ToolsDir holds bundled helper binaries where the OS has none.
	ToolsDir string
	Log      logrus.FieldLogger
}

// New returns the backend for the running operating system.
func New(opts Options) (Platform, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Exec == nil {
		opts.Exec = executor.New(opts.Log)
	}
	return newPlatform(opts)
}

// runTool runs c and turns a missing executable into TOOLS_ERROR.
func runTool(ctx context.Context, exec *executor.Executor, c executor.Command) error {
	_, err := exec.Check(ctx, c)
	if executor.IsNotFound(err) {
		return failure.New(failure.ToolsError, err, "")
	}
	return err
}
