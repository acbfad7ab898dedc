//go:build darwin

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"sdburn/internal/burn"
	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/prepare"
	"sdburn/internal/progress"
)

type darwinPlatform struct {
	exec *executor.Executor
	log  logrus.FieldLogger
}

func newPlatform(opts Options) (Platform, error) {
	return &darwinPlatform{exec: opts.Exec, log: opts.Log.WithField("platform", "darwin")}, nil
}

func (p *darwinPlatform) Name() string {
	return "darwin"
}

func (p *darwinPlatform) CheckPrivileges() error {
	if os.Geteuid() != 0 {
		return errors.New("writing to a raw device needs administrator rights, re-run with sudo")
	}
	return nil
}

func (p *darwinPlatform) diskutil(ctx context.Context, args ...string) ([]byte, error) {
	res, err := p.exec.Check(ctx, executor.Cmd("diskutil", args...))
	if executor.IsNotFound(err) {
		return nil, failure.New(failure.ToolsError, err, "")
	}
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

func (p *darwinPlatform) ListDisks(ctx context.Context) ([]Disk, error) {
	out, err := p.diskutil(ctx, "list", "-plist", "physical")
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	ids, err := parseDiskutilList(out)
	if err != nil {
		return nil, err
	}

	var disks []Disk
	for _, id := range ids {
		out, err := p.diskutil(ctx, "info", "-plist", id)
		if err != nil {
			// the disk may have gone away between list and info
			p.log.WithError(err).WithField("disk", id).Warn("skipping disk")
			continue
		}
		d, err := parseDiskutilInfo(out)
		if err != nil {
			p.log.WithError(err).WithField("disk", id).Warn("skipping disk")
			continue
		}
		disks = append(disks, d)
	}
	return disks, nil
}

func (p *darwinPlatform) PrepareDisk(ctx context.Context, disk Disk, report func(string)) (prepare.Prepared, error) {
	unmount := func(ctx context.Context) error {
		_, err := p.diskutil(ctx, "unmountDisk", disk.ID)
		return err
	}
	return prepare.NewSequencer(disk.ID, p.log,
		prepare.Step{Name: "unmounting disk", Target: prepare.Unmounted, Category: failure.UnmountError, Run: unmount},
		prepare.Step{Name: "formatting disk", Target: prepare.Formatted, Category: failure.FormatError, Run: func(ctx context.Context) error {
			_, err := p.diskutil(ctx, "eraseDisk", "FAT32", "UNTITLED", "MBRFormat", disk.ID)
			return err
		}},
		// eraseDisk mounts the new volume
		prepare.Step{Name: "unmounting formatted disk", Target: prepare.Ready, Category: failure.UnmountError, Run: unmount},
	).Run(ctx, report)
}

func (p *darwinPlatform) BurnPipeline(disk Disk, imagePath string) (burn.Pipeline, error) {
	if !strings.HasPrefix(disk.ID, "/dev/disk") {
		return burn.Pipeline{}, fmt.Errorf("unexpected device %q", disk.ID)
	}
	stages, err := ddStages(imagePath, rawDevicePath(disk.ID), "4m")
	if err != nil {
		return burn.Pipeline{}, err
	}
	return burn.Pipeline{
		Stages:     stages,
		Parser:     progress.DDParser{},
		PollSignal: unix.SIGINFO,
	}, nil
}

func (p *darwinPlatform) EjectDisk(ctx context.Context, disk Disk) error {
	unix.Sync()
	_, err := p.diskutil(ctx, "eject", disk.ID)
	return err
}
