//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/block"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"sdburn/internal/burn"
	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/prepare"
	"sdburn/internal/progress"
)

const procMounts = "/proc/mounts"

type linuxPlatform struct {
	exec       *executor.Executor
	log        logrus.FieldLogger
	mountsPath string
}

func newPlatform(opts Options) (Platform, error) {
	return &linuxPlatform{
		exec:       opts.Exec,
		log:        opts.Log.WithField("platform", "linux"),
		mountsPath: procMounts,
	}, nil
}

func (p *linuxPlatform) Name() string {
	return "linux"
}

func (p *linuxPlatform) CheckPrivileges() error {
	if os.Geteuid() != 0 {
		return errors.New("writing to a raw device needs root, re-run with sudo")
	}
	return nil
}

func (p *linuxPlatform) ListDisks(_ context.Context) ([]Disk, error) {
	b, err := block.New(ghw.WithDisableTools())
	if err != nil {
		return nil, fmt.Errorf("detecting block devices: %w", err)
	}
	disks := fromBlock(b.Disks)
	p.log.WithField("count", len(disks)).Debug("enumerated block devices")
	return disks, nil
}

func fromBlock(in []*block.Disk) []Disk {
	var disks []Disk
	for _, d := range in {
		if d == nil || d.Name == "" || strings.HasPrefix(d.Name, "loop") {
			continue
		}
		name := strings.TrimSpace(strings.Join(strings.Fields(d.Vendor+" "+d.Model), " "))
		disks = append(disks, Disk{
			ID:        filepath.Join("/dev", d.Name),
			Name:      name,
			SizeBytes: d.SizeBytes,
			// built-in card readers show up as non-removable mmc devices
			Removable: d.IsRemovable || strings.Contains(d.BusPath, "usb") || strings.HasPrefix(d.Name, "mmcblk"),
		})
	}
	return disks
}

func (p *linuxPlatform) PrepareDisk(ctx context.Context, disk Disk, report func(string)) (prepare.Prepared, error) {
	unmount := func(ctx context.Context) error { return p.unmountAll(ctx, disk.ID) }
	return prepare.NewSequencer(disk.ID, p.log,
		prepare.Step{Name: "unmounting disk", Target: prepare.Unmounted, Category: failure.UnmountError, Run: unmount},
		prepare.Step{Name: "formatting disk", Target: prepare.Formatted, Category: failure.FormatError, Run: func(ctx context.Context) error {
			return runTool(ctx, p.exec, executor.Cmd("mkdosfs", "-I", "-F", "32", "-v", disk.ID))
		}},
		// desktop automounters pick the fresh filesystem up again
		prepare.Step{Name: "unmounting formatted disk", Target: prepare.Ready, Category: failure.UnmountError, Run: unmount},
	).Run(ctx, report)
}

func (p *linuxPlatform) mounted(device string) ([]Mount, error) {
	f, err := os.Open(p.mountsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMounts(f, device)
}

func (p *linuxPlatform) unmountAll(ctx context.Context, device string) error {
	mounts, err := p.mounted(device)
	if err != nil {
		return fmt.Errorf("reading mounts: %w", err)
	}
	for _, m := range mounts {
		log := p.log.WithFields(logrus.Fields{"device": m.Device, "target": m.Target})
		err := unix.Unmount(m.Target, 0)
		if err == nil {
			log.Info("unmounted")
			continue
		}
		log.WithError(err).Debug("unmount syscall failed, trying umount")
		if err := runTool(ctx, p.exec, executor.Cmd("umount", m.Device)); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", m.Device, err)
		}
		log.Info("unmounted")
	}
	return nil
}

func (p *linuxPlatform) BurnPipeline(disk Disk, imagePath string) (burn.Pipeline, error) {
	stages, err := ddStages(imagePath, disk.ID, "4M", "conv=fsync")
	if err != nil {
		return burn.Pipeline{}, err
	}
	return burn.Pipeline{
		Stages:     stages,
		Parser:     progress.DDParser{},
		PollSignal: unix.SIGUSR1,
	}, nil
}

func (p *linuxPlatform) EjectDisk(ctx context.Context, disk Disk) error {
	unix.Sync()
	if err := p.unmountAll(ctx, disk.ID); err != nil {
		return err
	}
	return runTool(ctx, p.exec, executor.Cmd("eject", disk.ID))
}
