//go:build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"os/user"

	"github.com/bi-zone/wmi"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"

	"sdburn/internal/burn"
	"sdburn/internal/executor"
	"sdburn/internal/failure"
	"sdburn/internal/prepare"
	"sdburn/internal/progress"
	"sdburn/internal/workspace"
)

const adminsGroupSID = "S-1-5-32-544"

type windowsPlatform struct {
	exec  *executor.Executor
	ws    *workspace.Workspace
	tools windowsTools
	log   logrus.FieldLogger
}

func newPlatform(opts Options) (Platform, error) {
	if opts.Workspace == nil {
		return nil, errors.New("windows backend needs a workspace for diskpart scripts")
	}
	return &windowsPlatform{
		exec:  opts.Exec,
		ws:    opts.Workspace,
		tools: newWindowsTools(opts.ToolsDir),
		log:   opts.Log.WithField("platform", "windows"),
	}, nil
}

func (p *windowsPlatform) Name() string {
	return "windows"
}

// CheckPrivileges requires the process token to be a member of the builtin
// Administrators group, not just the user account.
func (p *windowsPlatform) CheckPrivileges() error {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return fmt.Errorf("checking for elevated permissions: %w", err)
	}
	defer windows.FreeSid(sid)

	member, err := windows.Token(0).IsMember(sid)
	if err != nil {
		return fmt.Errorf("checking for elevated permissions: %w", err)
	}
	if !member {
		inGroup, err := userIsAdmin()
		if err != nil {
			return err
		}
		return fmt.Errorf("administrator permissions needed, run as administrator (user in admin group: %t)", inGroup)
	}
	return nil
}

func userIsAdmin() (bool, error) {
	u, err := user.Current()
	if err != nil {
		return false, fmt.Errorf("retrieving current user: %w", err)
	}
	ids, err := u.GroupIds()
	if err != nil {
		return false, fmt.Errorf("retrieving group ids: %w", err)
	}
	for _, id := range ids {
		if id == adminsGroupSID {
			return true, nil
		}
	}
	return false, nil
}

func (p *windowsPlatform) ListDisks(_ context.Context) ([]Disk, error) {
	var dst []win32DiskDrive
	if err := wmi.Query(win32DiskQuery, &dst); err != nil {
		return nil, fmt.Errorf("querying WMI: %w", err)
	}
	return fromWin32(dst), nil
}

func (p *windowsPlatform) PrepareDisk(ctx context.Context, disk Disk, report func(string)) (prepare.Prepared, error) {
	index, err := diskIndex(disk.ID)
	if err != nil {
		return prepare.Prepared{}, failure.Wrap(failure.FormatError, err)
	}
	return prepare.NewSequencer(disk.ID, p.log,
		prepare.Step{Name: "closing explorer windows", Target: prepare.Unmounted, Category: failure.UnmountError, Run: func(ctx context.Context) error {
			return runTool(ctx, p.exec, executor.Cmd(p.tools.nircmd, "win", "close", "class", "CabinetWClass"))
		}},
		prepare.Step{Name: "formatting disk", Target: prepare.Formatted, Category: failure.FormatError, Run: func(ctx context.Context) error {
			script, err := p.ws.WriteScript("format_disk.txt", diskpartCleanScript(index))
			if err != nil {
				return err
			}
			return runTool(ctx, p.exec, executor.Cmd("diskpart", "/s", script))
		}},
		prepare.Step{Name: "testing raw access", Target: prepare.Ready, Category: failure.FormatError, Run: func(ctx context.Context) error {
			return runTool(ctx, p.exec, executor.Cmd(p.tools.dd, "if=/dev/zero", "of="+windowsRawPath(index), "bs=4M", "count=1"))
		}},
	).Run(ctx, report)
}

func (p *windowsPlatform) BurnPipeline(disk Disk, imagePath string) (burn.Pipeline, error) {
	index, err := diskIndex(disk.ID)
	if err != nil {
		return burn.Pipeline{}, err
	}
	stages, err := p.tools.burnStages(imagePath, index)
	if err != nil {
		return burn.Pipeline{}, err
	}
	// dd for windows prints its counter continuously, there is nothing to poll
	return burn.Pipeline{Stages: stages, Parser: progress.DDWindowsParser{}}, nil
}

func (p *windowsPlatform) EjectDisk(_ context.Context, disk Disk) error {
	p.log.WithField("disk", disk.ID).Info("safe removal is left to the user on windows")
	return nil
}
