//go:build !windows

package executor

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Shell builds the shell-joined form of a command.
func Shell(script string) Command {
	return Cmd("sh", "-c", script)
}

// Each stage leads its own process group so a kill reaches its children.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killTree(pid int) error {
	err := unix.Kill(-pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// restoreSignals puts SIGPIPE and SIGXFSZ back under the runtime's handler
// even if something ignored them, so exec'd children start with SIG_DFL.
func restoreSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGPIPE, unix.SIGXFSZ)
	signal.Reset(unix.SIGPIPE, unix.SIGXFSZ)
}
