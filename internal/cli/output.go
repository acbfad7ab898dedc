package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"sdburn/internal/platform"
)

// progressPrinter redraws a single status line.
type progressPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) report(percent int, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("[%3d%%] %s", percent, status)
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.width = len(line)
}

// done ends the status line.
func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func printDisks(w io.Writer, disks []platform.Disk) {
	fmt.Fprintf(w, "%-28s %-32s %-10s %s\n", "ID", "NAME", "SIZE", "REMOVABLE")
	for _, d := range disks {
		name := d.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%-28s %-32s %-10s %t\n", d.ID, name, humanize.Bytes(d.SizeBytes), d.Removable)
	}
}

// confirm asks before erasing disk. Only "y" or "yes" proceed.
func confirm(r io.Reader, w io.Writer, disk platform.Disk) (bool, error) {
	fmt.Fprintf(w, "All data on %s will be erased. Continue? [y/N] ", disk)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
