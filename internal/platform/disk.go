package platform

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// Disk is a whole physical device as reported by the operating system.
type Disk struct {
	// ID is the OS device path: /dev/sdb, /dev/disk2 or \\.\PHYSICALDRIVE1.
	ID        string
	Name      string
	SizeBytes uint64
	Removable bool
}

func (d Disk) String() string {
	name := d.Name
	if name == "" {
		name = "unknown device"
	}
	return fmt.Sprintf("%s (%s, %s)", d.ID, name, humanize.Bytes(d.SizeBytes))
}

// Bounds is the capacity band a disk must fall in to be offered as a target.
type Bounds struct {
	Min uint64
	Max uint64
}

// DefaultBounds accepts cards from 3.5 GB up to 64 GiB. Anything bigger is
// most likely a backup drive.
var DefaultBounds = Bounds{Min: 3_500_000_000, Max: 64 << 30}

func (b Bounds) Contains(size uint64) bool {
	return size >= b.Min && size <= b.Max
}

// FilterDisks keeps the removable disks within bounds, ordered by ID.
func FilterDisks(disks []Disk, bounds Bounds) []Disk {
	var out []Disk
	for _, d := range disks {
		if d.Removable && bounds.Contains(d.SizeBytes) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
