//go:build linux

package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaypipes/ghw/pkg/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"sdburn/internal/logging"
	"sdburn/internal/progress"
)

func TestFromBlock(t *testing.T) {
	disks := fromBlock([]*block.Disk{
		{Name: "sda", SizeBytes: 500_000_000_000, BusPath: "pci-0000:00:17.0-ata-1", Vendor: "ATA", Model: "Samsung SSD"},
		{Name: "sdb", SizeBytes: 8_000_000_000, BusPath: "pci-0000:00:14.0-usb-0:2:1.0-scsi-0:0:0:0", Vendor: "Generic", Model: "Card  Reader"},
		{Name: "mmcblk0", SizeBytes: 16 << 30},
		{Name: "loop0", SizeBytes: 8 << 30, IsRemovable: true},
		nil,
	})

	require.Len(t, disks, 3)
	assert.Equal(t, Disk{ID: "/dev/sda", Name: "ATA Samsung SSD", SizeBytes: 500_000_000_000}, disks[0])
	assert.Equal(t, Disk{ID: "/dev/sdb", Name: "Generic Card Reader", SizeBytes: 8_000_000_000, Removable: true}, disks[1])
	assert.True(t, disks[2].Removable)
}

func TestLinuxBurnPipeline(t *testing.T) {
	p, err := New(Options{Log: logging.Discard()})
	require.NoError(t, err)
	assert.Equal(t, "linux", p.Name())

	pl, err := p.BurnPipeline(Disk{ID: "/dev/sdb"}, "/work/images/os.img.gz")
	require.NoError(t, err)
	require.Len(t, pl.Stages, 2)
	assert.Equal(t, unix.SIGUSR1, pl.PollSignal)
	assert.IsType(t, progress.DDParser{}, pl.Parser)
	assert.Contains(t, pl.Stages[1].Args, "conv=fsync")

	_, err = p.BurnPipeline(Disk{ID: "/dev/sdb"}, "/work/images/os.7z")
	assert.Error(t, err)
}

func TestLinuxUnmountAllNothingMounted(t *testing.T) {
	dir := t.TempDir()
	mounts := filepath.Join(dir, "mounts")
	require.NoError(t, os.WriteFile(mounts, []byte(mountsTable), 0o644))

	p, err := New(Options{Log: logging.Discard()})
	require.NoError(t, err)
	lp := p.(*linuxPlatform)
	lp.mountsPath = mounts

	assert.NoError(t, lp.unmountAll(context.Background(), "/dev/sdz"))

	got, err := lp.mounted("/dev/sdb")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
