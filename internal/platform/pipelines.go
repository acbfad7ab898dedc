package platform

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"sdburn/internal/executor"
)

type compression int

const (
	uncompressed compression = iota
	gzipped
)

func compressionOf(imagePath string) (compression, error) {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".gz":
		return gzipped, nil
	case ".img", ".iso", ".raw":
		return uncompressed, nil
	}
	return 0, fmt.Errorf("unsupported image type %q", filepath.Base(imagePath))
}

// ddStages builds "gzip -dc image | dd of=device" or a single dd reading the
// image directly.
func ddStages(imagePath, device, blockSize string, extra ...string) ([]executor.Command, error) {
	comp, err := compressionOf(imagePath)
	if err != nil {
		return nil, err
	}
	args := append([]string{"of=" + device, "bs=" + blockSize}, extra...)
	if comp == uncompressed {
		return []executor.Command{executor.Cmd("dd", append([]string{"if=" + imagePath}, args...)...)}, nil
	}
	return []executor.Command{
		executor.Cmd("gzip", "-dc", imagePath),
		executor.Cmd("dd", args...),
	}, nil
}

// rawDevicePath maps /dev/diskN to the unbuffered /dev/rdiskN node.
func rawDevicePath(device string) string {
	if strings.HasPrefix(device, "/dev/disk") {
		return "/dev/r" + strings.TrimPrefix(device, "/dev/")
	}
	return device
}

// diskIndex extracts N from \\.\PHYSICALDRIVEN.
func diskIndex(id string) (int, error) {
	upper := strings.ToUpper(id)
	i := strings.LastIndex(upper, "PHYSICALDRIVE")
	if i < 0 {
		return 0, fmt.Errorf("not a physical drive id: %q", id)
	}
	n, err := strconv.Atoi(upper[i+len("PHYSICALDRIVE"):])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("not a physical drive id: %q", id)
	}
	return n, nil
}

// windowsRawPath is the device path dd for windows writes a whole disk through.
func windowsRawPath(index int) string {
	return fmt.Sprintf(`\\?\Device\Harddisk%d\Partition0`, index)
}

type windowsTools struct {
	sevenZip string
	dd       string
	nircmd   string
}

func newWindowsTools(dir string) windowsTools {
	return windowsTools{
		sevenZip: filepath.Join(dir, "7zip", "7za.exe"),
		dd:       filepath.Join(dir, "dd", "dd.exe"),
		nircmd:   filepath.Join(dir, "nircmd", "nircmd.exe"),
	}
}

func (t windowsTools) burnStages(imagePath string, index int) ([]executor.Command, error) {
	comp, err := compressionOf(imagePath)
	if err != nil {
		return nil, err
	}
	args := []string{"of=" + windowsRawPath(index), "bs=4M", "--progress"}
	if comp == uncompressed {
		return []executor.Command{executor.Cmd(t.dd, append([]string{"if=" + imagePath}, args...)...)}, nil
	}
	return []executor.Command{
		executor.Cmd(t.sevenZip, "e", "-so", imagePath),
		executor.Cmd(t.dd, args...),
	}, nil
}

func diskpartCleanScript(index int) string {
	return fmt.Sprintf("select disk %d\nclean\nrescan\n", index)
}
