package platform

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Mount is one line of a mounts table.
type Mount struct {
	Device string
	Target string
}

// parseMounts returns the entries of a /proc/mounts style table that belong to
// device: the device itself or any of its partitions.
func parseMounts(r io.Reader, device string) ([]Mount, error) {
	var mounted []Mount
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !isPartitionOf(fields[0], device) {
			continue
		}
		mounted = append(mounted, Mount{Device: fields[0], Target: unescapeMount(fields[1])})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounted, nil
}

// isPartitionOf matches /dev/sdb, /dev/sdb1 and /dev/mmcblk0p1 for their disk,
// but not /dev/sdbc for /dev/sdb.
func isPartitionOf(candidate, device string) bool {
	if !strings.HasPrefix(candidate, device) {
		return false
	}
	rest := strings.TrimPrefix(candidate[len(device):], "p")
	if rest == "" {
		return candidate == device
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

// unescapeMount undoes the octal escaping the kernel applies to spaces, tabs
// and backslashes in mount points.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
