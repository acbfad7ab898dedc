// Package progress turns raw disk-writer output into progress samples and
// estimates throughput and remaining time from them.
package progress

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const bytesInMebibyte = 1 << 20

// Sample is the number of bytes the writer reported at a point in time.
type Sample struct {
	BytesWritten int64
	Timestamp    time.Time
}

// Line is one parsed diagnostic line. Sample is nil when the line carries no
// progress; IsError is decided independently of it.
type Line struct {
	Raw     string
	Sample  *Sample
	IsError bool
}

// Parser converts one raw diagnostic line into a Line.
type Parser interface {
	Parse(raw string, at time.Time) Line
}

// IsErrorLine reports whether raw looks like a failure message.
func IsErrorLine(raw string) bool {
	l := strings.ToLower(raw)
	return strings.Contains(l, "error") || strings.Contains(l, "invalid")
}

// DDParser understands the transfer summary printed by GNU, BSD and busybox
// dd, e.g. "1048576 bytes (1.0 MB, 1.0 MiB) copied, 0.1 s, 10 MB/s" or
// "1048576 bytes transferred in 0.100 secs (10485760 bytes/sec)".
type DDParser struct{}

func (DDParser) Parse(raw string, at time.Time) Line {
	line := Line{Raw: raw, IsError: IsErrorLine(raw)}

	fields := strings.Fields(raw)
	for i := 1; i < len(fields); i++ {
		if fields[i] != "bytes" {
			continue
		}
		n, ok := parseCount(fields[i-1])
		if !ok {
			break
		}
		line.Sample = &Sample{BytesWritten: n, Timestamp: at}
		break
	}
	return line
}

// DDWindowsParser understands the running counter printed by dd for windows
// with --progress, e.g. "1,234M".
type DDWindowsParser struct{}

var unitScale = map[byte]float64{
	'B': 1,
	'K': 1 << 10,
	'M': bytesInMebibyte,
	'G': 1 << 30,
}

func (DDWindowsParser) Parse(raw string, at time.Time) Line {
	line := Line{Raw: raw, IsError: IsErrorLine(raw)}

	s := strings.TrimSpace(raw)
	if s == "" {
		return line
	}
	scale, ok := unitScale[s[len(s)-1]]
	if !ok {
		return line
	}
	num := stripSeparators(s[:len(s)-1])
	if !isDecimal(num) {
		return line
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v*scale >= math.MaxInt64 {
		return line
	}
	line.Sample = &Sample{BytesWritten: int64(v * scale), Timestamp: at}
	return line
}

// isDecimal accepts digits with at most one decimal point. ParseFloat alone
// would also take signs, exponents, NaN and Inf.
func isDecimal(s string) bool {
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

func parseCount(field string) (int64, bool) {
	s := stripSeparators(field)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func stripSeparators(s string) string {
	return strings.NewReplacer(",", "", "'", "", "_", "").Replace(strings.TrimSpace(s))
}
