package progress

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultSmoothing keeps the ETA finite while the measured speed is zero.
const DefaultSmoothing = 1.0

// Estimator derives speed and remaining time from two byte counts.
type Estimator struct {
	Smoothing float64
}

// Estimate returns the throughput in bytes per second between previous and
// current, and the seconds left to reach total at that throughput. The caller
// guarantees elapsed is strictly positive.
func (e Estimator) Estimate(previous, current int64, elapsed float64, total int64) (speed, eta float64) {
	speed = float64(current-previous) / elapsed
	eta = float64(total-current) / (speed + e.Smoothing)
	return speed, eta
}

// Estimate uses DefaultSmoothing.
func Estimate(previous, current int64, elapsed float64, total int64) (speed, eta float64) {
	return Estimator{Smoothing: DefaultSmoothing}.Estimate(previous, current, elapsed, total)
}

// Percent is written*100/total rounded down and kept within 0..100.
func Percent(written, total int64) int {
	if total <= 0 || written <= 0 {
		return 0
	}
	if written >= total {
		return 100
	}
	return int(written * 100 / total)
}

// FormatETA renders seconds as "H hours, M minutes, S seconds", dropping the
// leading zero units.
func FormatETA(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if seconds > math.MaxInt32 {
		seconds = math.MaxInt32
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := total / 60 % 60
	secs := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%d hours, %d minutes, %d seconds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%d minutes, %d seconds", minutes, secs)
	default:
		return fmt.Sprintf("%d seconds", secs)
	}
}

// Status renders the status line shown next to a progress bar. An ETA above
// unknownAfter is shown as unknown; zero disables the cut-off.
func Status(speed, eta float64, percent int, unknownAfter time.Duration) string {
	if speed < 0 {
		speed = 0
	}
	etaText := FormatETA(eta)
	if math.IsInf(eta, 0) || (unknownAfter > 0 && eta > unknownAfter.Seconds()) {
		etaText = "unknown"
	}
	return strings.Join([]string{
		fmt.Sprintf("speed %s/s", humanize.Bytes(uint64(speed))),
		fmt.Sprintf("eta %s", etaText),
		fmt.Sprintf("completed %d%%", percent),
	}, "  ")
}
