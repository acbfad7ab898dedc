package progress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateNoProgressIsFinite(t *testing.T) {
	for _, elapsed := range []float64{0.001, 0.3, 1, 3600} {
		speed, eta := Estimate(500, 500, elapsed, 4000)
		assert.Zero(t, speed)
		assert.False(t, math.IsInf(eta, 0) || math.IsNaN(eta))
		assert.InDelta(t, 3500, eta, 1e-9)
	}
}

func TestEstimate(t *testing.T) {
	speed, eta := Estimate(1_000_000_000, 2_500_000_000, 1, 4_000_000_000)
	assert.InDelta(t, 1.5e9, speed, 1e-6)
	assert.InDelta(t, 1.5e9/(1.5e9+1), eta, 1e-9)
}

func TestEstimatorSmoothingIsTunable(t *testing.T) {
	_, eta := Estimator{Smoothing: 9}.Estimate(0, 0, 1, 100)
	assert.InDelta(t, 100.0/9, eta, 1e-9)
}

func TestPercent(t *testing.T) {
	total := int64(4_000_000_000)
	assert.Equal(t, 0, Percent(0, total))
	assert.Equal(t, 25, Percent(1_000_000_000, total))
	assert.Equal(t, 62, Percent(2_500_000_000, total))
	assert.Equal(t, 100, Percent(4_000_000_000, total))
	assert.Equal(t, 100, Percent(5_000_000_000, total))
	assert.Equal(t, 0, Percent(10, 0))
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "0 seconds", FormatETA(0))
	assert.Equal(t, "59 seconds", FormatETA(59.9))
	assert.Equal(t, "2 minutes, 5 seconds", FormatETA(125))
	assert.Equal(t, "1 hours, 1 minutes, 1 seconds", FormatETA(3661))
	assert.Equal(t, "0 seconds", FormatETA(-4))
}

func TestStatus(t *testing.T) {
	s := Status(12_000_000, 125, 25, time.Hour)
	assert.Equal(t, "speed 12 MB/s  eta 2 minutes, 5 seconds  completed 25%", s)

	s = Status(0, 4e9, 0, 24*time.Hour)
	assert.Contains(t, s, "eta unknown")
}
