package transport

import (
	"fmt"
	"math"
	"time"
)

// FormatTime renders a position as m:ss, or h:mm:ss past an hour.
func FormatTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h := total / 3600
	m := (total / 60) % 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatVolume renders a [0,1] volume as a percentage.
func FormatVolume(v float64) string {
	return fmt.Sprintf("%d%%", int(math.Round(clamp01(v)*100)))
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
