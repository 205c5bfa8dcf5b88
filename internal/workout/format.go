package workout

import "fmt"

// MMSS formats seconds as " m:ss". Fractions are truncated.
func MMSS(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	return fmt.Sprintf("%2d:%02d", s/60, s%60)
}

// SplitSeconds is the time to cover 500 m at speedMps, or 0 when stopped.
func SplitSeconds(speedMps float64) float64 {
	if speedMps <= 0 {
		return 0
	}
	return 500 / speedMps
}
