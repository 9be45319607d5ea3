package session

import (
	"fmt"
	"math"
)

// FormatRemaining renders seconds as MM:SS. Minutes are not wrapped into
// hours.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ProgressRatio is answered/total at full precision.
func ProgressRatio(answered, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(answered) / float64(total)
}

// ProgressPercent is the display value round(100*answered/total).
func ProgressPercent(answered, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(100*answered) / float64(total)))
}

func describeThreshold(seconds int) string {
	switch {
	case seconds >= 60 && seconds%60 == 0:
		if seconds == 60 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", seconds/60)
	case seconds == 1:
		return "1 second"
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}
