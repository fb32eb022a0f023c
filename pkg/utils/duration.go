package utils

import (
	"fmt"
	"time"
)

// FormatDuration formats seconds as "Xh Ym", or "Ym" below one hour
func FormatDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// FormatSpan is FormatDuration for a time.Duration
func FormatSpan(d time.Duration) string {
	return FormatDuration(int64(d / time.Second))
}
