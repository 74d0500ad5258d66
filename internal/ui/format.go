package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bamsammich/alist-sync/internal/stats"
)

var rateUnits = []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s"}

// FormatRate formats a bytes-per-second rate with three significant digits.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	val := bytesPerSec
	for _, u := range rateUnits {
		if val >= 1024 {
			val /= 1024
			continue
		}
		switch {
		case val < 10:
			return fmt.Sprintf("%.2f %s", val, u)
		case val < 100:
			return fmt.Sprintf("%.1f %s", val, u)
		default:
			return fmt.Sprintf("%.0f %s", val, u)
		}
	}
	return fmt.Sprintf("%.1f PB/s", val)
}

// FormatPerSec formats a count rate such as finished tasks per second.
func FormatPerSec(perSec float64, noun string) string {
	switch {
	case perSec <= 0:
		return "0 " + noun + "/s"
	case perSec < 10:
		return fmt.Sprintf("%.1f %s/s", perSec, noun)
	default:
		return fmt.Sprintf("%s %s/s", FormatCount(int64(perSec+0.5)), noun)
	}
}

// FormatETA is FormatDuration with "--" for an unknown estimate.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatDuration formats elapsed time concisely, e.g. "3m 17s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatCount formats an integer with comma separators.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := strconv.FormatInt(n, 10)
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	var b strings.Builder
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// ProgressBar renders pct (clamped to [0,1]) as width ▪/□ cells.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(max(0, min(pct, 1)) * float64(width))
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

// WorkerIndicator shows busy of total workers as filled cells.
func WorkerIndicator(busy, total int) string {
	return ProgressBar(float64(busy)/float64(max(total, 1)), total)
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}
