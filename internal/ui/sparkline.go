package ui

import "strings"

var sparkBars = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the newest width samples, right-aligned, as bar runes.
// Samples are scaled against the larger of the window's peak and floor, so
// a quiet window is not stretched to full height. Positive samples always
// show at least the lowest bar; idle seconds and padding are blank.
func Sparkline(data []float64, width int, floor float64) string {
	if width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	peak := floor
	for _, v := range data {
		peak = max(peak, v)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(data)))
	top := len(sparkBars) - 1
	for _, v := range data {
		if v <= 0 || peak <= 0 {
			b.WriteByte(' ')
			continue
		}
		idx := int(v / peak * float64(top))
		b.WriteRune(sparkBars[min(max(idx, 0), top)])
	}
	return b.String()
}
