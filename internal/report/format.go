package report

import "fmt"

// FormatDuration renders milliseconds as "HHh MMm SSs".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02dh %02dm %02ds", h, m, s)
}

// FormatGB renders a byte count in gigabytes.
func FormatGB(bytes int64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/(1<<30))
}

// FormatMB renders a megabyte count in gigabytes.
func FormatMB(mb int64) string {
	return FormatGB(mb << 20)
}
