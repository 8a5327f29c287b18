package situation

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseClock converts an "MM:SS" period clock string to seconds. Plain
// integer seconds are accepted too. ok is false for anything else.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	mm, ss, found := strings.Cut(s, ":")
	if !found {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 {
		return 0, false
	}
	sec, err := strconv.Atoi(ss)
	if err != nil || sec < 0 || sec > 59 {
		return 0, false
	}
	return m*60 + sec, true
}

// FormatClock renders seconds as "MM:SS".
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Overlap returns the length of the intersection of [aStart, aEnd) and
// [bStart, bEnd). Empty or inverted intervals overlap by zero.
func Overlap(aStart, aEnd, bStart, bEnd int) int {
	lo := max(aStart, bStart)
	hi := min(aEnd, bEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}
