package calls

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatDuration renders seconds as MM:SS. Fractional seconds are rounded
// and a rounded 60 carries into the minutes.
func FormatDuration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Round(seconds - float64(mins)*60))
	if secs == 60 {
		secs = 0
		mins++
	}
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// ParseDuration reads an MM:SS value back into whole seconds.
func ParseDuration(s string) (int, error) {
	m, sec, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("calls: duration %q is not MM:SS", s)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("calls: duration %q has bad minutes", s)
	}
	secs, err := strconv.Atoi(sec)
	if err != nil || secs < 0 || secs > 59 || len(sec) != 2 {
		return 0, fmt.Errorf("calls: duration %q has bad seconds", s)
	}
	return mins*60 + secs, nil
}
