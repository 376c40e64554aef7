package trip

import (
	"fmt"
	"strconv"
	"strings"
)

// ClockToMinutes parses an "HH:MM" 24-hour string into minutes past
// midnight. Returns an error for anything else.
func ClockToMinutes(t string) (int, error) {
	h, m, ok := strings.Cut(t, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q", t)
	}
	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", t)
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 || mins > 59 {
		return 0, fmt.Errorf("invalid minute in %q", t)
	}
	return hours*60 + mins, nil
}

// MinutesToClock12 renders minutes past midnight as a 12-hour display
// string, matching estimated-arrival strings from the backend
// ("1:05 PM").
func MinutesToClock12(m int) string {
	h := (m / 60) % 24
	mn := m % 60
	ampm := "AM"
	if h >= 12 {
		ampm = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, mn, ampm)
}
