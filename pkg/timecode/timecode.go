// Package timecode converts between HH:MM:SS timestamps and playback
// positions expressed in seconds.
//
// Only the strict two-digit form is accepted. There is no timezone and no
// sub-second support: a transcript line stamped "[00:01:05]" starts at
// exactly 65 seconds.
package timecode

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrMalformedTimestamp is returned by [Parse] when the input does not match
// the HH:MM:SS pattern.
var ErrMalformedTimestamp = errors.New("timecode: malformed timestamp")

var pattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})$`)

// Parse converts ts ("HH:MM:SS") into seconds. Inputs such as "1:2:3" or
// "aa:bb:cc" fail with [ErrMalformedTimestamp]; they are never coerced to 0.
func Parse(ts string) (float64, error) {
	m := pattern.FindStringSubmatch(ts)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTimestamp, ts)
	}
	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, ts, err)
		}
		parts[i] = n
	}
	return float64(parts[0]*3600 + parts[1]*60 + parts[2]), nil
}

// Format renders seconds as HH:MM:SS. Fractional seconds are truncated and
// negative values clamp to "00:00:00". Hours wider than two digits are
// printed in full.
func Format(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
