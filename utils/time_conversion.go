package utils

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

const (
	// APILayout is the date layout used by requests, minus the fractional part.
	APILayout = "20060102T15:04:05"
	// JDateUnixEpoch is the Julian date of 1970-01-01T00:00:00Z.
	JDateUnixEpoch = 2440587.5
)

var apiDate = regexp.MustCompile(`^(\d{8}T\d{2}:\d{2}:\d{2})\.(\d{1,6})$`)

// UTCToUnix converts an API date (YYYYMMDDTHH:MM:SS.f, 1 to 6 fractional
// digits) to POSIX seconds. The fraction is truncated.
func UTCToUnix(s string) (int64, error) {
	m := apiDate.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("time data %q does not match format YYYYMMDDTHH:MM:SS.f", s)
	}
	t, err := time.ParseInLocation(APILayout, m[1], time.UTC)
	if err != nil {
		return 0, fmt.Errorf("time data %q: %w", s, err)
	}
	return t.Unix(), nil
}

// UTCToUnixLayout parses s with an arbitrary Go layout in UTC and truncates
// to whole seconds.
func UTCToUnixLayout(s, layout string) (int64, error) {
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// UnixToUTC formats POSIX seconds in the API layout with millisecond precision.
func UnixToUTC(ts float64) string {
	sec, frac := math.Modf(ts)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return t.Format(APILayout + ".000")
}

// JDateToUnix converts a Julian date to POSIX seconds.
func JDateToUnix(jd float64) float64 {
	return (jd - JDateUnixEpoch) * 86400
}
