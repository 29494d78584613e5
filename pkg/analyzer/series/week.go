package series

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidWeek is returned for keys that are not a valid "YYYYWW" ISO week.
var ErrInvalidWeek = errors.New("invalid ISO week key")

// WeekKey returns the ISO year-week of t (in UTC) as "YYYYWW".
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d%02d", year, week)
}

// WeekStart returns Monday 00:00 UTC of the ISO week identified by key.
func WeekStart(key string) (time.Time, error) {
	if len(key) != 6 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWeek, key)
	}
	year, err := strconv.Atoi(key[:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWeek, key)
	}
	week, err := strconv.Atoi(key[4:])
	if err != nil || week < 1 || week > 53 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWeek, key)
	}

	// January 4th always falls in ISO week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	back := (int(jan4.Weekday()) + 6) % 7
	start := jan4.AddDate(0, 0, -back+7*(week-1))

	// week 53 only exists in long years
	if WeekKey(start) != key {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidWeek, key)
	}
	return start, nil
}

// AddWeeks shifts an ISO week key by n weeks (n may be negative).
func AddWeeks(key string, n int) (string, error) {
	start, err := WeekStart(key)
	if err != nil {
		return "", err
	}
	return WeekKey(start.AddDate(0, 0, 7*n)), nil
}

// WeeksBetween returns the number of whole weeks from key a to key b.
func WeeksBetween(a, b string) (int, error) {
	sa, err := WeekStart(a)
	if err != nil {
		return 0, err
	}
	sb, err := WeekStart(b)
	if err != nil {
		return 0, err
	}
	return int(sb.Sub(sa).Hours() / (24 * 7)), nil
}
