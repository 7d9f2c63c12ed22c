package funnel

import (
	"strconv"
	"strings"
	"time"
)

// IntervalCorrector returns the interval to use for a date range. Implementations never
// return a finer granularity than requested.
type IntervalCorrector func(dateFrom, dateTo string, requested Interval) Interval

var intervalRank = map[Interval]int{
	IntervalMinute: 0,
	IntervalHour:   1,
	IntervalDay:    2,
	IntervalWeek:   3,
	IntervalMonth:  4,
}

// minimum granularity per range length, longest first
var intervalFloors = []struct {
	span time.Duration
	min  Interval
}{
	{span: 730 * 24 * time.Hour, min: IntervalMonth},
	{span: 90 * 24 * time.Hour, min: IntervalWeek},
	{span: 14 * 24 * time.Hour, min: IntervalDay},
	{span: 2 * 24 * time.Hour, min: IntervalHour},
}

// NewIntervalCorrector builds the default correction policy resolving relative dates against now.
func NewIntervalCorrector(now func() time.Time) IntervalCorrector {
	if now == nil {
		now = time.Now
	}
	return func(dateFrom, dateTo string, requested Interval) Interval {
		if requested == "" {
			requested = IntervalDay
		}
		if strings.EqualFold(strings.TrimSpace(dateFrom), "all") {
			return coarser(requested, IntervalMonth)
		}
		ref := now().UTC()
		from, ok := resolveDate(dateFrom, ref, ref.AddDate(0, 0, -7))
		if !ok {
			return requested
		}
		to, ok := resolveDate(dateTo, ref, ref)
		if !ok || !to.After(from) {
			return requested
		}
		span := to.Sub(from)
		for _, floor := range intervalFloors {
			if span >= floor.span {
				return coarser(requested, floor.min)
			}
		}
		return requested
	}
}

func coarser(a, b Interval) Interval {
	if intervalRank[b] > intervalRank[a] {
		return b
	}
	return a
}

// resolveDate understands ISO dates, RFC3339 timestamps and relative offsets like -7d, -2w,
// -3m, -1y, -24h plus the dStart/mStart/yStart anchors.
func resolveDate(value string, ref, fallback time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, true
	}
	switch value {
	case "dStart":
		return time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC), true
	case "mStart":
		return time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC), true
	case "yStart":
		return time.Date(ref.Year(), 1, 1, 0, 0, 0, 0, time.UTC), true
	}
	if strings.HasPrefix(value, "-") && len(value) > 2 {
		n, err := strconv.Atoi(value[1 : len(value)-1])
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		switch value[len(value)-1] {
		case 'h':
			return ref.Add(-time.Duration(n) * time.Hour), true
		case 'd':
			return ref.AddDate(0, 0, -n), true
		case 'w':
			return ref.AddDate(0, 0, -7*n), true
		case 'm':
			return ref.AddDate(0, -n, 0), true
		case 'y':
			return ref.AddDate(-n, 0, 0), true
		}
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
