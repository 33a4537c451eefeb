// Package engine holds the reporting core: period resolution, record merging,
// aggregation, ranking and delta tracking. Everything here is synchronous and
// deterministic given its inputs.
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/models"
)

// ErrInvalidPeriod is returned when a period key cannot be parsed.
var ErrInvalidPeriod = errors.New("invalid period")

// PeriodKind distinguishes whole months from weeks within a month.
type PeriodKind string

const (
	PeriodMonth PeriodKind = "month"
	PeriodWeek  PeriodKind = "week"
)

// Period is a calendar window used to scope which readings are current.
// Month is zero-based (0 = January). End is the last inclusive instant.
type Period struct {
	Kind  PeriodKind `json:"kind"`
	Year  int        `json:"year"`
	Month int        `json:"month"`
	Week  int        `json:"week,omitempty"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// Contains reports whether t falls inside the period. Months compare calendar
// year and month; weeks compare against the day-granular Start/End bounds.
func (p Period) Contains(t time.Time) bool {
	if p.Kind == PeriodMonth {
		lt := t.In(p.Start.Location())
		return lt.Year() == p.Year && int(lt.Month())-1 == p.Month
	}
	return !t.Before(p.Start) && !t.After(p.End)
}

// Key returns the stable selection key, e.g. "2024-03" or "2024-03-w2".
func (p Period) Key() string {
	key := fmt.Sprintf("%04d-%02d", p.Year, p.Month+1)
	if p.Kind == PeriodWeek {
		key += "-w" + strconv.Itoa(p.Week)
	}
	return key
}

// Label returns a human readable period name.
func (p Period) Label() string {
	if p.Kind == PeriodWeek {
		return fmt.Sprintf("Week %d (%s %d-%d, %d)",
			p.Week, p.Start.Format("Jan"), p.Start.Day(), p.End.Day(), p.Year)
	}
	return p.Start.Format("January 2006")
}

// IsZero reports whether no period has been selected.
func (p Period) IsZero() bool {
	return p.Kind == ""
}

// Resolver computes selectable periods in a fixed location.
type Resolver struct {
	loc *time.Location
}

// NewResolver returns a resolver for calendar boundaries in loc (UTC when nil).
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

var defaultResolver = NewResolver(time.UTC)

// ListMonths lists months from the one containing earliestISODate through the
// one containing now, most recent first, using UTC boundaries.
func ListMonths(earliestISODate string, now time.Time) []Period {
	return defaultResolver.ListMonths(earliestISODate, now)
}

// ListWeeks lists the weeks of a month using UTC boundaries.
func ListWeeks(year, month int) []Period {
	return defaultResolver.ListWeeks(year, month)
}

// Location returns the resolver's calendar location.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Month builds the month period for a zero-based month index.
func (r *Resolver) Month(year, month int) Period {
	start := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, r.loc)
	return Period{
		Kind:  PeriodMonth,
		Year:  start.Year(),
		Month: int(start.Month()) - 1,
		Start: start,
		End:   start.AddDate(0, 1, 0).Add(-time.Millisecond),
	}
}

// ListMonths lists months from the one containing earliestISODate through the
// one containing now, most recent first. A missing or unparsable earliest date
// (or one after now) yields only the month containing now.
func (r *Resolver) ListMonths(earliestISODate string, now time.Time) []Period {
	now = now.In(r.loc)
	cursor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)

	stop := cursor
	if earliest, ok := r.parseDate(earliestISODate); ok {
		stop = time.Date(earliest.Year(), earliest.Month(), 1, 0, 0, 0, 0, r.loc)
		if stop.After(cursor) {
			stop = cursor
		}
	}

	months := make([]Period, 0, 12)
	for !cursor.Before(stop) {
		months = append(months, r.Month(cursor.Year(), int(cursor.Month())-1))
		cursor = cursor.AddDate(0, -1, 0)
	}
	return months
}

// ListWeeks splits a month into 7-day weeks starting on day 1; the final week
// is clipped to the last day of the month. Invalid month indexes yield nil.
func (r *Resolver) ListWeeks(year, month int) []Period {
	if month < 0 || month > 11 {
		return nil
	}

	first := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, r.loc)
	lastDay := first.AddDate(0, 1, -1).Day()

	weeks := make([]Period, 0, 5)
	for startDay, n := 1, 1; startDay <= lastDay; startDay, n = startDay+7, n+1 {
		endDay := startDay + 6
		if endDay > lastDay {
			endDay = lastDay
		}
		weeks = append(weeks, Period{
			Kind:  PeriodWeek,
			Year:  year,
			Month: month,
			Week:  n,
			Start: time.Date(year, first.Month(), startDay, 0, 0, 0, 0, r.loc),
			End:   time.Date(year, first.Month(), endDay, 23, 59, 59, int(999*time.Millisecond), r.loc),
		})
	}
	return weeks
}

// Previous returns the period immediately before p: the prior month, the prior
// week of the same month, or the last week of the prior month.
func (r *Resolver) Previous(p Period) Period {
	if p.Kind == PeriodWeek {
		if p.Week > 1 {
			weeks := r.ListWeeks(p.Year, p.Month)
			if p.Week-2 < len(weeks) {
				return weeks[p.Week-2]
			}
		}
		prev := r.Month(p.Year, p.Month-1)
		weeks := r.ListWeeks(prev.Year, prev.Month)
		return weeks[len(weeks)-1]
	}
	return r.Month(p.Year, p.Month-1)
}

var periodKeyRE = regexp.MustCompile(`^(\d{4})-(\d{2})(?:-w(\d))?$`)

// ParsePeriod resolves a selection key produced by Period.Key.
func (r *Resolver) ParsePeriod(key string) (Period, error) {
	m := periodKeyRE.FindStringSubmatch(strings.ToLower(strings.TrimSpace(key)))
	if m == nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, month)
	}
	if m[3] == "" {
		return r.Month(year, month-1), nil
	}

	week, _ := strconv.Atoi(m[3])
	weeks := r.ListWeeks(year, month-1)
	if week < 1 || week > len(weeks) {
		return Period{}, fmt.Errorf("%w: week %d out of range", ErrInvalidPeriod, week)
	}
	return weeks[week-1], nil
}

// AvailableMonths lists, most recent first, the months between the earliest
// reading and now that contain at least one reading.
func (r *Resolver) AvailableMonths(readings []models.Reading, now time.Time) []Period {
	earliest, ok := EarliestReading(readings)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	for _, rd := range readings {
		t := rd.Timestamp.In(r.loc)
		seen[fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))] = true
	}

	all := r.ListMonths(earliest.Format(time.RFC3339), now)
	out := make([]Period, 0, len(all))
	for _, p := range all {
		if seen[p.Key()] {
			out = append(out, p)
		}
	}
	return out
}

// Select resolves a selection key. An empty key means no selection yet and
// falls back to the newest month with data, or the month containing now.
func (r *Resolver) Select(key string, readings []models.Reading, now time.Time) (Period, error) {
	if strings.TrimSpace(key) != "" {
		return r.ParsePeriod(key)
	}
	if available := r.AvailableMonths(readings, now); len(available) > 0 {
		return available[0], nil
	}
	now = now.In(r.loc)
	return r.Month(now.Year(), int(now.Month())-1), nil
}

// EarliestReading returns the oldest reading timestamp.
func EarliestReading(readings []models.Reading) (time.Time, bool) {
	var earliest time.Time
	for i, rd := range readings {
		if i == 0 || rd.Timestamp.Before(earliest) {
			earliest = rd.Timestamp
		}
	}
	return earliest, len(readings) > 0
}

func (r *Resolver) parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, r.loc); err == nil {
			return t.In(r.loc), true
		}
	}
	return time.Time{}, false
}
