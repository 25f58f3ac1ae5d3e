package domain

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// HolidayKind distinguishes fixed-date from floating holiday rules.
type HolidayKind string

// HolidayKind values.
const (
	HolidayFixed    HolidayKind = "fixed"
	HolidayFloating HolidayKind = "floating"
)

// LastOccurrence selects the last matching weekday of a month in a floating rule.
const LastOccurrence = -1

// HolidayRule describes one yearly non-business day.
type HolidayRule struct {
	Name       string
	Kind       HolidayKind
	Month      time.Month
	Day        int
	Weekday    time.Weekday
	Occurrence int
}

// FixedHoliday builds a rule for the same month/day every year.
func FixedHoliday(name string, month time.Month, day int) HolidayRule {
	return HolidayRule{Name: name, Kind: HolidayFixed, Month: month, Day: day}
}

// FloatingHoliday builds a rule for the Nth (or last, with LastOccurrence) weekday of a month.
func FloatingHoliday(name string, month time.Month, weekday time.Weekday, occurrence int) HolidayRule {
	return HolidayRule{Name: name, Kind: HolidayFloating, Month: month, Weekday: weekday, Occurrence: occurrence}
}

// Validate reports whether the rule can be resolved for every year.
func (r HolidayRule) Validate() error {
	if r.Month < time.January || r.Month > time.December {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidHolidayRule, r.Month)
	}
	switch r.Kind {
	case HolidayFixed:
		// Feb 29 is allowed; it simply does not occur in common years.
		last := time.Date(2024, r.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
		if r.Day < 1 || r.Day > last {
			return fmt.Errorf("%w: day %d out of range for %s", ErrInvalidHolidayRule, r.Day, r.Month)
		}
	case HolidayFloating:
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidHolidayRule, r.Weekday)
		}
		switch r.Occurrence {
		case 1, 2, 3, 4, LastOccurrence:
		default:
			return fmt.Errorf("%w: occurrence %d must be 1-4 or -1", ErrInvalidHolidayRule, r.Occurrence)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidHolidayRule, r.Kind)
	}
	return nil
}

// DateIn resolves the rule to a calendar date in one year. ok is false when the date does not exist that year.
func (r HolidayRule) DateIn(year int) (Date, bool) {
	switch r.Kind {
	case HolidayFixed:
		t := time.Date(year, r.Month, r.Day, 0, 0, 0, 0, time.UTC)
		if t.Month() != r.Month {
			return Date{}, false
		}
		return DateOf(t), true
	case HolidayFloating:
		if r.Occurrence == LastOccurrence {
			t := time.Date(year, r.Month+1, 0, 0, 0, 0, 0, time.UTC)
			for t.Weekday() != r.Weekday {
				t = t.AddDate(0, 0, -1)
			}
			return DateOf(t), true
		}
		t := time.Date(year, r.Month, 1, 0, 0, 0, 0, time.UTC)
		for t.Weekday() != r.Weekday {
			t = t.AddDate(0, 0, 1)
		}
		t = t.AddDate(0, 0, 7*(r.Occurrence-1))
		if t.Month() != r.Month {
			return Date{}, false
		}
		return DateOf(t), true
	default:
		return Date{}, false
	}
}

// Date is a civil calendar date with no time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Holiday set names.
const (
	DefaultHolidaySet = "us-federal"
	NoHolidaySet      = "none"
)

// holidaySets stores the named per-organization rule sets.
var holidaySets = map[string][]HolidayRule{
	DefaultHolidaySet: {
		FixedHoliday("New Year's Day", time.January, 1),
		FloatingHoliday("Martin Luther King Jr. Day", time.January, time.Monday, 3),
		FloatingHoliday("Presidents' Day", time.February, time.Monday, 3),
		FloatingHoliday("Memorial Day", time.May, time.Monday, LastOccurrence),
		FixedHoliday("Juneteenth", time.June, 19),
		FixedHoliday("Independence Day", time.July, 4),
		FloatingHoliday("Labor Day", time.September, time.Monday, 1),
		FloatingHoliday("Thanksgiving Day", time.November, time.Thursday, 4),
		FixedHoliday("Christmas Day", time.December, 25),
	},
	NoHolidaySet: {},
}

// HolidaySet returns a copy of one named holiday rule set.
func HolidaySet(name string) ([]HolidayRule, bool) {
	rules, ok := holidaySets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return slices.Clone(rules), true
}

// HolidaySetNames lists the known holiday set names in sorted order.
func HolidaySetNames() []string {
	names := make([]string, 0, len(holidaySets))
	for name := range holidaySets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BusinessCalendar answers business-day questions for one rule set and time zone.
// Holiday dates are computed lazily per year and cached for the calendar's lifetime.
type BusinessCalendar struct {
	rules []HolidayRule
	loc   *time.Location

	mu     sync.RWMutex
	byYear map[int]map[Date]struct{}
}

// NewBusinessCalendar validates rules and constructs a calendar. A nil location means UTC.
func NewBusinessCalendar(rules []HolidayRule, loc *time.Location) (*BusinessCalendar, error) {
	for idx, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("holiday rule %d (%s): %w", idx, rule.Name, err)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BusinessCalendar{
		rules:  slices.Clone(rules),
		loc:    loc,
		byYear: map[int]map[Date]struct{}{},
	}, nil
}

// Location returns the zone used to decide calendar days.
func (c *BusinessCalendar) Location() *time.Location {
	return c.loc
}

// Holidays returns the sorted holiday dates for one year.
func (c *BusinessCalendar) Holidays(year int) []Date {
	set := c.holidaysFor(year)
	out := make([]Date, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Date) int {
		return time.Date(a.Year, a.Month, a.Day, 0, 0, 0, 0, time.UTC).Compare(time.Date(b.Year, b.Month, b.Day, 0, 0, 0, 0, time.UTC))
	})
	return out
}

// IsHoliday reports whether d is one of the calendar's holidays.
func (c *BusinessCalendar) IsHoliday(d Date) bool {
	_, ok := c.holidaysFor(d.Year)[d]
	return ok
}

// IsBusinessDay reports whether t's calendar day (in the calendar's zone) is Monday-Friday and not a holiday.
func (c *BusinessCalendar) IsBusinessDay(t time.Time) bool {
	t = t.In(c.loc)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(DateOf(t))
}

// BusinessMinutesBetween sums whole business minutes in [start, end).
// Both instants are truncated to the minute first, so splitting an interval never loses a minute.
// Partial first and last days are prorated; non-business days contribute nothing.
// Zero instants are programmer errors and panic.
func (c *BusinessCalendar) BusinessMinutesBetween(start, end time.Time) int {
	return int(c.BusinessDurationBetween(start, end) / time.Minute)
}

// BusinessDurationBetween is BusinessMinutesBetween as a duration. The result is always a whole number of minutes.
func (c *BusinessCalendar) BusinessDurationBetween(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		panic(fmt.Sprintf("domain: business time requested for zero instant (start=%v end=%v)", start, end))
	}
	start = start.Truncate(time.Minute).In(c.loc)
	end = end.Truncate(time.Minute).In(c.loc)
	if !start.Before(end) {
		return 0
	}

	var total time.Duration
	day := startOfDay(start)
	for day.Before(end) {
		next := day.AddDate(0, 0, 1)
		if c.IsBusinessDay(day) {
			segStart := day
			if start.After(segStart) {
				segStart = start
			}
			segEnd := next
			if end.Before(segEnd) {
				segEnd = end
			}
			if segEnd.After(segStart) {
				total += segEnd.Sub(segStart)
			}
		}
		day = next
	}
	return total
}

// holidaysFor returns the cached holiday set for one year, computing it on first use.
func (c *BusinessCalendar) holidaysFor(year int) map[Date]struct{} {
	c.mu.RLock()
	set, ok := c.byYear[year]
	c.mu.RUnlock()
	if ok {
		return set
	}

	set = make(map[Date]struct{}, len(c.rules))
	for _, rule := range c.rules {
		if d, ok := rule.DateIn(year); ok {
			set[d] = struct{}{}
		}
	}
	c.mu.Lock()
	if existing, ok := c.byYear[year]; ok {
		set = existing
	} else {
		c.byYear[year] = set
	}
	c.mu.Unlock()
	return set
}

// startOfDay returns midnight of t's day in t's location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
