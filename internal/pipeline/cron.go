package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression:
// "minute hour day-of-month month day-of-week". Each field accepts "*",
// single values, comma lists, "a-b" ranges and "/n" steps.
type Schedule struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

type cronField struct {
	wildcard bool
	allowed  map[int]bool
}

func (f cronField) matches(v int) bool {
	return f.wildcard || f.allowed[v]
}

var fieldBounds = [5]struct {
	name         string
	lower, upper int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(expr string) (Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("pipeline: cron %q: want 5 fields, got %d", expr, len(fields))
	}

	var parsed [5]cronField
	for i, raw := range fields {
		b := fieldBounds[i]
		f, err := parseCronField(raw, b.lower, b.upper)
		if err != nil {
			return Schedule{}, fmt.Errorf("pipeline: cron %q: %s field: %w", expr, b.name, err)
		}
		parsed[i] = f
	}
	return Schedule{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

func parseCronField(field string, lower, upper int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	allowed := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return cronField{}, fmt.Errorf("invalid step %q", s)
			}
			step = n
			part = base
		}

		lo, hi := lower, upper
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if lo, err = strconv.Atoi(a); err != nil {
				return cronField{}, fmt.Errorf("invalid range start %q", a)
			}
			if hi, err = strconv.Atoi(b); err != nil {
				return cronField{}, fmt.Errorf("invalid range end %q", b)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid value %q", part)
			}
			lo, hi = v, v
		}
		if lo < lower || hi > upper || lo > hi {
			return cronField{}, fmt.Errorf("%d-%d outside %d-%d", lo, hi, lower, upper)
		}
		for v := lo; v <= hi; v += step {
			allowed[v] = true
		}
	}
	return cronField{allowed: allowed}, nil
}

func (s Schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}

// Next returns the first minute strictly after the given time that matches,
// searching up to one year ahead. The zero time means no match.
func (s Schedule) Next(after time.Time) time.Time {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}
}
