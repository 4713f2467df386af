package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period is the look-back window a percentage change is computed over.
type Period int

const (
	PeriodDay Period = iota
	PeriodWeek
)

type periodInfo struct {
	keyword  string
	lookback time.Duration
}

var periodTable = map[Period]periodInfo{
	PeriodDay:  {keyword: "day", lookback: 24 * time.Hour},
	PeriodWeek: {keyword: "week", lookback: 7 * 24 * time.Hour},
}

// Periods lists every period in evaluation order.
var Periods = []Period{PeriodDay, PeriodWeek}

// String returns the keyword the exchange API and the alert text use.
func (p Period) String() string {
	if info, ok := periodTable[p]; ok {
		return info.keyword
	}
	return fmt.Sprintf("period(%d)", int(p))
}

// Lookback is the duration the period spans.
func (p Period) Lookback() time.Duration {
	return periodTable[p].lookback
}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	_, ok := periodTable[p]
	return ok
}

// ParsePeriod maps a keyword such as "day" or "Week" to a Period.
func ParsePeriod(s string) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, info := range periodTable {
		if info.keyword == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown period %q", ErrConfiguration, s)
}

func (p Period) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown period %d", ErrConfiguration, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := ParsePeriod(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
