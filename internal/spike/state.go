package spike

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

type cell struct {
	symbol string
	period domain.Period
}

// State holds the change value each (symbol, period) pair last alerted at.
// Every tracked pair starts at zero. It is safe for concurrent use.
type State struct {
	last map[cell]float64
	mu   sync.RWMutex
}

// NewState creates a State with a zero cell for every symbol and period.
func NewState(symbols []string, periods []domain.Period) *State {
	s := &State{last: make(map[cell]float64, len(symbols)*len(periods))}
	for _, sym := range symbols {
		for _, p := range periods {
			s.last[cell{sym, p}] = 0
		}
	}
	return s
}

// Get returns the last notified change and whether the pair is tracked.
func (s *State) Get(symbol string, period domain.Period) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.last[cell{symbol, period}]
	return v, ok
}

// Set overwrites the cell for a tracked pair. Untracked pairs are ignored.
func (s *State) Set(symbol string, period domain.Period, change float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cell{symbol, period}
	if _, ok := s.last[c]; ok {
		s.last[c] = change
	}
}

// Snapshot returns a copy of every cell, ordered by symbol then period.
func (s *State) Snapshot() []domain.StateEntry {
	s.mu.RLock()
	out := make([]domain.StateEntry, 0, len(s.last))
	for c, v := range s.last {
		out = append(out, domain.StateEntry{Symbol: c.symbol, Period: c.period, LastNotified: v})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Period < out[j].Period
	})
	return out
}
