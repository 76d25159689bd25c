// Package summary implements the Summarize stage: it folds result streams
// produced by Generate runs into outcome counts and per-outcome chain-length
// histograms, then renders them as a fixed-format report.
//
// Accumulation is a commutative, associative fold, so the order in which
// streams are read (or merged from parallel runs) never changes the result.
package summary

import (
	"sort"

	sim "github.com/inference-sim/markov-sim/sim"
)

// Summary aggregates outcome frequencies and chain-length distributions.
type Summary struct {
	OutcomeCounts    map[sim.Outcome]int
	LengthHistograms map[sim.Outcome]map[int]int // outcome → chain length → count
}

// New returns an empty Summary with a histogram for every known outcome.
func New() *Summary {
	s := &Summary{
		OutcomeCounts:    make(map[sim.Outcome]int),
		LengthHistograms: make(map[sim.Outcome]map[int]int),
	}
	for _, o := range sim.Outcomes {
		s.LengthHistograms[o] = make(map[int]int)
	}
	return s
}

// Add counts one record.
func (s *Summary) Add(outcome sim.Outcome, length int) {
	s.OutcomeCounts[outcome]++
	hist, ok := s.LengthHistograms[outcome]
	if !ok {
		hist = make(map[int]int)
		s.LengthHistograms[outcome] = hist
	}
	hist[length]++
}

// Merge adds every count of other into s. Safe for nil other.
func (s *Summary) Merge(other *Summary) {
	if other == nil {
		return
	}
	for o, n := range other.OutcomeCounts {
		s.OutcomeCounts[o] += n
	}
	for o, hist := range other.LengthHistograms {
		dst, ok := s.LengthHistograms[o]
		if !ok {
			dst = make(map[int]int)
			s.LengthHistograms[o] = dst
		}
		for length, n := range hist {
			dst[length] += n
		}
	}
}

// Total returns the number of records counted.
func (s *Summary) Total() int {
	total := 0
	for _, n := range s.OutcomeCounts {
		total += n
	}
	return total
}

// Outcomes returns the counted outcomes in ascending order.
func (s *Summary) Outcomes() []sim.Outcome {
	out := make([]sim.Outcome, 0, len(s.OutcomeCounts))
	for o := range s.OutcomeCounts {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lengths returns the chain lengths recorded for outcome in ascending order.
func (s *Summary) Lengths(outcome sim.Outcome) []int {
	hist := s.LengthHistograms[outcome]
	out := make([]int, 0, len(hist))
	for length := range hist {
		out = append(out, length)
	}
	sort.Ints(out)
	return out
}
