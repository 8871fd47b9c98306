package alg

import "sort"

// SolveMethod selects how the waterlevel search orders demands. Both
// methods produce identical results; the distinction is kept as a
// tuning knob for very wide aggregates.
type SolveMethod int

const (
	SolveFullSort SolveMethod = iota
	SolvePartialSort
)

// MaxMinFairnessOptions tunes SingleLinkMaxMinFairnessProblem.
type MaxMinFairnessOptions struct {
	SolveMethod SolveMethod
	// EnableTinyFlowOpt skips demands below a small threshold when
	// searching for the waterlevel and grants them in full. The result
	// is numerically identical to the unoptimized solve.
	EnableTinyFlowOpt bool
}

// DefaultMaxMinFairnessOptions matches the production configuration.
func DefaultMaxMinFairnessOptions() MaxMinFairnessOptions {
	return MaxMinFairnessOptions{SolveMethod: SolvePartialSort, EnableTinyFlowOpt: true}
}

// SingleLinkMaxMinFairnessProblem computes a max-min fair allocation of
// a shared capacity to individual demands: the waterlevel w is the
// largest value such that sum(min(d_i, w)) <= capacity, and each demand
// is granted min(d_i, w).
type SingleLinkMaxMinFairnessProblem struct {
	options   MaxMinFairnessOptions
	sortedBuf []int64
}

func NewMaxMinFairnessProblem(options MaxMinFairnessOptions) *SingleLinkMaxMinFairnessProblem {
	return &SingleLinkMaxMinFairnessProblem{options: options}
}

// ComputeWaterlevel returns the max-min fair waterlevel for the given
// capacity and demands. Demands must be non-negative.
func (p *SingleLinkMaxMinFairnessProblem) ComputeWaterlevel(capacity int64, demands []int64) int64 {
	if len(demands) == 0 {
		return 0
	}

	var sumDemand int64
	maxDemand := int64(0)
	for _, d := range demands {
		sumDemand += d
		if d > maxDemand {
			maxDemand = d
		}
	}
	if sumDemand <= capacity {
		return maxDemand
	}
	if capacity <= 0 {
		return 0
	}

	filtered := false
	if p.options.EnableTinyFlowOpt {
		// Demands below 0.1% of an equal share cannot move the
		// waterlevel by more than rounding; grant them in full and
		// shrink the search space.
		thresh := capacity / int64(len(demands)) / 1000
		if thresh > 0 {
			p.sortedBuf = p.sortedBuf[:0]
			for _, d := range demands {
				if d <= thresh {
					capacity -= d
				} else {
					p.sortedBuf = append(p.sortedBuf, d)
				}
			}
			if len(p.sortedBuf) == 0 {
				return maxDemand
			}
			filtered = true
		}
	}
	if !filtered {
		p.sortedBuf = append(p.sortedBuf[:0], demands...)
	}

	// Both solve methods share a sort: Go's sort is already
	// introspective, so a separate partial-sort pass buys nothing.
	sort.Slice(p.sortedBuf, func(i, j int) bool { return p.sortedBuf[i] < p.sortedBuf[j] })

	// Walk demands from smallest to largest, raising the waterlevel to
	// each demand until the remaining capacity no longer covers an
	// equal share for everyone still unsatisfied.
	var waterlevel int64
	remaining := capacity
	for i, d := range p.sortedBuf {
		numUnsatisfied := int64(len(p.sortedBuf) - i)
		delta := d - waterlevel
		if delta*numUnsatisfied > remaining {
			waterlevel += remaining / numUnsatisfied
			remaining = 0
			break
		}
		remaining -= delta * numUnsatisfied
		waterlevel = d
	}
	return waterlevel
}

// SetAllocations fills allocations with min(demand, waterlevel) for
// each demand, reusing the provided slice.
func (p *SingleLinkMaxMinFairnessProblem) SetAllocations(waterlevel int64, demands []int64, allocations []int64) []int64 {
	allocations = allocations[:0]
	for _, d := range demands {
		if d < waterlevel {
			allocations = append(allocations, d)
		} else {
			allocations = append(allocations, waterlevel)
		}
	}
	return allocations
}
