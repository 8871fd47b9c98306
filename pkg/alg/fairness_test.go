package alg

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fairnessOptions = []MaxMinFairnessOptions{
	{SolveMethod: SolveFullSort, EnableTinyFlowOpt: false},
	{SolveMethod: SolveFullSort, EnableTinyFlowOpt: true},
	{SolveMethod: SolvePartialSort, EnableTinyFlowOpt: false},
	{SolveMethod: SolvePartialSort, EnableTinyFlowOpt: true},
}

func forEachProblem(t *testing.T, fn func(t *testing.T, p *SingleLinkMaxMinFairnessProblem)) {
	for _, opt := range fairnessOptions {
		opt := opt
		t.Run(fmt.Sprintf("sort=%d/tiny=%v", opt.SolveMethod, opt.EnableTinyFlowOpt), func(t *testing.T) {
			fn(t, NewMaxMinFairnessProblem(opt))
		})
	}
}

func basicDemands() [][]int64 {
	return [][]int64{
		{1, 4, 5, 1, 2, 88, 1912},
		{3, 3, 9},
		{999999999, 2413541, 2351},
		{1, 2, 4, 8, 16, 64, 32, 256, 128, 2048, 512, 1024},
		{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37},
	}
}

func sum(vals []int64) int64 {
	var t int64
	for _, v := range vals {
		t += v
	}
	return t
}

func max(vals []int64) int64 {
	m := vals[0]
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func TestMaxMinFairnessNoRequests(t *testing.T) {
	forEachProblem(t, func(t *testing.T, p *SingleLinkMaxMinFairnessProblem) {
		w := p.ComputeWaterlevel(0, nil)
		assert.Equal(t, int64(0), w)
		assert.Empty(t, p.SetAllocations(w, nil, nil))

		w = p.ComputeWaterlevel(100, nil)
		assert.Equal(t, int64(0), w)
		assert.Empty(t, p.SetAllocations(w, nil, nil))
	})
}

func TestMaxMinFairnessAllZero(t *testing.T) {
	forEachProblem(t, func(t *testing.T, p *SingleLinkMaxMinFairnessProblem) {
		for _, demands := range [][]int64{{0, 0, 0}, {0}, {0, 0}} {
			w := p.ComputeWaterlevel(0, demands)
			assert.Equal(t, int64(0), w)
			assert.Equal(t, demands, p.SetAllocations(w, demands, nil))
		}
	})
}

func TestMaxMinFairnessAllSatisfied(t *testing.T) {
	forEachProblem(t, func(t *testing.T, p *SingleLinkMaxMinFairnessProblem) {
		for _, demands := range basicDemands() {
			capacity := sum(demands)
			w := p.ComputeWaterlevel(capacity, demands)
			assert.Equal(t, max(demands), w)
			assert.Equal(t, demands, p.SetAllocations(w, demands, nil))

			w = p.ComputeWaterlevel(13*capacity+10, demands)
			assert.Equal(t, max(demands), w)
			assert.Equal(t, demands, p.SetAllocations(w, demands, nil))
		}
	})
}

func TestMaxMinFairnessBiggestNotSatisfied(t *testing.T) {
	forEachProblem(t, func(t *testing.T, p *SingleLinkMaxMinFairnessProblem) {
		for _, demands := range basicDemands() {
			maxDemand := max(demands)
			secondMax := int64(-1)
			var capacity int64
			for _, v := range demands {
				if v < maxDemand {
					if v > secondMax {
						secondMax = v
					}
					capacity += v
				}
			}
			expected := make([]int64, len(demands))
			for i, v := range demands {
				expected[i] = v
				if v == maxDemand {
					capacity += secondMax
					expected[i] = secondMax
				}
			}
			w := p.ComputeWaterlevel(capacity, demands)
			require.Equal(t, secondMax, w, "capacity: %d demands: %v", capacity, demands)
			assert.Equal(t, expected, p.SetAllocations(w, demands, nil))
		}
	})
}

func TestMaxMinFairnessNoneSatisfied(t *testing.T) {
	forEachProblem(t, func(t *testing.T, p *SingleLinkMaxMinFairnessProblem) {
		demands := []int64{2, 5, 7}
		w := p.ComputeWaterlevel(5, demands)
		assert.Equal(t, int64(1), w)
		assert.Equal(t, []int64{1, 1, 1}, p.SetAllocations(w, demands, nil))
	})
}

func TestMaxMinFairnessHalfSatisfied(t *testing.T) {
	forEachProblem(t, func(t *testing.T, p *SingleLinkMaxMinFairnessProblem) {
		demands := []int64{7, 20, 23, 51, 299}
		w := p.ComputeWaterlevel(100, demands)
		assert.Equal(t, int64(25), w)
		assert.Equal(t, []int64{7, 20, 23, 25, 25}, p.SetAllocations(w, demands, nil))
	})
}

// All option combinations must agree exactly, including when the tiny
// flow optimization filters part of the input.
func TestMaxMinFairnessOptionEquivalence(t *testing.T) {
	demandSets := basicDemands()
	demandSets = append(demandSets, []int64{1, 1, 1, 2, 5000000, 9000000, 12000000})
	for _, demands := range demandSets {
		for _, capacity := range []int64{0, 1, 10, sum(demands) / 2, sum(demands), 2 * sum(demands)} {
			var baseline int64
			for i, opt := range fairnessOptions {
				p := NewMaxMinFairnessProblem(opt)
				w := p.ComputeWaterlevel(capacity, demands)
				if i == 0 {
					baseline = w
				} else {
					require.Equal(t, baseline, w, "capacity: %d demands: %v options: %+v", capacity, demands, opt)
				}
			}
		}
	}
}
