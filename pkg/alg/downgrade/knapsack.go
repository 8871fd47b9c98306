package downgrade

import "github.com/heyp-project/heyp-agents/pkg/heyppb"

// knapsackMaxStates bounds the dynamic program; wider problems fall
// back to the largest-first heuristic.
const knapsackMaxStates = 1 << 22

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// solveKnapsack returns the subset of items whose summed volume best
// approximates capacity from below (classic 0/1 knapsack with volume as
// both weight and value). Volumes are divided by their gcd first, which
// is lossless because every subset sum is a multiple of the gcd.
func solveKnapsack(volumes []int64, capacity int64) []bool {
	chosen := make([]bool, len(volumes))
	if capacity <= 0 || len(volumes) == 0 {
		return chosen
	}

	g := int64(0)
	for _, v := range volumes {
		g = gcd(g, v)
	}
	if g == 0 {
		return chosen
	}
	capUnits := capacity / g
	if capUnits == 0 {
		return chosen
	}
	if capUnits > knapsackMaxStates/int64(len(volumes)+1) {
		return nil // too wide for exact DP
	}

	// best[w] is the largest achievable sum <= w; take[i][w] records
	// whether item i is used to achieve best[w].
	best := make([]int64, capUnits+1)
	take := make([][]bool, len(volumes))
	for i, v := range volumes {
		take[i] = make([]bool, capUnits+1)
		w := v / g
		if w == 0 {
			continue
		}
		for c := capUnits; c >= w; c-- {
			if cand := best[c-w] + w; cand > best[c] {
				best[c] = cand
				take[i][c] = true
			}
		}
	}

	c := capUnits
	for i := len(volumes) - 1; i >= 0; i-- {
		if take[i][c] {
			chosen[i] = true
			c -= volumes[i] / g
		}
	}
	return chosen
}

// pickKnapsack chooses the LOPRI subset whose volume best approximates
// the target without exceeding it. With jobLevel set, children are
// grouped by job and each job moves as a unit.
func pickKnapsack(info *heyppb.AggInfo, wantFracLOPRI float64, source FVSource, jobLevel bool) []bool {
	lopri := make([]bool, len(info.Children))
	if wantFracLOPRI >= 1 {
		for i := range lopri {
			lopri[i] = true
		}
		return lopri
	}
	if wantFracLOPRI <= 0 {
		return lopri
	}

	total := totalChildVolume(info, source)
	capacity := int64(wantFracLOPRI * float64(total))

	if !jobLevel {
		volumes := make([]int64, len(info.Children))
		for i, c := range info.Children {
			volumes[i] = FlowVolume(c, source)
		}
		chosen := solveKnapsack(volumes, capacity)
		if chosen == nil {
			dlog.Warn("knapsack problem too wide for exact solve; using largest-first")
			return pickLargestFirst(info, wantFracLOPRI, source)
		}
		return chosen
	}

	var jobs []string
	jobVolume := map[string]int64{}
	jobChildren := map[string][]int{}
	for i, c := range info.Children {
		job := c.GetFlow().GetJob()
		if _, ok := jobVolume[job]; !ok {
			jobs = append(jobs, job)
		}
		jobVolume[job] += FlowVolume(c, source)
		jobChildren[job] = append(jobChildren[job], i)
	}
	volumes := make([]int64, len(jobs))
	for i, job := range jobs {
		volumes[i] = jobVolume[job]
	}
	chosen := solveKnapsack(volumes, capacity)
	if chosen == nil {
		dlog.Warn("job-level knapsack problem too wide for exact solve; using largest-first")
		return pickLargestFirst(info, wantFracLOPRI, source)
	}
	for i, job := range jobs {
		if chosen[i] {
			for _, ci := range jobChildren[job] {
				lopri[ci] = true
			}
		}
	}
	return lopri
}
