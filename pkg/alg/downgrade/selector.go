// Package downgrade selects which children of a flow-group aggregate
// should be moved to LOPRI so that the downgraded share of traffic
// approximates a target fraction.
package downgrade

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var dlog = logrus.WithField("component", "downgrade.Selector")

// FVSource picks which measurement a selector treats as a child's
// volume.
type FVSource int

const (
	FVPredictedDemand FVSource = iota
	FVUsage
)

// FlowVolume returns the volume of a flow according to the source.
func FlowVolume(fi *heyppb.FlowInfo, src FVSource) int64 {
	if src == FVUsage {
		return int64(fi.GetEwmaUsageBps())
	}
	return fi.GetPredictedDemandBps()
}

// Config selects a downgrade algorithm and its knobs.
type Config struct {
	Kind          heyppb.DowngradeSelectorKind
	DowngradeJobs bool
	// DowngradeUsage switches the volume source from predicted demand
	// to observed usage.
	DowngradeUsage bool
}

// Selector picks LOPRI children for an aggregate. A selector carries
// per-aggregate state (the hashing ring's arc survives across calls so
// downgrades stay sticky), so use one selector per flow-group.
type Selector struct {
	config Config
	source FVSource
	ring   *HashingDowngradeSelector
}

func NewSelector(config Config) Selector {
	source := FVPredictedDemand
	if config.DowngradeUsage {
		source = FVUsage
	}
	return Selector{config: config, source: source, ring: &HashingDowngradeSelector{}}
}

// PickLOPRIChildren returns a bitmap, parallel to info.Children, of the
// children that should use LOPRI. The marked volume approximates
// wantFracLOPRI of the total.
func (s Selector) PickLOPRIChildren(info *heyppb.AggInfo, wantFracLOPRI float64) []bool {
	switch s.config.Kind {
	case heyppb.DowngradeSelectorKind_DS_LARGEST_FIRST:
		return pickLargestFirst(info, wantFracLOPRI, s.source)
	case heyppb.DowngradeSelectorKind_DS_KNAPSACK:
		return pickKnapsack(info, wantFracLOPRI, s.source, s.config.DowngradeJobs)
	case heyppb.DowngradeSelectorKind_DS_HASHING:
		s.ring.PickChildren(wantFracLOPRI)
		ids := make([]uint64, len(info.Children))
		for i, c := range info.Children {
			ids[i] = c.GetFlow().GetHostId()
		}
		return s.ring.LOPRIBitmap(ids)
	default:
		return pickHeypSigcomm20(info, wantFracLOPRI, s.source)
	}
}

func childrenSortedByDecVolume(info *heyppb.AggInfo, source FVSource) []int {
	order := make([]int, len(info.Children))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return FlowVolume(info.Children[order[a]], source) > FlowVolume(info.Children[order[b]], source)
	})
	return order
}

func totalChildVolume(info *heyppb.AggInfo, source FVSource) int64 {
	var total int64
	for _, c := range info.Children {
		total += FlowVolume(c, source)
	}
	return total
}

// greedyAssignToMinimizeGap greedily flips children into the target bin
// (LOPRI when stateToIncrease, HIPRI otherwise) in order of decreasing
// volume, skipping any flip that would overshoot wantVolume.
func greedyAssignToMinimizeGap(info *heyppb.AggInfo, source FVSource, order []int,
	curVolume, wantVolume int64, stateToIncrease bool, lopri []bool) {
	for _, i := range order {
		if lopri[i] == stateToIncrease {
			continue // child already belongs to our bin, don't flip
		}
		next := curVolume + FlowVolume(info.Children[i], source)
		if next > wantVolume {
			continue // flipping child i overshoots the goal
		}
		lopri[i] = stateToIncrease
		curVolume = next
	}
}

// pickHeypSigcomm20 starts from the current QoS assignment and flips
// children in one direction only, so repeated small changes to the
// fraction do not churn the whole fleet.
func pickHeypSigcomm20(info *heyppb.AggInfo, wantFracLOPRI float64, source FVSource) []bool {
	lopri := make([]bool, len(info.Children))
	if wantFracLOPRI <= 0 {
		return lopri
	}
	if wantFracLOPRI >= 1 {
		for i := range lopri {
			lopri[i] = true
		}
		return lopri
	}

	var curLOPRI int64
	for i, c := range info.Children {
		lopri[i] = c.GetCurrentlyLopri()
		if lopri[i] {
			curLOPRI += FlowVolume(c, source)
		}
	}
	total := totalChildVolume(info, source)
	want := int64(wantFracLOPRI * float64(total))
	order := childrenSortedByDecVolume(info, source)

	if curLOPRI < want {
		greedyAssignToMinimizeGap(info, source, order, curLOPRI, want, true, lopri)
	} else {
		greedyAssignToMinimizeGap(info, source, order, total-curLOPRI, total-want, false, lopri)
	}
	return lopri
}

// pickLargestFirst marks children in decreasing volume order while each
// addition brings the marked volume closer to the target.
func pickLargestFirst(info *heyppb.AggInfo, wantFracLOPRI float64, source FVSource) []bool {
	lopri := make([]bool, len(info.Children))
	total := totalChildVolume(info, source)
	want := wantFracLOPRI * float64(total)
	order := childrenSortedByDecVolume(info, source)

	var cum float64
	for _, i := range order {
		next := cum + float64(FlowVolume(info.Children[i], source))
		if absf(want-next) < absf(want-cum) {
			lopri[i] = true
			cum = next
		} else {
			break
		}
	}
	return lopri
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
