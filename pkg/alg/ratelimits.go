package alg

import (
	"fmt"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// RateLimits is the (HIPRI, LOPRI) rate-limit pair handed to one child.
type RateLimits struct {
	HipriLimitBps int64
	LopriLimitBps int64
}

func (l RateLimits) String() string {
	return fmt.Sprintf("(%d, %d)", l.HipriLimitBps, l.LopriLimitBps)
}

// BweBurstinessFactor computes the burstiness of a flow-group: the
// ratio of summed child demand to the parent demand. The value is
// higher the less correlated host bursts are, and is used to scale an
// admission so hosts can burst at separate times while the aggregate
// still obeys the admission.
func BweBurstinessFactor(info *heyppb.AggInfo) float64 {
	parentDemandBps := float64(info.GetParent().GetPredictedDemandBps())
	var sumChildDemandBps float64
	for _, c := range info.GetChildren() {
		sumChildDemandBps += float64(c.GetPredictedDemandBps())
	}

	if parentDemandBps == 0 || sumChildDemandBps == 0 {
		return 1
	}
	if sumChildDemandBps < parentDemandBps {
		// Usage is measured two ways (one-shot window average vs EWMA
		// over fine-grained samples), so the parent can legitimately
		// report more demand than the sum of its children. Handle it
		// here rather than forcing the measurements to agree.
		return 1
	}
	return sumChildDemandBps / parentDemandBps
}

// EvenlyDistributeExtra computes how much extra bandwidth each child
// can receive if the admission left over after the waterlevel fill is
// split evenly.
func EvenlyDistributeExtra(admission int64, demands []int64, waterlevel int64) int64 {
	if len(demands) == 0 {
		return admission
	}
	for _, d := range demands {
		if d < waterlevel {
			admission -= d
		} else {
			admission -= waterlevel
		}
	}
	if admission < 0 {
		admission = 0
	}
	return admission / int64(len(demands))
}
