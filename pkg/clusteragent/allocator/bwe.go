package allocator

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var bwelog = logrus.WithField("component", "allocator.Bwe")

// BweAggAllocator waterfills the HIPRI admission over child demands.
// It never grants LOPRI.
type BweAggAllocator struct {
	config        *heyppb.ClusterAllocatorConfig
	aggAdmissions map[flow.ClusterFlowKey]*heyppb.FlowAlloc
	problem       *alg.SingleLinkMaxMinFairnessProblem
}

func NewBweAggAllocator(config *heyppb.ClusterAllocatorConfig, aggAdmissions map[flow.ClusterFlowKey]*heyppb.FlowAlloc) *BweAggAllocator {
	return &BweAggAllocator{
		config:        config,
		aggAdmissions: aggAdmissions,
		problem:       alg.NewMaxMinFairnessProblem(alg.DefaultMaxMinFairnessOptions()),
	}
}

func (a *BweAggAllocator) AllocAgg(now time.Time, info *heyppb.AggInfo, debug *DebugState) ([]*heyppb.FlowAlloc, error) {
	admission, ok := a.aggAdmissions[flow.ClusterKey(info.GetParent().GetFlow())]
	if !ok {
		bwelog.WithField("fg", info.GetParent().GetFlow().String()).Info("no admission for FG")
		return nil, nil
	}
	if admission.LopriRateLimitBps != 0 {
		return nil, fmt.Errorf("BWE allocation is incompatible with QoS downgrade (lopri admission = %d)",
			admission.LopriRateLimitBps)
	}
	clusterAdmission := admission.HipriRateLimitBps
	debug.ParentAlloc = admission

	debug.Burstiness = 1
	if a.config.EnableBurstiness {
		burstiness := alg.BweBurstinessFactor(info)
		clusterAdmission = int64(float64(clusterAdmission) * burstiness)
		debug.Burstiness = burstiness
	}

	demands := make([]int64, 0, len(info.Children))
	for _, child := range info.Children {
		demands = append(demands, child.PredictedDemandBps)
	}

	waterlevel := a.problem.ComputeWaterlevel(clusterAdmission, demands)

	var bonus int64
	if a.config.EnableBonus {
		bonus = alg.EvenlyDistributeExtra(clusterAdmission, demands, waterlevel)
	}
	debug.HipriBonus = bonus

	limit := int64(a.config.OversubFactor * float64(waterlevel+bonus))

	allocs := make([]*heyppb.FlowAlloc, 0, len(info.Children))
	for _, child := range info.Children {
		allocs = append(allocs, &heyppb.FlowAlloc{
			Flow:              child.Flow,
			HipriRateLimitBps: limit,
		})
	}
	return allocs, nil
}
