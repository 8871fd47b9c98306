package allocator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/alg/downgrade"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var sdlog = logrus.WithField("component", "allocator.SimpleDowngrade")

// SimpleDowngradeAllocator downgrades the overflow above the HIPRI
// admission without congestion inference or probing. HIPRI is throttled
// only when the configured condition holds; otherwise its limit is the
// unlimited sentinel.
type SimpleDowngradeAllocator struct {
	config        *heyppb.ClusterAllocatorConfig
	aggAdmissions map[flow.ClusterFlowKey]*heyppb.FlowAlloc
	// aggSelectors is per aggregate: the hashing variant keeps its
	// ring arc across ticks.
	aggSelectors map[flow.ClusterFlowKey]downgrade.Selector
	fvSource     downgrade.FVSource
	problem      *alg.SingleLinkMaxMinFairnessProblem
}

func NewSimpleDowngradeAllocator(config *heyppb.ClusterAllocatorConfig,
	aggAdmissions map[flow.ClusterFlowKey]*heyppb.FlowAlloc) *SimpleDowngradeAllocator {
	fvSource := downgrade.FVPredictedDemand
	if config.DowngradeUsage {
		fvSource = downgrade.FVUsage
	}
	selectorConfig := downgrade.Config{
		Kind:           config.DowngradeSelector,
		DowngradeJobs:  config.DowngradeJobs,
		DowngradeUsage: config.DowngradeUsage,
	}
	aggSelectors := make(map[flow.ClusterFlowKey]downgrade.Selector, len(aggAdmissions))
	for key := range aggAdmissions {
		aggSelectors[key] = downgrade.NewSelector(selectorConfig)
	}
	return &SimpleDowngradeAllocator{
		config:        config,
		aggAdmissions: aggAdmissions,
		aggSelectors:  aggSelectors,
		fvSource:      fvSource,
		problem:       alg.NewMaxMinFairnessProblem(alg.DefaultMaxMinFairnessOptions()),
	}
}

func (a *SimpleDowngradeAllocator) AllocAgg(now time.Time, info *heyppb.AggInfo, debug *DebugState) ([]*heyppb.FlowAlloc, error) {
	admission, ok := a.aggAdmissions[flow.ClusterKey(info.GetParent().GetFlow())]
	if !ok {
		sdlog.WithField("fg", info.GetParent().GetFlow().String()).Info("no admission for FG")
		return nil, nil
	}

	hipriAdmission := admission.HipriRateLimitBps
	lopriAdmission := admission.LopriRateLimitBps
	debug.ParentAlloc = admission

	volume := downgrade.FlowVolume(info.GetParent(), a.fvSource)
	lopriBps := volume - hipriAdmission
	if lopriBps < 0 {
		lopriBps = 0
	}
	fracLopri := float64(lopriBps) / float64(volume)
	debug.FracLopriInitial = fracLopri
	debug.FracLopriWithProbing = fracLopri

	fracLopri = ClampFracLOPRI(fracLopri)

	debug.Burstiness = 1
	if a.config.EnableBurstiness {
		burstiness := alg.BweBurstinessFactor(info)
		hipriAdmission = int64(float64(hipriAdmission) * burstiness)
		lopriAdmission = int64(float64(lopriAdmission) * burstiness)
		debug.Burstiness = burstiness
	}

	selector := a.aggSelectors[flow.ClusterKey(info.GetParent().GetFlow())]
	var lopriChildren []bool
	if fracLopri > 0 {
		lopriChildren = selector.PickLOPRIChildren(info, fracLopri)
	} else {
		lopriChildren = make([]bool, len(info.Children))
	}

	var hipriDemands, lopriDemands []int64
	var sumHipriDemand, sumLopriDemand float64
	for i, child := range info.Children {
		if lopriChildren[i] {
			lopriDemands = append(lopriDemands, child.PredictedDemandBps)
			sumLopriDemand += float64(child.PredictedDemandBps)
		} else {
			hipriDemands = append(hipriDemands, child.PredictedDemandBps)
			sumHipriDemand += float64(child.PredictedDemandBps)
		}
	}

	fracLopriPostPartition := sumLopriDemand / (sumHipriDemand + sumLopriDemand)
	debug.FracLopriPostPartition = fracLopriPostPartition
	debug.FracLopriFinal = fracLopri
	if fracLopriPostPartition < fracLopri {
		debug.FracLopriFinal = fracLopriPostPartition
	}

	hipriWaterlevel := a.problem.ComputeWaterlevel(hipriAdmission, hipriDemands)
	lopriWaterlevel := a.problem.ComputeWaterlevel(lopriAdmission, lopriDemands)

	var hipriBonus, lopriBonus int64
	if a.config.EnableBonus {
		hipriBonus = alg.EvenlyDistributeExtra(hipriAdmission, hipriDemands, hipriWaterlevel)
		lopriBonus = alg.EvenlyDistributeExtra(lopriAdmission, lopriDemands, lopriWaterlevel)
	}
	debug.HipriBonus = hipriBonus
	debug.LopriBonus = lopriBonus

	throttleHipri := false
	switch a.config.SimpleDowngradeThrottleHipri {
	case heyppb.HipriThrottleCondition_HTC_NEVER:
		// don't throttle
	case heyppb.HipriThrottleCondition_HTC_WHEN_ABOVE_HIPRI_LIMIT:
		throttleHipri = lopriBps > 0
	case heyppb.HipriThrottleCondition_HTC_WHEN_ASSIGNED_LOPRI:
		throttleHipri = len(lopriDemands) > 0
	case heyppb.HipriThrottleCondition_HTC_ALWAYS:
		throttleHipri = true
	default:
		sdlog.WithField("condition", a.config.SimpleDowngradeThrottleHipri).
			Error("unknown HipriThrottleCondition")
	}

	hipriLimit := int64(a.config.OversubFactor * float64(hipriWaterlevel+hipriBonus))
	if !throttleHipri {
		hipriLimit = maxChildBandwidthBps
	}
	lopriLimit := int64(a.config.OversubFactor * float64(lopriWaterlevel+lopriBonus))

	allocs := make([]*heyppb.FlowAlloc, 0, len(info.Children))
	for i, child := range info.Children {
		alloc := &heyppb.FlowAlloc{Flow: child.Flow}
		if lopriChildren[i] {
			alloc.LopriRateLimitBps = lopriLimit
		} else {
			alloc.HipriRateLimitBps = hipriLimit
		}
		allocs = append(allocs, alloc)
	}
	return allocs, nil
}
