package allocator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/alg/downgrade"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var heyplog = logrus.WithField("component", "allocator.HeypSigcomm20")

type heypPerAggState struct {
	alloc                  heyppb.FlowAlloc
	fracLopri              float64
	fracLopriWithProbing   float64
	lastTime               time.Time
	lastCumHipriUsageBytes int64
	lastCumLopriUsageBytes int64
	// selector is per aggregate: the hashing variant keeps its ring
	// arc across ticks.
	selector downgrade.Selector
}

// maybeReviseLOPRIAdmission infers LOPRI congestion from the measured
// HIPRI/LOPRI byte ratio. If we tried to send a fraction f of traffic
// as LOPRI but the measured split fell clearly short, LOPRI is
// congested and its limit is lowered to the measured LOPRI rate. The
// limit is never raised here; underestimated demand says nothing about
// congestion.
func maybeReviseLOPRIAdmission(acceptableRatio float64, now time.Time, parent *heyppb.FlowInfo, st *heypPerAggState) int64 {
	if !now.After(st.lastTime) {
		heyplog.WithFields(logrus.Fields{"now": now, "lastTime": st.lastTime}).
			Warn("current time needs to be after last time")
		return st.alloc.LopriRateLimitBps
	}
	if st.alloc.HipriRateLimitBps <= 0 || st.fracLopri <= 0 {
		return st.alloc.LopriRateLimitBps
	}
	hipriUsageBytes := float64(parent.CumHipriUsageBytes - st.lastCumHipriUsageBytes)
	lopriUsageBytes := float64(parent.CumLopriUsageBytes - st.lastCumLopriUsageBytes)
	if hipriUsageBytes == 0 {
		heyplog.WithField("fg", parent.GetFlow().String()).Info("no HIPRI usage")
		return st.alloc.LopriRateLimitBps
	}

	measuredRatioOverIntended := lopriUsageBytes * (1 - st.fracLopri) / (hipriUsageBytes * st.fracLopri)
	if measuredRatioOverIntended >= acceptableRatio {
		return st.alloc.LopriRateLimitBps
	}

	elapsedSec := now.Sub(st.lastTime).Seconds()
	lopriUsageBps := int64(8 * lopriUsageBytes / elapsedSec)

	// Rate limiting is not perfect; avoid increasing the LOPRI limit.
	newLopriLimit := lopriUsageBps
	if st.alloc.LopriRateLimitBps < newLopriLimit {
		newLopriLimit = st.alloc.LopriRateLimitBps
	}
	heyplog.WithFields(logrus.Fields{
		"fg":            parent.GetFlow().String(),
		"measuredRatio": measuredRatioOverIntended,
		"oldLopriLimit": st.alloc.LopriRateLimitBps,
		"newLopriLimit": newLopriLimit,
	}).Info("inferred LOPRI congestion; lowering LOPRI limit")
	return newLopriLimit
}

// HeypSigcomm20Allocator splits each flow-group's traffic across HIPRI
// and LOPRI: congestion inference revises the LOPRI admission, the
// overflow fraction picks LOPRI children, and both priorities are
// waterfilled independently.
type HeypSigcomm20Allocator struct {
	config           *heyppb.ClusterAllocatorConfig
	demandMultiplier float64
	aggStates        map[flow.ClusterFlowKey]*heypPerAggState
	problem          *alg.SingleLinkMaxMinFairnessProblem
}

func NewHeypSigcomm20Allocator(config *heyppb.ClusterAllocatorConfig,
	aggAdmissions map[flow.ClusterFlowKey]*heyppb.FlowAlloc, demandMultiplier float64) *HeypSigcomm20Allocator {
	a := &HeypSigcomm20Allocator{
		config:           config,
		demandMultiplier: demandMultiplier,
		aggStates:        make(map[flow.ClusterFlowKey]*heypPerAggState),
		problem:          alg.NewMaxMinFairnessProblem(alg.DefaultMaxMinFairnessOptions()),
	}
	selectorConfig := downgrade.Config{
		Kind:           config.DowngradeSelector,
		DowngradeJobs:  config.DowngradeJobs,
		DowngradeUsage: config.DowngradeUsage,
	}
	for key, admission := range aggAdmissions {
		a.aggStates[key] = &heypPerAggState{
			alloc:    *admission,
			selector: downgrade.NewSelector(selectorConfig),
		}
	}
	return a
}

func (a *HeypSigcomm20Allocator) AllocAgg(now time.Time, info *heyppb.AggInfo, debug *DebugState) ([]*heyppb.FlowAlloc, error) {
	st, ok := a.aggStates[flow.ClusterKey(info.GetParent().GetFlow())]
	if !ok {
		heyplog.WithField("fg", info.GetParent().GetFlow().String()).Info("no admission for FG")
		return nil, nil
	}

	st.alloc.LopriRateLimitBps = maybeReviseLOPRIAdmission(
		a.config.AcceptableMeasuredRatioOverIntendedRatio, now, info.GetParent(), st)

	st.lastTime = now
	st.lastCumHipriUsageBytes = info.GetParent().CumHipriUsageBytes
	st.lastCumLopriUsageBytes = info.GetParent().CumLopriUsageBytes

	hipriAdmission := st.alloc.HipriRateLimitBps
	lopriAdmission := st.alloc.LopriRateLimitBps

	parentAlloc := st.alloc
	debug.ParentAlloc = &parentAlloc

	st.fracLopri = downgrade.FracAdmittedAtLOPRI(info.GetParent(), downgrade.FVPredictedDemand, hipriAdmission, lopriAdmission)
	if a.config.HeypProbeLopriWhenAmbiguous {
		st.fracLopriWithProbing = downgrade.FracAdmittedAtLOPRIToProbe(
			info, downgrade.FVPredictedDemand, hipriAdmission, lopriAdmission, a.demandMultiplier, st.fracLopri)
	} else {
		st.fracLopriWithProbing = st.fracLopri
	}
	debug.FracLopriInitial = st.fracLopri
	debug.FracLopriWithProbing = st.fracLopriWithProbing

	st.fracLopriWithProbing = ClampFracLOPRI(st.fracLopriWithProbing)

	// Burstiness matters both for selecting children and for the rate
	// limits they get.
	debug.Burstiness = 1
	if a.config.EnableBurstiness {
		burstiness := alg.BweBurstinessFactor(info)
		hipriAdmission = int64(float64(hipriAdmission) * burstiness)
		lopriAdmission = int64(float64(lopriAdmission) * burstiness)
		debug.Burstiness = burstiness
	}

	lopriChildren := st.selector.PickLOPRIChildren(info, st.fracLopriWithProbing)

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
	if fracLopriPostPartition < st.fracLopri {
		// We could not put as much demand on LOPRI as intended. Record
		// the achieved fraction so the next tick's congestion
		// inference does not over-react.
		st.fracLopri = fracLopriPostPartition
	}
	debug.FracLopriPostPartition = fracLopriPostPartition
	debug.FracLopriFinal = st.fracLopri

	hipriWaterlevel := a.problem.ComputeWaterlevel(hipriAdmission, hipriDemands)
	lopriWaterlevel := a.problem.ComputeWaterlevel(lopriAdmission, lopriDemands)

	var hipriBonus, lopriBonus int64
	if a.config.EnableBonus {
		hipriBonus = alg.EvenlyDistributeExtra(hipriAdmission, hipriDemands, hipriWaterlevel)
		lopriBonus = alg.EvenlyDistributeExtra(lopriAdmission, lopriDemands, lopriWaterlevel)
	}
	debug.HipriBonus = hipriBonus
	debug.LopriBonus = lopriBonus

	hipriLimit := int64(a.config.OversubFactor * float64(hipriWaterlevel+hipriBonus))
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
