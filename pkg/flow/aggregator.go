package flow

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/threads"
)

var aglog = logrus.WithField("component", "flow.Aggregator")

// AggregatorConfig describes one aggregation preset: how a child marker
// projects to its parent, and which children are acceptable.
type AggregatorConfig struct {
	UsageHistoryWindow time.Duration
	GetAggFlow         func(child *heyppb.FlowMarker) *heyppb.FlowMarker
	IsValidChild       func(child *heyppb.FlowMarker) bool
}

type timedInfo struct {
	time time.Time
	info *heyppb.FlowInfo
}

// bundleState tracks the flows reported by one bundler. Flows that
// stop appearing in updates are promoted to dead after the usage
// history window so their final byte counts still reach one snapshot.
type bundleState struct {
	active map[ConnFlowKey]timedInfo
	dead   map[ConnFlowKey]timedInfo
}

type aggWIP struct {
	state *AggState

	// Reset and refilled on every ForEachAgg walk.
	oldestActiveTime time.Time
	newestDeadTime   time.Time
	cumHipriBytes    int64
	cumLopriBytes    int64
	sumEwmaBps       int64
	children         []*heyppb.FlowInfo
}

// FlowAggregator merges InfoBundles from many bundlers into per-parent
// aggregates. Writes and snapshot walks are serialized by a single
// timed mutex, matching the controller's single-writer discipline.
type FlowAggregator struct {
	config    AggregatorConfig
	predictor alg.DemandPredictor

	mu           threads.TimedMutex
	bundleStates map[ConnFlowKey]*bundleState
	aggWIPs      map[ConnFlowKey]*aggWIP
}

func NewFlowAggregator(predictor alg.DemandPredictor, config AggregatorConfig) *FlowAggregator {
	return &FlowAggregator{
		config:       config,
		predictor:    predictor,
		bundleStates: make(map[ConnFlowKey]*bundleState),
		aggWIPs:      make(map[ConnFlowKey]*aggWIP),
	}
}

// NewConnToHostAggregator aggregates connection-level reports into
// host-level parents (used on the host-agent).
func NewConnToHostAggregator(predictor alg.DemandPredictor, usageHistoryWindow time.Duration) *FlowAggregator {
	return NewFlowAggregator(predictor, AggregatorConfig{
		UsageHistoryWindow: usageHistoryWindow,
		GetAggFlow:         ToHostFlow,
		IsValidChild:       IsValidConnChild,
	})
}

// NewHostToClusterAggregator aggregates host-level reports into
// flow-group parents (used on the cluster-agent).
func NewHostToClusterAggregator(predictor alg.DemandPredictor, usageHistoryWindow time.Duration) *FlowAggregator {
	return NewFlowAggregator(predictor, AggregatorConfig{
		UsageHistoryWindow: usageHistoryWindow,
		GetAggFlow:         ToClusterFlow,
		IsValidChild:       IsValidHostChild,
	})
}

// Update ingests one InfoBundle, upserting each flow into the bundler's
// active set and promoting flows that have gone stale to dead.
func (a *FlowAggregator) Update(bundle *heyppb.InfoBundle) {
	timestamp := time.Unix(0, bundle.TimestampUnixNanos)

	a.mu.LockWarn(time.Second, "FlowAggregator.mu")
	defer a.mu.Unlock()

	key := ConnKey(bundle.GetBundler())
	bs := a.bundleStates[key]
	if bs == nil {
		bs = &bundleState{
			active: make(map[ConnFlowKey]timedInfo),
			dead:   make(map[ConnFlowKey]timedInfo),
		}
		a.bundleStates[key] = bs
	}

	for _, fi := range bundle.FlowInfos {
		if a.config.IsValidChild != nil && !a.config.IsValidChild(fi.GetFlow()) {
			aglog.WithField("flow", fi.GetFlow().String()).Warn("dropping invalid child flow")
			continue
		}
		ck := ConnKey(fi.GetFlow())
		if _, ok := bs.active[ck]; !ok {
			delete(bs.dead, ck)
		}
		bs.active[ck] = timedInfo{time: timestamp, info: fi}
	}

	for ck, ti := range bs.active {
		if ti.time.Add(a.config.UsageHistoryWindow).Before(timestamp) {
			bs.dead[ck] = timedInfo{time: timestamp, info: ti.info}
			delete(bs.active, ck)
		}
	}
}

// Remove drops all state contributed by one bundler, typically when its
// stream disconnects for good.
func (a *FlowAggregator) Remove(bundler *heyppb.FlowMarker) {
	a.mu.LockWarn(time.Second, "FlowAggregator.mu")
	defer a.mu.Unlock()
	delete(a.bundleStates, ConnKey(bundler))
}

func (a *FlowAggregator) getAggWIP(child *heyppb.FlowMarker) *aggWIP {
	m := a.config.GetAggFlow(child)
	key := ConnKey(m)
	wip, ok := a.aggWIPs[key]
	if !ok {
		wip = &aggWIP{state: NewAggState(m, false)}
		a.aggWIPs[key] = wip
	}
	return wip
}

// ForEachAgg walks all bundler state, folds it into per-parent
// aggregates, updates each parent's usage state and hands the resulting
// AggInfo to fn.
func (a *FlowAggregator) ForEachAgg(fn func(time.Time, *heyppb.AggInfo)) {
	a.mu.LockWarn(time.Second, "FlowAggregator.mu")
	defer a.mu.Unlock()

	for _, wip := range a.aggWIPs {
		wip.oldestActiveTime = time.Time{}
		wip.newestDeadTime = time.Time{}
		wip.cumHipriBytes = 0
		wip.cumLopriBytes = 0
		wip.sumEwmaBps = 0
		wip.children = wip.children[:0]
	}

	for _, bs := range a.bundleStates {
		for _, ti := range bs.active {
			wip := a.getAggWIP(ti.info.GetFlow())
			if wip.oldestActiveTime.IsZero() || ti.time.Before(wip.oldestActiveTime) {
				wip.oldestActiveTime = ti.time
			}
			wip.cumHipriBytes += ti.info.CumHipriUsageBytes
			wip.cumLopriBytes += ti.info.CumLopriUsageBytes
			wip.sumEwmaBps += int64(ti.info.EwmaUsageBps)
			wip.children = append(wip.children, ti.info)
		}
		for _, ti := range bs.dead {
			wip := a.getAggWIP(ti.info.GetFlow())
			if ti.time.After(wip.newestDeadTime) {
				wip.newestDeadTime = ti.time
			}
			wip.cumHipriBytes += ti.info.CumHipriUsageBytes
			wip.cumLopriBytes += ti.info.CumLopriUsageBytes
		}
	}

	for _, wip := range a.aggWIPs {
		var t time.Time
		switch {
		case !wip.oldestActiveTime.IsZero():
			t = wip.oldestActiveTime
		case !wip.newestDeadTime.IsZero():
			t = wip.newestDeadTime
		default:
			continue // nothing reported for this parent this round
		}

		if err := wip.state.UpdateUsage(AggUpdate{
			Time:               t,
			SumChildUsageBps:   wip.sumEwmaBps,
			CumHipriUsageBytes: wip.cumHipriBytes,
			CumLopriUsageBytes: wip.cumLopriBytes,
		}, a.config.UsageHistoryWindow, a.predictor); err != nil {
			aglog.WithError(err).WithField("flow", wip.state.Flow().String()).
				Error("failed to update aggregate usage")
			continue
		}

		info := &heyppb.AggInfo{Parent: wip.state.Cur()}
		info.Children = append(info.Children, wip.children...)
		fn(t, info)
	}
}
