// Package sstracker observes outbound TCP flows through the OS socket
// inspector (`ss`), maintains per-flow usage state, and exposes it for
// reporting to the cluster-agent.
package sstracker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/threads"
)

var ftlog = logrus.WithField("component", "sstracker.FlowTracker")

// FlowPri is the QoS a flow was observed (or assumed) to be using.
type FlowPri int

const (
	FlowPriUnset FlowPri = iota
	FlowPriHi
	FlowPriLo
)

// TrackerConfig tunes the flow tracker.
type TrackerConfig struct {
	UsageHistoryWindow time.Duration
	// IgnoreInstantaneousUsage drops ss's own send-rate estimate and
	// derives usage purely from byte deltas.
	IgnoreInstantaneousUsage bool
}

// Update is one measurement for one flow.
type Update struct {
	Flow                  *heyppb.FlowMarker
	InstantaneousUsageBps int64
	CumUsageBytes         int64
	UsedPriority          FlowPri
	Aux                   *heyppb.AuxInfo
}

// FlowTracker maintains the set of active flows on this host. Flows
// move from active to done when the socket inspector reports closure
// (or when a reused tuple restarts its byte counters); done flows are
// retained for one final report.
type FlowTracker struct {
	config    TrackerConfig
	predictor alg.DemandPredictor

	mu          threads.TimedMutex
	nextSeqnum  uint32
	activeFlows map[flow.ConnFlowKey]*flow.LeafState
	doneFlows   []*flow.LeafState
}

func NewFlowTracker(predictor alg.DemandPredictor, config TrackerConfig) *FlowTracker {
	return &FlowTracker{
		config:      config,
		predictor:   predictor,
		activeFlows: make(map[flow.ConnFlowKey]*flow.LeafState),
	}
}

// ForEachActiveFlow calls fn for every active flow.
func (t *FlowTracker) ForEachActiveFlow(fn func(time.Time, *heyppb.FlowInfo)) {
	t.mu.LockWarn(time.Second, "FlowTracker.mu")
	defer t.mu.Unlock()
	for _, state := range t.activeFlows {
		fn(state.UpdatedTime(), state.Cur())
	}
}

// ForEachFlow calls fn for every active and retained done flow.
func (t *FlowTracker) ForEachFlow(fn func(time.Time, *heyppb.FlowInfo)) {
	t.mu.LockWarn(time.Second, "FlowTracker.mu")
	defer t.mu.Unlock()
	for _, state := range t.activeFlows {
		fn(state.UpdatedTime(), state.Cur())
	}
	for _, state := range t.doneFlows {
		fn(state.UpdatedTime(), state.Cur())
	}
}

// DrainDoneFlows returns the flows finalized since the last drain.
func (t *FlowTracker) DrainDoneFlows() []*flow.LeafState {
	t.mu.LockWarn(time.Second, "FlowTracker.mu")
	defer t.mu.Unlock()
	done := t.doneFlows
	t.doneFlows = nil
	return done
}

func (t *FlowTracker) newLeafState(m *heyppb.FlowMarker) *flow.LeafState {
	t.nextSeqnum++
	marker := &heyppb.FlowMarker{}
	*marker = *m
	marker.Seqnum = t.nextSeqnum
	return flow.NewLeafState(marker)
}

// UpdateFlows folds one snapshot of open sockets into the tracker. A
// flow whose byte counter went backwards is finalized and re-inserted
// as a new flow (the tuple was reused).
func (t *FlowTracker) UpdateFlows(timestamp time.Time, updates []Update) {
	t.mu.LockWarn(time.Second, "FlowTracker.mu")
	defer t.mu.Unlock()
	for i := 0; i < len(updates); {
		u := updates[i]
		key := flow.ConnKey(u.Flow)
		state, ok := t.activeFlows[key]
		if !ok {
			ftlog.WithField("flow", u.Flow.String()).Debug("new active flow")
			state = t.newLeafState(u.Flow)
			t.activeFlows[key] = state
		}
		if state.Cur().CumUsageBytes > u.CumUsageBytes {
			// The tuple was reused: finalize the old flow and rerun
			// this update so a fresh state picks it up.
			t.doneFlows = append(t.doneFlows, state)
			delete(t.activeFlows, key)
			continue
		}
		t.applyUpdate(state, timestamp, u, u.UsedPriority == FlowPriLo)
		i++
	}
}

// FinalizeFlows records the last measurement for closed flows and moves
// them to done.
func (t *FlowTracker) FinalizeFlows(timestamp time.Time, updates []Update) {
	t.mu.LockWarn(time.Second, "FlowTracker.mu")
	defer t.mu.Unlock()
	for _, u := range updates {
		key := flow.ConnKey(u.Flow)
		state, ok := t.activeFlows[key]
		if !ok {
			ftlog.WithField("flow", u.Flow.String()).Debug("finalizing flow never seen active")
			state = t.newLeafState(u.Flow)
			t.activeFlows[key] = state
		}
		isLopri := u.UsedPriority == FlowPriLo
		if u.UsedPriority == FlowPriUnset && state.Cur().CurrentlyLopri {
			isLopri = true
		}
		t.applyUpdate(state, timestamp, u, isLopri)
		t.doneFlows = append(t.doneFlows, state)
		delete(t.activeFlows, key)
	}
}

func (t *FlowTracker) applyUpdate(state *flow.LeafState, timestamp time.Time, u Update, isLopri bool) {
	instantaneous := u.InstantaneousUsageBps
	if t.config.IgnoreInstantaneousUsage {
		instantaneous = 0
	}
	if err := state.UpdateUsage(flow.LeafUpdate{
		Time:                  timestamp,
		CumUsageBytes:         u.CumUsageBytes,
		InstantaneousUsageBps: instantaneous,
		IsLopri:               isLopri,
		Aux:                   u.Aux,
	}, t.config.UsageHistoryWindow, t.predictor); err != nil {
		ftlog.WithError(err).WithField("flow", state.Flow().String()).Warn("dropping flow update")
	}
}
