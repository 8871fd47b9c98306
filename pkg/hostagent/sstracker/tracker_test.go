package sstracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

func newTestTracker(t *testing.T) *FlowTracker {
	t.Helper()
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	return NewFlowTracker(pred, TrackerConfig{UsageHistoryWindow: 2 * time.Minute})
}

func connMarker(srcPort int32) *heyppb.FlowMarker {
	return &heyppb.FlowMarker{
		HostId:   7,
		SrcAddr:  "10.0.0.1",
		DstAddr:  "10.1.0.1",
		Protocol: heyppb.Protocol_PROTO_TCP,
		SrcPort:  srcPort,
		DstPort:  443,
	}
}

func activeFlows(t *FlowTracker) []*heyppb.FlowInfo {
	var got []*heyppb.FlowInfo
	t.ForEachActiveFlow(func(_ time.Time, fi *heyppb.FlowInfo) { got = append(got, fi) })
	return got
}

func TestFlowTrackerAssignsSeqnums(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Unix(1, 0)
	tr.UpdateFlows(now, []Update{
		{Flow: connMarker(1000), CumUsageBytes: 10, UsedPriority: FlowPriHi},
		{Flow: connMarker(1001), CumUsageBytes: 20, UsedPriority: FlowPriHi},
	})

	flows := activeFlows(tr)
	require.Len(t, flows, 2)
	seqnums := map[uint32]bool{}
	for _, fi := range flows {
		assert.NotZero(t, fi.Flow.Seqnum)
		seqnums[fi.Flow.Seqnum] = true
	}
	assert.Len(t, seqnums, 2)
}

func TestFlowTrackerDetectsReusedTuple(t *testing.T) {
	tr := newTestTracker(t)
	tr.UpdateFlows(time.Unix(1, 0), []Update{
		{Flow: connMarker(1000), CumUsageBytes: 5000, UsedPriority: FlowPriHi},
	})
	// Counter went backwards: must be a brand-new connection on the
	// same tuple.
	tr.UpdateFlows(time.Unix(2, 0), []Update{
		{Flow: connMarker(1000), CumUsageBytes: 100, UsedPriority: FlowPriHi},
	})

	flows := activeFlows(tr)
	require.Len(t, flows, 1)
	assert.Equal(t, int64(100), flows[0].CumUsageBytes)

	done := tr.DrainDoneFlows()
	require.Len(t, done, 1)
	assert.Equal(t, int64(5000), done[0].Cur().CumUsageBytes)
	assert.NotEqual(t, done[0].Flow().Seqnum, flows[0].Flow.Seqnum)
}

func TestFlowTrackerFinalizeMovesToDone(t *testing.T) {
	tr := newTestTracker(t)
	tr.UpdateFlows(time.Unix(1, 0), []Update{
		{Flow: connMarker(1000), CumUsageBytes: 100, UsedPriority: FlowPriLo},
	})
	tr.FinalizeFlows(time.Unix(2, 0), []Update{
		{Flow: connMarker(1000), CumUsageBytes: 300, UsedPriority: FlowPriUnset},
	})

	assert.Empty(t, activeFlows(tr))
	done := tr.DrainDoneFlows()
	require.Len(t, done, 1)
	// The last priority sticks when the final record has none.
	assert.Equal(t, int64(300), done[0].Cur().CumLopriUsageBytes)
	assert.Empty(t, tr.DrainDoneFlows())
}

func TestFlowTrackerQosSplit(t *testing.T) {
	tr := newTestTracker(t)
	tr.UpdateFlows(time.Unix(1, 0), []Update{
		{Flow: connMarker(1000), CumUsageBytes: 100, UsedPriority: FlowPriHi},
	})
	tr.UpdateFlows(time.Unix(2, 0), []Update{
		{Flow: connMarker(1000), CumUsageBytes: 250, UsedPriority: FlowPriLo},
	})

	flows := activeFlows(tr)
	require.Len(t, flows, 1)
	assert.Equal(t, int64(100), flows[0].CumHipriUsageBytes)
	assert.Equal(t, int64(150), flows[0].CumLopriUsageBytes)
	assert.Equal(t, flows[0].CumUsageBytes, flows[0].CumHipriUsageBytes+flows[0].CumLopriUsageBytes)
}
