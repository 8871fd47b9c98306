package flow

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

func bundle(hostID uint64, ts time.Time, infos ...*heyppb.FlowInfo) *heyppb.InfoBundle {
	return &heyppb.InfoBundle{
		Bundler:            &heyppb.FlowMarker{HostId: hostID},
		FlowInfos:          infos,
		TimestampUnixNanos: ts.UnixNano(),
	}
}

func hostInfo(hostID uint64, dstDC string, ewmaBps float64, cumHipri, cumLopri int64) *heyppb.FlowInfo {
	return &heyppb.FlowInfo{
		Flow:               &heyppb.FlowMarker{SrcDc: "chicago", DstDc: dstDC, HostId: hostID},
		EwmaUsageBps:       ewmaBps,
		CumHipriUsageBytes: cumHipri,
		CumLopriUsageBytes: cumLopri,
		CumUsageBytes:      cumHipri + cumLopri,
		PredictedDemandBps: int64(ewmaBps),
	}
}

func collectAggs(a *FlowAggregator) map[ClusterFlowKey]*heyppb.AggInfo {
	got := map[ClusterFlowKey]*heyppb.AggInfo{}
	a.ForEachAgg(func(_ time.Time, info *heyppb.AggInfo) {
		got[ClusterKey(info.Parent.Flow)] = info
	})
	return got
}

func TestHostToClusterAggregatorSumsChildren(t *testing.T) {
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	agg := NewHostToClusterAggregator(pred, 2*time.Minute)

	t0 := time.Unix(100, 0)
	agg.Update(bundle(1, t0, hostInfo(1, "detroit", 1000, 500, 0)))
	agg.Update(bundle(2, t0, hostInfo(2, "detroit", 3000, 900, 100)))
	agg.Update(bundle(3, t0, hostInfo(3, "new_york", 700, 70, 0)))

	got := collectAggs(agg)
	require.Len(t, got, 2)

	det := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "detroit"}]
	require.NotNil(t, det)
	assert.Len(t, det.Children, 2)
	assert.Equal(t, int64(1400), det.Parent.CumHipriUsageBytes)
	assert.Equal(t, int64(100), det.Parent.CumLopriUsageBytes)
	assert.Equal(t, 4000.0, det.Parent.EwmaUsageBps)

	ny := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "new_york"}]
	require.NotNil(t, ny)
	assert.Len(t, ny.Children, 1)
}

func TestAggregatorDropsInvalidChildren(t *testing.T) {
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	agg := NewHostToClusterAggregator(pred, 2*time.Minute)

	t0 := time.Unix(100, 0)
	missingHost := &heyppb.FlowInfo{Flow: &heyppb.FlowMarker{SrcDc: "chicago", DstDc: "detroit"}}
	agg.Update(bundle(1, t0, missingHost, hostInfo(1, "detroit", 100, 10, 0)))

	got := collectAggs(agg)
	require.Len(t, got, 1)
	det := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "detroit"}]
	assert.Len(t, det.Children, 1)
}

func TestAggregatorPromotesStaleFlowsToDead(t *testing.T) {
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	window := 30 * time.Second
	agg := NewFlowAggregator(pred, AggregatorConfig{
		UsageHistoryWindow: window,
		GetAggFlow:         ToClusterFlow,
		IsValidChild:       IsValidHostChild,
	})

	t0 := time.Unix(100, 0)
	agg.Update(bundle(1, t0,
		hostInfo(1, "detroit", 1000, 400, 0),
		hostInfo(1, "new_york", 500, 200, 0)))

	// Only the detroit flow keeps reporting; the other goes stale.
	t1 := t0.Add(window + time.Second)
	agg.Update(bundle(1, t1, hostInfo(1, "detroit", 1000, 800, 0)))

	got := collectAggs(agg)
	det := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "detroit"}]
	require.NotNil(t, det)
	assert.Len(t, det.Children, 1)

	// The dead flow's final bytes still count toward its aggregate,
	// but it no longer appears as an active child.
	ny := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "new_york"}]
	require.NotNil(t, ny)
	assert.Empty(t, ny.Children)
	assert.Equal(t, int64(200), ny.Parent.CumHipriUsageBytes)
}

func TestAggregatorMultipleBundlersOneFG(t *testing.T) {
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	agg := NewHostToClusterAggregator(pred, 2*time.Minute)

	t0 := time.Unix(50, 0)
	for id := uint64(1); id <= 5; id++ {
		agg.Update(bundle(id, t0, hostInfo(id, "detroit", float64(100*id), int64(10*id), 0)))
	}

	got := collectAggs(agg)
	det := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "detroit"}]
	require.NotNil(t, det)
	require.Len(t, det.Children, 5)

	ids := make([]uint64, 0, 5)
	for _, c := range det.Children {
		ids = append(ids, c.Flow.HostId)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ids)
	assert.Equal(t, 1500.0, det.Parent.EwmaUsageBps)
}

func TestAggregatorRemoveDropsBundlerState(t *testing.T) {
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	agg := NewHostToClusterAggregator(pred, 2*time.Minute)

	t0 := time.Unix(100, 0)
	agg.Update(bundle(1, t0, hostInfo(1, "detroit", 1000, 400, 0)))
	agg.Remove(&heyppb.FlowMarker{HostId: 1})

	got := collectAggs(agg)
	det, ok := got[ClusterFlowKey{SrcDC: "chicago", DstDC: "detroit"}]
	if ok {
		assert.Empty(t, det.Children)
	}
}
