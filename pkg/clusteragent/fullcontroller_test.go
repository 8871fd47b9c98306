package clusteragent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/clusteragent/allocator"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

func fgDetroit() *heyppb.FlowMarker {
	return &heyppb.FlowMarker{SrcDc: "chicago", DstDc: "detroit"}
}

func newFullController(t *testing.T, hipriAdmission int64) *FullClusterController {
	t.Helper()
	pred, err := alg.NewBweDemandPredictor(time.Minute, 1.0, 0)
	require.NoError(t, err)
	agg := flow.NewHostToClusterAggregator(pred, 2*time.Minute)

	alloc, err := allocator.NewClusterAllocator(
		&heyppb.ClusterAllocatorConfig{Type: "BWE", OversubFactor: 1.0},
		&heyppb.AllocBundle{FlowAllocs: []*heyppb.FlowAlloc{{
			Flow:              fgDetroit(),
			HipriRateLimitBps: hipriAdmission,
		}}},
		1.1)
	require.NoError(t, err)
	return NewFullClusterController(agg, alloc)
}

func hostInfoBundle(hostID uint64, gen int64, ewmaBps float64, demandBps int64) *heyppb.InfoBundle {
	return &heyppb.InfoBundle{
		Bundler:            &heyppb.FlowMarker{HostId: hostID},
		Generation:         gen,
		TimestampUnixNanos: time.Unix(100, 0).UnixNano(),
		FlowInfos: []*heyppb.FlowInfo{{
			Flow:               &heyppb.FlowMarker{SrcDc: "chicago", DstDc: "detroit", HostId: hostID},
			EwmaUsageBps:       ewmaBps,
			PredictedDemandBps: demandBps,
		}},
	}
}

func TestFullControllerBroadcastsPerHostBundles(t *testing.T) {
	c := newFullController(t, 1000)

	got := map[uint64][]*heyppb.AllocBundle{}
	lis1, err := c.RegisterListener(1, func(b *heyppb.AllocBundle) { got[1] = append(got[1], b) })
	require.NoError(t, err)
	defer lis1.Close()
	lis2, err := c.RegisterListener(2, func(b *heyppb.AllocBundle) { got[2] = append(got[2], b) })
	require.NoError(t, err)
	defer lis2.Close()

	c.UpdateInfo(hostInfoBundle(1, 7, 600, 600))
	c.UpdateInfo(hostInfoBundle(2, 3, 900, 900))
	c.ComputeAndBroadcast()

	require.Len(t, got[1], 1)
	require.Len(t, got[2], 1)

	// Exactly one alloc per (host, FG) pair, with the generation
	// echoing the newest InfoBundle from that host.
	require.Len(t, got[1][0].FlowAllocs, 1)
	assert.Equal(t, uint64(1), got[1][0].FlowAllocs[0].Flow.HostId)
	assert.Equal(t, int64(7), got[1][0].Generation)
	assert.Equal(t, int64(3), got[2][0].Generation)

	// The admission (1000) is shared max-min fair between demands 600
	// and 900.
	assert.Equal(t, int64(500), got[1][0].FlowAllocs[0].HipriRateLimitBps)
}

func TestFullControllerListenerCloseStopsDelivery(t *testing.T) {
	c := newFullController(t, 1000)

	count1, count2 := 0, 0
	lis1, err := c.RegisterListener(1, func(*heyppb.AllocBundle) { count1++ })
	require.NoError(t, err)
	_, err = c.RegisterListener(1, func(*heyppb.AllocBundle) { count2++ })
	require.NoError(t, err)

	c.UpdateInfo(hostInfoBundle(1, 1, 500, 500))
	c.ComputeAndBroadcast()
	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)

	lis1.Close()
	c.UpdateInfo(hostInfoBundle(1, 2, 500, 500))
	c.ComputeAndBroadcast()
	assert.Equal(t, 1, count1)
	assert.Equal(t, 2, count2)
}

// The controller's broadcast intent overrides the QoS hosts observe.
func TestFullControllerRewritesCurrentlyLopri(t *testing.T) {
	c := newFullController(t, 1000)
	lastBundles := lastBundleMap{
		1: {FlowAllocs: []*heyppb.FlowAlloc{{
			Flow:              &heyppb.FlowMarker{SrcDc: "chicago", DstDc: "detroit", HostId: 1},
			LopriRateLimitBps: 100,
		}}},
	}
	c.lastAllocBundle.Store(&lastBundles)

	info := hostInfoBundle(1, 1, 500, 500)
	info.FlowInfos[0].CurrentlyLopri = false
	info.FlowInfos[0].EwmaHipriUsageBps = 123
	c.UpdateInfo(info)

	var children []*heyppb.FlowInfo
	c.aggregator.ForEachAgg(func(_ time.Time, agg *heyppb.AggInfo) {
		children = append(children, agg.Children...)
	})
	require.Len(t, children, 1)
	assert.True(t, children[0].CurrentlyLopri)
	assert.Zero(t, children[0].EwmaHipriUsageBps)
	// The caller's bundle must not have been mutated.
	assert.False(t, info.FlowInfos[0].CurrentlyLopri)
}
