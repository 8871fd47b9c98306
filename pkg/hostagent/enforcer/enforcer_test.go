package enforcer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

type fakeTc struct {
	calls []string
}

func (f *fakeTc) Call(args ...string) (string, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	return "", nil
}

type fakeProvider struct{}

func (fakeProvider) ForEachActiveFlow(func(time.Time, *heyppb.FlowInfo)) {}

func testDCMapper() *flow.StaticDCMapper {
	return flow.NewStaticDCMapper(&heyppb.DCMapConfig{
		Entries: []*heyppb.DCMapEntry{
			{HostAddr: "10.1.0.1", Dc: "detroit"},
			{HostAddr: "10.1.0.2", Dc: "detroit"},
		},
	})
}

func fgAlloc(hipri, lopri int64) *heyppb.FlowAlloc {
	return &heyppb.FlowAlloc{
		Flow:              &heyppb.FlowMarker{SrcDc: "chicago", DstDc: "detroit", HostId: 3},
		HipriRateLimitBps: hipri,
		LopriRateLimitBps: lopri,
	}
}

func TestExpandDestIntoHostsSinglePri(t *testing.T) {
	mapper := testDCMapper()

	matched := ExpandDestIntoHostsSinglePri(mapper, fakeProvider{}, fgAlloc(1000, 0))
	require.Len(t, matched.Hipri, 2)
	assert.Empty(t, matched.Lopri)
	assert.Equal(t, "10.1.0.1", matched.Hipri[0].DstAddr)
	assert.Equal(t, "10.1.0.2", matched.Hipri[1].DstAddr)

	matched = ExpandDestIntoHostsSinglePri(mapper, fakeProvider{}, fgAlloc(0, 1000))
	assert.Empty(t, matched.Hipri)
	assert.Len(t, matched.Lopri, 2)

	// Both limits positive is invalid in single-priority mode.
	matched = ExpandDestIntoHostsSinglePri(mapper, fakeProvider{}, fgAlloc(1000, 1000))
	assert.Empty(t, matched.Hipri)
	assert.Empty(t, matched.Lopri)

	// An alloc with a concrete destination is not expanded.
	alloc := fgAlloc(1000, 0)
	alloc.Flow.DstAddr = "10.1.0.9"
	matched = ExpandDestIntoHostsSinglePri(mapper, fakeProvider{}, alloc)
	require.Len(t, matched.Hipri, 1)
	assert.Equal(t, "10.1.0.9", matched.Hipri[0].DstAddr)
}

func newTestEnforcer() (*LinuxHostEnforcer, *fakeTc, *fakeRunner) {
	tc := &fakeTc{}
	runner := &fakeRunner{}
	ipt := NewIptablesController("eth0", nil, runner)
	mapper := testDCMapper()
	match := func(p FlowStateProvider, a *heyppb.FlowAlloc) MatchedHostFlows {
		return ExpandDestIntoHostsSinglePri(mapper, p, a)
	}
	return NewLinuxHostEnforcer("eth0", match, tc, ipt), tc, runner
}

func TestEnforceAllocsCreatesClassThenRules(t *testing.T) {
	e, tc, runner := newTestEnforcer()

	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(8 * 1024 * 1024, 0)},
	})

	require.Len(t, tc.calls, 1)
	assert.Contains(t, tc.calls[0], "class add dev eth0")
	assert.Contains(t, tc.calls[0], "rate 8.000000mbit")

	require.Len(t, runner.restores, 1)
	assert.Contains(t, runner.restores[0], "--set-dscp-class AF41")
	assert.Contains(t, runner.restores[0], "--set-class 1:2")
}

func TestEnforceAllocsDefersRateDecreases(t *testing.T) {
	e, tc, runner := newTestEnforcer()

	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(10 * 1024 * 1024, 0)},
	})
	tcCallsBefore := len(tc.calls)

	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(5 * 1024 * 1024, 0)},
	})

	// The decrease happens in a single change call after the commit.
	require.Len(t, tc.calls, tcCallsBefore+1)
	assert.Contains(t, tc.calls[len(tc.calls)-1], "class change dev eth0")
	assert.Contains(t, tc.calls[len(tc.calls)-1], "rate 5.000000mbit")
	assert.Len(t, runner.restores, 2)
}

func TestEnforceAllocsRaisesImmediately(t *testing.T) {
	e, tc, _ := newTestEnforcer()

	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(5 * 1024 * 1024, 0)},
	})
	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(20 * 1024 * 1024, 0)},
	})

	assert.Contains(t, tc.calls[len(tc.calls)-1], "rate 20.000000mbit")
}

func TestEnforceAllocsSkipsDecreaseOnCommitFailure(t *testing.T) {
	e, tc, runner := newTestEnforcer()

	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(10 * 1024 * 1024, 0)},
	})
	tcCallsBefore := len(tc.calls)

	runner.failNext = true
	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(5 * 1024 * 1024, 0)},
	})

	// No tc change may run when the iptables commit failed.
	assert.Len(t, tc.calls, tcCallsBefore)
}

func TestIsLopriFollowsAppliedRules(t *testing.T) {
	e, _, _ := newTestEnforcer()

	e.EnforceAllocs(fakeProvider{}, &heyppb.AllocBundle{
		FlowAllocs: []*heyppb.FlowAlloc{fgAlloc(0, 5 * 1024 * 1024)},
	})

	assert.True(t, e.IsLopri(&heyppb.FlowMarker{DstAddr: "10.1.0.1"}))
	assert.False(t, e.IsLopri(&heyppb.FlowMarker{DstAddr: "172.16.0.1"}))
}
