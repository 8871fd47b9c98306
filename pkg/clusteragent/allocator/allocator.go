// Package allocator implements the per-flow-group allocation
// strategies of the cluster-agent and the fan-out machinery that runs
// them across flow-groups.
package allocator

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/threads"
)

var allog = logrus.WithField("component", "allocator.ClusterAllocator")

// maxChildBandwidthBps is the "unlimited" sentinel: 100 Gbps.
const maxChildBandwidthBps = 100 * (int64(1) << 30)

// DebugState captures the intermediate values of one allocation pass
// for debugging and tests.
type DebugState struct {
	ParentAlloc            *heyppb.FlowAlloc
	Burstiness             float64
	HipriBonus             int64
	LopriBonus             int64
	FracLopriInitial       float64
	FracLopriWithProbing   float64
	FracLopriPostPartition float64
	FracLopriFinal         float64
}

// PerAggAllocator computes allocations for one flow-group aggregate.
// Implementations keep per-FG state across ticks and are not safe for
// concurrent use on the same FG.
type PerAggAllocator interface {
	AllocAgg(now time.Time, info *heyppb.AggInfo, debug *DebugState) ([]*heyppb.FlowAlloc, error)
}

// ClampFracLOPRI forces frac into [0, 1]. The conditions are written
// double-negative so NaN lands on 0.
func ClampFracLOPRI(frac float64) float64 {
	if !(frac >= 0) {
		if frac != 0 {
			allog.WithField("fracLopri", frac).Warn("frac_lopri < 0; clamping to 0")
		}
		return 0
	}
	if !(frac <= 1) {
		allog.WithField("fracLopri", frac).Warn("frac_lopri > 1; clamping to 1")
		return 1
	}
	return frac
}

// ToAdmissionsMap indexes cluster-wide admissions by flow-group.
func ToAdmissionsMap(clusterWideAllocs *heyppb.AllocBundle) map[flow.ClusterFlowKey]*heyppb.FlowAlloc {
	m := make(map[flow.ClusterFlowKey]*heyppb.FlowAlloc)
	for _, a := range clusterWideAllocs.GetFlowAllocs() {
		m[flow.ClusterKey(a.GetFlow())] = a
	}
	return m
}

// AllocSet is the union of per-FG partial allocation lists produced in
// one controller tick.
type AllocSet struct {
	PartialSets [][]*heyppb.FlowAlloc
}

// BundleByHost regroups an AllocSet into one AllocBundle per host.
func BundleByHost(allocs AllocSet) map[uint64]*heyppb.AllocBundle {
	byHost := make(map[uint64]*heyppb.AllocBundle)
	for _, set := range allocs.PartialSets {
		for _, alloc := range set {
			hostID := alloc.GetFlow().GetHostId()
			b, ok := byHost[hostID]
			if !ok {
				b = &heyppb.AllocBundle{}
				byHost[hostID] = b
			}
			b.FlowAllocs = append(b.FlowAllocs, alloc)
		}
	}
	return byHost
}

// ClusterAllocator runs a PerAggAllocator over many flow-groups, in
// parallel across FGs and sequentially per FG.
type ClusterAllocator struct {
	alloc PerAggAllocator
	exec  *threads.Executor

	group  *threads.TaskGroup
	mu     threads.TimedMutex
	allocs AllocSet
}

const numAllocCores = 8

// NewClusterAllocator builds the allocator selected by config.Type.
func NewClusterAllocator(config *heyppb.ClusterAllocatorConfig, clusterWideAllocs *heyppb.AllocBundle, demandMultiplier float64) (*ClusterAllocator, error) {
	var alloc PerAggAllocator
	switch config.GetType() {
	case "NOP":
		alloc = NewNopAllocator()
	case "BWE":
		alloc = NewBweAggAllocator(config, ToAdmissionsMap(clusterWideAllocs))
	case "HEYP_SIGCOMM20":
		alloc = NewHeypSigcomm20Allocator(config, ToAdmissionsMap(clusterWideAllocs), demandMultiplier)
	case "SIMPLE_DOWNGRADE":
		alloc = NewSimpleDowngradeAllocator(config, ToAdmissionsMap(clusterWideAllocs))
	case "FIXED_HOST_PATTERN":
		alloc = NewFixedHostPatternAllocator(config)
	default:
		return nil, fmt.Errorf("allocator: unknown type %q", config.GetType())
	}
	return &ClusterAllocator{alloc: alloc, exec: threads.NewExecutor(numAllocCores)}, nil
}

// Reset discards the previous tick's results and starts a new task
// group.
func (c *ClusterAllocator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = c.exec.NewTaskGroup()
	c.allocs = AllocSet{}
}

// AddInfo schedules allocation for one aggregate.
func (c *ClusterAllocator) AddInfo(now time.Time, info *heyppb.AggInfo) {
	c.group.AddTaskNoStatus(func() {
		var debug DebugState
		allocs, err := c.alloc.AllocAgg(now, info, &debug)
		if err != nil {
			allog.WithError(err).WithField("fg", info.GetParent().GetFlow().String()).
				Error("allocation failed for aggregate")
			return
		}
		c.mu.LockWarn(100*time.Millisecond, "ClusterAllocator.mu")
		c.allocs.PartialSets = append(c.allocs.PartialSets, allocs)
		c.mu.Unlock()
	})
}

// GetAllocs waits for all scheduled aggregates and returns the
// combined result.
func (c *ClusterAllocator) GetAllocs() AllocSet {
	_ = c.group.WaitAll()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocs
}
