package allocator

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var fhplog = logrus.WithField("component", "allocator.FixedHostPattern")

// snapshotHostIter walks a snapshot's run-length-encoded
// (num_hosts, alloc) pairs, returning one alloc per call.
type snapshotHostIter struct {
	snapshot      *heyppb.FixedClusterHostAllocs_Snapshot
	pairIndex     int
	pairRemaining int32
}

func newSnapshotHostIter(snapshot *heyppb.FixedClusterHostAllocs_Snapshot) *snapshotHostIter {
	it := &snapshotHostIter{snapshot: snapshot}
	if len(snapshot.HostAllocs) > 0 {
		it.pairRemaining = snapshot.HostAllocs[0].NumHosts
	}
	return it
}

func (it *snapshotHostIter) Next() *heyppb.FlowAlloc {
	for it.pairIndex < len(it.snapshot.HostAllocs) {
		if it.pairRemaining > 0 {
			it.pairRemaining--
			return it.snapshot.HostAllocs[it.pairIndex].Alloc
		}
		it.pairIndex++
		if it.pairIndex < len(it.snapshot.HostAllocs) {
			it.pairRemaining = it.snapshot.HostAllocs[it.pairIndex].NumHosts
		}
	}
	return &heyppb.FlowAlloc{}
}

// FixedHostPatternAllocator replays scripted allocations: each tick
// hands out the next snapshot in a per-FG cyclic list. Integration
// tests use it to inject known-good sequences.
type FixedHostPatternAllocator struct {
	allocPatterns map[flow.ClusterFlowKey]*heyppb.FixedClusterHostAllocs
	next          int
}

func NewFixedHostPatternAllocator(config *heyppb.ClusterAllocatorConfig) *FixedHostPatternAllocator {
	patterns := make(map[flow.ClusterFlowKey]*heyppb.FixedClusterHostAllocs)
	for _, p := range config.FixedHostAllocPatterns {
		patterns[flow.ClusterKey(p.GetCluster())] = p
	}
	return &FixedHostPatternAllocator{allocPatterns: patterns}
}

func (a *FixedHostPatternAllocator) AllocAgg(now time.Time, info *heyppb.AggInfo, _ *DebugState) ([]*heyppb.FlowAlloc, error) {
	pattern, ok := a.allocPatterns[flow.ClusterKey(info.GetParent().GetFlow())]
	if !ok {
		fhplog.WithField("fg", info.GetParent().GetFlow().String()).Info("no admission for FG")
		return nil, nil
	}
	if len(pattern.Snapshots) == 0 {
		return nil, nil
	}

	fhplog.WithFields(logrus.Fields{"time": now, "step": a.next}).Debug("allocating from pattern")
	snapshot := pattern.Snapshots[a.next%len(pattern.Snapshots)]
	a.next++

	it := newSnapshotHostIter(snapshot)
	allocs := make([]*heyppb.FlowAlloc, 0, len(info.Children))
	for _, child := range info.Children {
		alloc := &heyppb.FlowAlloc{}
		if next := it.Next(); next != nil {
			alloc.HipriRateLimitBps = next.HipriRateLimitBps
			alloc.LopriRateLimitBps = next.LopriRateLimitBps
		}
		alloc.Flow = child.Flow
		allocs = append(allocs, alloc)
	}
	return allocs, nil
}
