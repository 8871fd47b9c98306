package clusteragent

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/alg/downgrade"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/threads"
)

var falog = logrus.WithField("component", "clusteragent.FastAggregator")

// InfoGen records the newest generation seen from one host.
type InfoGen struct {
	HostID uint64
	Gen    int64
}

// ChildFlowInfo is the slimmed-down per-child record the fast path
// carries instead of a full FlowInfo.
type ChildFlowInfo struct {
	ChildID        uint64
	VolumeBps      int64
	CurrentlyLopri bool
}

// FastAggInfo is one flow-group snapshot produced by the fast
// aggregator. Parent usage is estimated from the sampled children.
type FastAggInfo struct {
	AggID    int
	Parent   *heyppb.FlowInfo
	Children []ChildFlowInfo
	InfoGen  []InfoGen
}

type fastInfo struct {
	aggID          int
	childID        uint64
	volumeBps      int64
	currentlyLopri bool
}

type infoShard struct {
	infos []fastInfo
	gens  []InfoGen
}

const numInfoShards = 8

// FastAggregator ingests InfoBundles on a sharded lock-free-ish write
// path and aggregates them into per-FG estimates at snapshot time.
// Each shard holds a pair of buffers; an atomic index selects the
// active one, and writers briefly take exclusive ownership by swapping
// the index to -1.
type FastAggregator struct {
	aggFlowToID map[flow.ClusterFlowKey]int
	samplers    []alg.ThresholdSampler
	templates   []*heyppb.FlowMarker

	shards         [numInfoShards][2]infoShard
	activeShardIdx [numInfoShards]atomic.Int32

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewFastAggregator(aggFlowToID map[flow.ClusterFlowKey]int, samplers []alg.ThresholdSampler, rngSeed int64) *FastAggregator {
	templates := make([]*heyppb.FlowMarker, len(aggFlowToID))
	for key, id := range aggFlowToID {
		templates[id] = key.Marker()
	}
	return &FastAggregator{
		aggFlowToID: aggFlowToID,
		samplers:    samplers,
		templates:   templates,
		rng:         rand.New(rand.NewSource(rngSeed)),
	}
}

func (a *FastAggregator) shouldInclude(aggID int, usage float64) bool {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return a.samplers[aggID].ShouldInclude(a.rng, usage)
}

// UpdateInfo records one InfoBundle. Safe to call concurrently with
// itself and with CollectSnapshot.
func (a *FastAggregator) UpdateInfo(info *heyppb.InfoBundle) {
	shard := int(uint(info.GetBundler().GetHostId()) % numInfoShards)

	got := make([]fastInfo, 0, len(info.FlowInfos))
	for _, fi := range info.FlowInfos {
		id, ok := a.aggFlowToID[flow.ClusterKey(fi.GetFlow())]
		if !ok {
			continue
		}
		if !a.shouldInclude(id, fi.EwmaUsageBps) {
			continue
		}
		got = append(got, fastInfo{
			aggID:          id,
			childID:        info.GetBundler().GetHostId(),
			volumeBps:      int64(fi.EwmaUsageBps),
			currentlyLopri: fi.CurrentlyLopri,
		})
	}

	var cur int32
	for {
		cur = a.activeShardIdx[shard].Load()
		if cur < 0 {
			continue // another writer holds the shard, try again
		}
		if a.activeShardIdx[shard].CompareAndSwap(cur, -1) {
			break
		}
	}
	s := &a.shards[shard][cur]
	s.infos = append(s.infos, got...)
	s.gens = append(s.gens, InfoGen{HostID: info.GetBundler().GetHostId(), Gen: info.Generation})
	a.activeShardIdx[shard].Store(cur)
}

type prioEstimators struct {
	hipri alg.AggUsageEstimator
	lopri alg.AggUsageEstimator
}

func (a *FastAggregator) aggregateShard(shard *infoShard, selectors []*downgrade.HashingDowngradeSelector) ([]FastAggInfo, []prioEstimators) {
	aggs := make([]FastAggInfo, len(a.templates))
	ests := make([]prioEstimators, len(a.templates))
	for i := range aggs {
		aggs[i].AggID = i
		ests[i] = prioEstimators{
			hipri: a.samplers[i].NewAggUsageEstimator(),
			lopri: a.samplers[i].NewAggUsageEstimator(),
		}
	}
	for _, info := range shard.infos {
		aggs[info.aggID].Children = append(aggs[info.aggID].Children, ChildFlowInfo{
			ChildID:        info.childID,
			VolumeBps:      info.volumeBps,
			CurrentlyLopri: info.currentlyLopri,
		})
		if selectors[info.aggID].IsLOPRI(info.childID) {
			ests[info.aggID].lopri.RecordSample(float64(info.volumeBps))
		} else {
			ests[info.aggID].hipri.RecordSample(float64(info.volumeBps))
		}
	}
	for _, gen := range shard.gens {
		for i := range aggs {
			aggs[i].InfoGen = append(aggs[i].InfoGen, gen)
		}
	}
	return aggs, ests
}

// CollectSnapshot swaps out every shard's buffer, aggregates them in
// parallel on exec, and combines the per-shard results. Only one
// snapshot may run at a time, but UpdateInfo can proceed concurrently.
func (a *FastAggregator) CollectSnapshot(exec *threads.Executor, selectors []*downgrade.HashingDowngradeSelector) []FastAggInfo {
	var parts [numInfoShards][]FastAggInfo
	var partEsts [numInfoShards][]prioEstimators
	var numInfos atomic.Int64

	group := exec.NewTaskGroup()
	for i := 0; i < numInfoShards; i++ {
		i := i
		group.AddTaskNoStatus(func() {
			var cur int32
			for {
				cur = a.activeShardIdx[i].Load()
				if cur < 0 {
					continue
				}
				next := (cur + 1) % 2
				a.shards[i][next].infos = a.shards[i][next].infos[:0]
				a.shards[i][next].gens = a.shards[i][next].gens[:0]
				if a.activeShardIdx[i].CompareAndSwap(cur, next) {
					break
				}
			}
			shard := &a.shards[i][cur]
			numInfos.Add(int64(len(shard.infos)))
			parts[i], partEsts[i] = a.aggregateShard(shard, selectors)
		})
	}
	_ = group.WaitAll()
	falog.WithField("numInfos", numInfos.Load()).Debug("processed infos from host-agents")

	combined := make([]FastAggInfo, len(a.templates))
	for i := range combined {
		combined[i].AggID = i
		var sumHipriBps, sumLopriBps float64
		for part := 0; part < numInfoShards; part++ {
			combined[i].Children = append(combined[i].Children, parts[part][i].Children...)
			combined[i].InfoGen = append(combined[i].InfoGen, parts[part][i].InfoGen...)
			sumHipriBps += partEsts[part][i].hipri.EstUsage()
			sumLopriBps += partEsts[part][i].lopri.EstUsage()
		}
		combined[i].Parent = &heyppb.FlowInfo{
			Flow:               a.templates[i],
			EwmaUsageBps:       sumHipriBps + sumLopriBps,
			EwmaHipriUsageBps:  sumHipriBps,
			EwmaLopriUsageBps:  sumLopriBps,
			PredictedDemandBps: int64(sumHipriBps + sumLopriBps),
		}
	}
	return combined
}
