package clusteragent

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/alg/downgrade"
	"github.com/heyp-project/heyp-agents/pkg/clusteragent/allocator"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/threads"
)

var fastlog = logrus.WithField("component", "clusteragent.FastController")

// FastControllerConfig tunes the sampling-based controller.
type FastControllerConfig struct {
	TargetNumSamples float64
	NumThreads       int
	// DowngradeFracController enables feedback control of the
	// downgrade fraction; nil computes it from usage vs admission.
	DowngradeFracController *alg.DowngradeFracControllerConfig
	// RngSeed seeds the sampler; 0 picks a fixed default.
	RngSeed int64
}

type fastChildState struct {
	aggIsLopri             []bool
	lisNewBundleFuncs      map[uint64]OnNewBundleFunc
	broadcastedLatestState bool
	genSeen                int64
	sawDataThisRun         bool
}

type fastPerAggState struct {
	downgradeFrac     float64
	ewmaMaxChildUsage float64
	fracController    *alg.DowngradeFracController
}

// FastClusterController downgrades hosts using sampled usage estimates
// and the hashing selector's diffs. It avoids a global state lock on
// the write path: RPC threads only touch the sharded aggregator and
// per-child entries; the control thread owns everything else.
type FastClusterController struct {
	aggFlowToID map[flow.ClusterFlowKey]int
	aggIDToFlow []*heyppb.FlowMarker
	approvalBps []int64

	exec       *threads.Executor
	aggregator *FastAggregator

	aggSelectors []*downgrade.HashingDowngradeSelector
	aggStates    []*fastPerAggState

	nextLisID   atomic.Uint64
	childStates *threads.ParIndexedMap[uint64, fastChildState]

	// host2par is the control thread's private copy of the host-id to
	// ParID mapping; new pairs arrive through newHostIDPairs so
	// UpdateInfo and ComputeAndBroadcast never need a shared lock.
	host2par map[uint64]threads.ParID

	mu             sync.Mutex
	newHostIDPairs [][2]uint64
}

func NewFastClusterController(config FastControllerConfig, clusterWideAllocs *heyppb.AllocBundle) *FastClusterController {
	aggFlowToID := make(map[flow.ClusterFlowKey]int)
	var aggIDToFlow []*heyppb.FlowMarker
	var approvalBps []int64
	var samplers []alg.ThresholdSampler
	for _, a := range clusterWideAllocs.GetFlowAllocs() {
		key := flow.ClusterKey(a.GetFlow())
		aggFlowToID[key] = len(aggIDToFlow)
		aggIDToFlow = append(aggIDToFlow, key.Marker())
		approvalBps = append(approvalBps, a.HipriRateLimitBps)
		samplers = append(samplers, alg.NewThresholdSampler(config.TargetNumSamples, float64(a.HipriRateLimitBps)))
	}

	seed := config.RngSeed
	if seed == 0 {
		seed = 1
	}
	numThreads := config.NumThreads
	if numThreads <= 0 {
		numThreads = 8
	}

	c := &FastClusterController{
		aggFlowToID: aggFlowToID,
		aggIDToFlow: aggIDToFlow,
		approvalBps: approvalBps,
		exec:        threads.NewExecutor(numThreads),
		aggregator:  NewFastAggregator(aggFlowToID, samplers, seed),
		childStates: threads.NewParIndexedMap[uint64, fastChildState](),
		host2par:    make(map[uint64]threads.ParID),
	}
	for range aggIDToFlow {
		c.aggSelectors = append(c.aggSelectors, &downgrade.HashingDowngradeSelector{})
		st := &fastPerAggState{ewmaMaxChildUsage: -1}
		if config.DowngradeFracController != nil {
			st.fracController = alg.NewDowngradeFracController(*config.DowngradeFracController)
		}
		c.aggStates = append(c.aggStates, st)
	}
	if config.DowngradeFracController != nil {
		fastlog.Info("using feedback control for downgrade fraction")
	}
	return c
}

// UpdateInfo pushes one InfoBundle into the sharded aggregator.
func (c *FastClusterController) UpdateInfo(info *heyppb.InfoBundle) {
	c.aggregator.UpdateInfo(info)
}

type fastControllerListener struct {
	parID threads.ParID
	lisID uint64
	c     *FastClusterController
}

func (l *fastControllerListener) Close() {
	if l.c == nil {
		return
	}
	l.c.childStates.OnID(l.parID, func(st *fastChildState) {
		delete(st.lisNewBundleFuncs, l.lisID)
	})
	l.c = nil
}

func (c *FastClusterController) RegisterListener(hostID uint64, fn OnNewBundleFunc) (Listener, error) {
	res, err := c.childStates.GetID(hostID)
	if err != nil {
		return nil, err
	}
	if res.JustCreated {
		c.mu.Lock()
		c.newHostIDPairs = append(c.newHostIDPairs, [2]uint64{hostID, uint64(res.ID)})
		c.mu.Unlock()
	}

	lis := &fastControllerListener{parID: res.ID, lisID: c.nextLisID.Add(1), c: c}
	c.childStates.OnID(res.ID, func(st *fastChildState) {
		if st.lisNewBundleFuncs == nil {
			st.lisNewBundleFuncs = make(map[uint64]OnNewBundleFunc)
		}
		st.lisNewBundleFuncs[lis.lisID] = fn
	})
	return lis, nil
}

// ForEachSelected expands the diff's ranges and points against the
// sorted host-id to ParID mapping.
func ForEachSelected(id2par map[uint64]threads.ParID, sortedIDs []uint64, ids downgrade.UnorderedIds, fn func(uint64, threads.ParID)) {
	for _, r := range ids.Ranges {
		i := sort.Search(len(sortedIDs), func(i int) bool { return sortedIDs[i] >= r.Lo })
		for ; i < len(sortedIDs) && sortedIDs[i] <= r.Hi; i++ {
			fn(sortedIDs[i], id2par[sortedIDs[i]])
		}
	}
	for _, p := range ids.Points {
		if par, ok := id2par[p]; ok {
			fn(p, par)
		}
	}
}

func setAggIsLopri(aggID int, isLopri bool, bitmap *[]bool) {
	for len(*bitmap) <= aggID {
		*bitmap = append(*bitmap, false)
	}
	(*bitmap)[aggID] = isLopri
}

func (c *FastClusterController) makeBroadcastBundle(st *fastChildState) *heyppb.AllocBundle {
	bundle := &heyppb.AllocBundle{}
	for i, fg := range c.aggIDToFlow {
		isLopri := i < len(st.aggIsLopri) && st.aggIsLopri[i]
		alloc := &heyppb.FlowAlloc{Flow: fg}
		if isLopri {
			alloc.LopriRateLimitBps = 100 * (int64(1) << 30)
		} else {
			alloc.HipriRateLimitBps = 100 * (int64(1) << 30)
		}
		bundle.FlowAllocs = append(bundle.FlowAllocs, alloc)
	}
	if st.sawDataThisRun {
		bundle.Generation = st.genSeen
	}
	return bundle
}

func (c *FastClusterController) broadcastStateIfUpdated(st *fastChildState) {
	if st.broadcastedLatestState {
		return
	}
	bundle := c.makeBroadcastBundle(st)
	for _, fn := range st.lisNewBundleFuncs {
		fn(bundle)
	}
	st.broadcastedLatestState = true
}

// ComputeAndBroadcast runs one fast-controller tick: snapshot, per-FG
// downgrade selection in parallel, then broadcast to the affected
// children in parallel chunks.
func (c *FastClusterController) ComputeAndBroadcast() {
	snapInfos := c.aggregator.CollectSnapshot(c.exec, c.aggSelectors)

	c.mu.Lock()
	for _, p := range c.newHostIDPairs {
		c.host2par[p[0]] = threads.ParID(p[1])
	}
	c.newHostIDPairs = c.newHostIDPairs[:0]
	c.mu.Unlock()

	sortedIDs := make([]uint64, 0, len(c.host2par))
	for id := range c.host2par {
		sortedIDs = append(sortedIDs, id)
	}
	sort.Slice(sortedIDs, func(a, b int) bool { return sortedIDs[a] < sortedIDs[b] })

	parIDsToBcast := make([][]threads.ParID, len(snapInfos))
	group := c.exec.NewTaskGroup()
	for aggID := range snapInfos {
		aggID := aggID
		group.AddTaskNoStatus(func() {
			info := &snapInfos[aggID]
			hipriAdmission := c.approvalBps[aggID]
			st := c.aggStates[aggID]

			var fracLopri float64
			if st.fracController != nil {
				const ewmaWeight = 0.3
				var maxChildUsage float64
				for _, child := range info.Children {
					if float64(child.VolumeBps) > maxChildUsage {
						maxChildUsage = float64(child.VolumeBps)
					}
				}
				if st.ewmaMaxChildUsage < 0 {
					st.ewmaMaxChildUsage = maxChildUsage
				} else {
					st.ewmaMaxChildUsage = ewmaWeight*maxChildUsage + (1-ewmaWeight)*st.ewmaMaxChildUsage
				}

				var inc float64
				if info.Parent.EwmaUsageBps < float64(hipriAdmission) {
					inc = -0.2
				} else {
					inc = st.fracController.TrafficFracToDowngrade(
						info.Parent.EwmaHipriUsageBps, info.Parent.EwmaLopriUsageBps,
						hipriAdmission, st.ewmaMaxChildUsage)
				}
				st.downgradeFrac = allocator.ClampFracLOPRI(st.downgradeFrac + inc)
				fracLopri = st.downgradeFrac
			} else {
				lopriBps := info.Parent.EwmaUsageBps - float64(hipriAdmission)
				if lopriBps < 0 {
					lopriBps = 0
				}
				fracLopri = allocator.ClampFracLOPRI(lopriBps / info.Parent.EwmaUsageBps)
			}

			fastlog.WithFields(logrus.Fields{
				"fg":        c.aggIDToFlow[aggID].String(),
				"approval":  hipriAdmission,
				"estUsage":  info.Parent.EwmaUsageBps,
				"samples":   len(info.Children),
				"fracLopri": fracLopri,
			}).Debug("allocating aggregate")

			diff := c.aggSelectors[aggID].PickChildren(fracLopri)

			for _, hg := range info.InfoGen {
				if parID, ok := c.host2par[hg.HostID]; ok {
					gen := hg.Gen
					c.childStates.OnID(parID, func(st *fastChildState) {
						if gen > st.genSeen {
							st.genSeen = gen
						}
						st.sawDataThisRun = true
					})
				}
			}

			flip := func(isLopri bool) func(uint64, threads.ParID) {
				return func(_ uint64, parID threads.ParID) {
					parIDsToBcast[aggID] = append(parIDsToBcast[aggID], parID)
					c.childStates.OnID(parID, func(st *fastChildState) {
						setAggIsLopri(aggID, isLopri, &st.aggIsLopri)
						st.broadcastedLatestState = false
					})
				}
			}
			ForEachSelected(c.host2par, sortedIDs, diff.ToDowngrade, flip(true))
			ForEachSelected(c.host2par, sortedIDs, diff.ToUpgrade, flip(false))
		})
	}
	_ = group.WaitAll()

	const broadcastChunkSize = 512
	group = c.exec.NewTaskGroup()
	for _, parIDs := range parIDsToBcast {
		for start := 0; start < len(parIDs); start += broadcastChunkSize {
			end := start + broadcastChunkSize
			if end > len(parIDs) {
				end = len(parIDs)
			}
			chunk := parIDs[start:end]
			group.AddTaskNoStatus(func() {
				for _, parID := range chunk {
					c.childStates.OnID(parID, c.broadcastStateIfUpdated)
				}
			})
		}
	}
	_ = group.WaitAll()
}
