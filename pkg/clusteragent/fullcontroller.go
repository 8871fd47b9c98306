package clusteragent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/clusteragent/allocator"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/threads"
)

var fclog = logrus.WithField("component", "clusteragent.FullController")

const (
	longBcastLockDur = 50 * time.Millisecond
	longStateLockDur = 100 * time.Millisecond
)

type lastBundleMap = map[uint64]*heyppb.AllocBundle

// FullClusterController runs the complete pipeline every tick:
// aggregator snapshot, per-FG allocation, bundling by host, and
// broadcast to every registered listener.
type FullClusterController struct {
	aggregator *flow.FlowAggregator

	stateMu   threads.TimedMutex
	allocated *allocator.ClusterAllocator

	lastAllocBundle atomic.Pointer[lastBundleMap]

	genMu   sync.Mutex
	hostGen map[uint64]int64

	broadcastMu    threads.TimedMutex
	nextLisID      uint64
	newBundleFuncs map[uint64]map[uint64]OnNewBundleFunc
}

func NewFullClusterController(aggregator *flow.FlowAggregator, alloc *allocator.ClusterAllocator) *FullClusterController {
	c := &FullClusterController{
		aggregator:     aggregator,
		allocated:      alloc,
		hostGen:        make(map[uint64]int64),
		nextLisID:      1,
		newBundleFuncs: make(map[uint64]map[uint64]OnNewBundleFunc),
	}
	empty := lastBundleMap{}
	c.lastAllocBundle.Store(&empty)
	return c
}

// lookupAlloc reports the controller's last broadcast decision for a
// host's flow-group: 0 = HIPRI, 1 = LOPRI, 2 = unknown.
func lookupAlloc(bundles lastBundleMap, hostID uint64, f *heyppb.FlowMarker) int {
	bundle, ok := bundles[hostID]
	if !ok {
		return 2
	}
	for _, alloc := range bundle.FlowAllocs {
		if flow.SameFG(alloc.GetFlow(), f) {
			if alloc.LopriRateLimitBps > 0 {
				return 1
			}
			return 0
		}
	}
	return 2
}

// UpdateInfo rewrites each flow's currently_lopri to match the last
// broadcast intent before aggregation: the host observes DSCP, not
// intent, so its own view is not authoritative.
func (c *FullClusterController) UpdateInfo(info *heyppb.InfoBundle) {
	rewritten := &heyppb.InfoBundle{
		Bundler:            info.Bundler,
		Generation:         info.Generation,
		TimestampUnixNanos: info.TimestampUnixNanos,
	}
	lastBundles := *c.lastAllocBundle.Load()
	hostID := info.GetBundler().GetHostId()
	for _, fi := range info.FlowInfos {
		cp := &heyppb.FlowInfo{}
		*cp = *fi
		// Per-QoS usage is only meaningful at the cluster FG level;
		// reset it in case a host filled it in.
		cp.EwmaHipriUsageBps = 0
		cp.EwmaLopriUsageBps = 0
		switch lookupAlloc(lastBundles, hostID, fi.GetFlow()) {
		case 0:
			cp.CurrentlyLopri = false
		case 1:
			cp.CurrentlyLopri = true
		}
		rewritten.FlowInfos = append(rewritten.FlowInfos, cp)
	}

	c.genMu.Lock()
	if info.Generation > c.hostGen[hostID] {
		c.hostGen[hostID] = info.Generation
	}
	c.genMu.Unlock()

	c.aggregator.Update(rewritten)
}

// RemoveHost drops all aggregator state contributed by one host.
func (c *FullClusterController) RemoveHost(bundler *heyppb.FlowMarker) {
	c.aggregator.Remove(bundler)
}

// ComputeAndBroadcast runs one controller tick. The state lock is held
// for the full allocation computation; the broadcast lock only while
// fanning out the results.
func (c *FullClusterController) ComputeAndBroadcast() {
	c.stateMu.LockWarn(longStateLockDur, "FullClusterController.stateMu")
	c.allocated.Reset()
	c.aggregator.ForEachAgg(func(t time.Time, info *heyppb.AggInfo) {
		c.allocated.AddInfo(t, info)
	})
	allocs := c.allocated.GetAllocs()
	c.stateMu.Unlock()

	bundles := allocator.BundleByHost(allocs)

	c.genMu.Lock()
	for hostID, bundle := range bundles {
		bundle.Generation = c.hostGen[hostID]
	}
	c.genMu.Unlock()

	c.broadcastMu.LockWarn(longBcastLockDur, "FullClusterController.broadcastMu")
	num := 0
	for hostID, bundle := range bundles {
		for _, fn := range c.newBundleFuncs[hostID] {
			fn(bundle)
			num++
		}
	}
	stored := lastBundleMap(bundles)
	c.lastAllocBundle.Store(&stored)
	c.broadcastMu.Unlock()
	fclog.WithFields(logrus.Fields{"hosts": len(bundles), "listeners": num}).Debug("broadcast allocations")
}

type fullControllerListener struct {
	hostID uint64
	lisID  uint64
	c      *FullClusterController
}

func (l *fullControllerListener) Close() {
	if l.c == nil {
		return
	}
	l.c.broadcastMu.LockWarn(longBcastLockDur, "FullClusterController.broadcastMu in Close")
	if funcs, ok := l.c.newBundleFuncs[l.hostID]; ok {
		delete(funcs, l.lisID)
		if len(funcs) == 0 {
			delete(l.c.newBundleFuncs, l.hostID)
		}
	}
	l.c.broadcastMu.Unlock()
	l.c = nil
}

// RegisterListener installs a delivery hook for one host. The hook
// must not block.
func (c *FullClusterController) RegisterListener(hostID uint64, fn OnNewBundleFunc) (Listener, error) {
	c.broadcastMu.LockWarn(longBcastLockDur, "FullClusterController.broadcastMu in RegisterListener")
	defer c.broadcastMu.Unlock()
	lis := &fullControllerListener{hostID: hostID, lisID: c.nextLisID, c: c}
	if c.newBundleFuncs[hostID] == nil {
		c.newBundleFuncs[hostID] = make(map[uint64]OnNewBundleFunc)
	}
	c.newBundleFuncs[hostID][c.nextLisID] = fn
	c.nextLisID++
	return lis, nil
}
