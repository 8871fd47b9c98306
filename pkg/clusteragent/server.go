package clusteragent

import (
	"sync"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/peer"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var srvlog = logrus.WithField("component", "clusteragent.Service")

// ClusterAgentService serves the single bidirectional stream host
// agents connect to. Each stream gets a reactor that feeds InfoBundles
// to the controller and writes back the newest AllocBundle, coalescing
// so at most one write is in flight per host.
type ClusterAgentService struct {
	heyppb.UnimplementedClusterAgentServer
	controller ClusterController

	infoRate  *ratecounter.RateCounter
	infoCount prometheus.Counter
	bcastSent prometheus.Counter
}

func NewClusterAgentService(controller ClusterController, reg prometheus.Registerer) *ClusterAgentService {
	s := &ClusterAgentService{
		controller: controller,
		infoRate:   ratecounter.NewRateCounter(time.Minute),
		infoCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heyp_info_bundles_total",
			Help: "InfoBundles received from host-agents.",
		}),
		bcastSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heyp_alloc_bundles_sent_total",
			Help: "AllocBundles written to host-agents.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.infoCount, s.bcastSent)
	}
	return s
}

// InfoRatePerMinute reports the recent InfoBundle arrival rate.
func (s *ClusterAgentService) InfoRatePerMinute() int64 {
	return s.infoRate.Rate()
}

// hostReactor holds one stream's write state. Only the newest staged
// bundle survives: staging while a write is in flight replaces any
// bundle that was never written.
type hostReactor struct {
	service *ClusterAgentService
	stream  heyppb.ClusterAgent_RegisterHostServer
	peer    string

	mu        sync.Mutex
	cond      *sync.Cond
	staged    *heyppb.AllocBundle
	hasStaged bool
	finished  bool
}

func newHostReactor(service *ClusterAgentService, stream heyppb.ClusterAgent_RegisterHostServer, peer string) *hostReactor {
	r := &hostReactor{service: service, stream: stream, peer: peer}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// updateAlloc stages a bundle for delivery. It never blocks on the
// stream.
func (r *hostReactor) updateAlloc(bundle *heyppb.AllocBundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.staged = bundle
	r.hasStaged = true
	r.cond.Signal()
}

// finish stops the writer once the final staged bundle (if any) has
// been written.
func (r *hostReactor) finish() {
	r.mu.Lock()
	r.finished = true
	r.cond.Signal()
	r.mu.Unlock()
}

// writeLoop writes staged bundles one at a time. At most one write is
// in flight; bundles staged meanwhile coalesce into the newest one.
func (r *hostReactor) writeLoop() {
	r.mu.Lock()
	for {
		for !r.hasStaged && !r.finished {
			r.cond.Wait()
		}
		if !r.hasStaged {
			break // finished with nothing left to send
		}
		bundle := r.staged
		r.hasStaged = false
		r.mu.Unlock()

		err := r.stream.Send(bundle)
		if err != nil {
			srvlog.WithError(err).WithField("peer", r.peer).Error("write failed")
		} else {
			r.service.bcastSent.Inc()
			srvlog.WithFields(logrus.Fields{
				"peer":      r.peer,
				"numAllocs": len(bundle.FlowAllocs),
			}).Debug("sent allocs")
		}

		r.mu.Lock()
		if err != nil {
			r.finished = true
			break
		}
	}
	r.mu.Unlock()
}

// RegisterHost implements the bidirectional stream. The read loop
// registers a listener on the first bundle and forwards every bundle to
// the controller; the write loop runs until the stream dies.
func (s *ClusterAgentService) RegisterHost(stream heyppb.ClusterAgent_RegisterHostServer) error {
	peerAddr := "unknown"
	if p, ok := peer.FromContext(stream.Context()); ok {
		peerAddr = p.Addr.String()
	}
	srvlog.WithField("peer", peerAddr).Info("new connection")

	reactor := newHostReactor(s, stream, peerAddr)
	var writeWG sync.WaitGroup
	writeWG.Add(1)
	go func() {
		defer writeWG.Done()
		reactor.writeLoop()
	}()

	var lis Listener
	defer func() {
		if lis != nil {
			lis.Close()
		}
		reactor.finish()
		writeWG.Wait()
		srvlog.WithField("peer", peerAddr).Info("connection closed")
	}()

	for {
		info, err := stream.Recv()
		if err != nil {
			// The client reconnects on its own; just reclaim the
			// listener.
			srvlog.WithError(err).WithField("peer", peerAddr).Info("stream read finished")
			return nil
		}
		s.infoCount.Inc()
		s.infoRate.Incr(1)
		srvlog.WithFields(logrus.Fields{
			"peer":   peerAddr,
			"numFGs": len(info.FlowInfos),
			"hostID": info.GetBundler().GetHostId(),
		}).Debug("got info")

		if lis == nil {
			lis, err = s.controller.RegisterListener(info.GetBundler().GetHostId(), reactor.updateAlloc)
			if err != nil {
				srvlog.WithError(err).WithField("peer", peerAddr).Error("failed to register listener")
				return err
			}
		}
		s.controller.UpdateInfo(info)
	}
}
