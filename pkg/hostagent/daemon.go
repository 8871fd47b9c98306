// Package hostagent wires the per-host pieces together: the socket
// inspector feeds the flow tracker, an info sender streams usage to the
// cluster-agent, and an enforcer applies the allocations that come
// back.
package hostagent

import (
	"context"
	"io"
	"time"

	"github.com/netobserv/gopipes/pkg/node"
	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/hostagent/enforcer"
	"github.com/heyp-project/heyp-agents/pkg/hostagent/sstracker"
)

var dlog = logrus.WithField("component", "hostagent.Daemon")

// HostDaemon runs the host-agent's long-lived loops against one
// established stream to the cluster-agent.
type HostDaemon struct {
	config   Config
	tracker  *sstracker.FlowTracker
	reporter *sstracker.SSFlowStateReporter
	enforcer enforcer.HostEnforcer
	dcMapper *flow.StaticDCMapper
	stream   heyppb.ClusterAgent_RegisterHostClient

	gen int64
}

func NewHostDaemon(config Config, tracker *sstracker.FlowTracker, reporter *sstracker.SSFlowStateReporter,
	hostEnforcer enforcer.HostEnforcer, dcMapper *flow.StaticDCMapper,
	stream heyppb.ClusterAgent_RegisterHostClient) *HostDaemon {
	return &HostDaemon{
		config:   config,
		tracker:  tracker,
		reporter: reporter,
		enforcer: hostEnforcer,
		dcMapper: dcMapper,
		stream:   stream,
	}
}

// Run blocks until ctx is canceled or the stream dies. It owns four
// loops: the closed-socket monitor, the open-socket poller, the info
// sender pipeline and the alloc reader.
func (d *HostDaemon) Run(ctx context.Context) error {
	dlog.Info("starting host daemon")

	go d.reporter.MonitorDone(ctx)
	go d.pollSockets(ctx)

	collect := node.AsInit(d.collectInfoBundles(ctx))
	send := node.AsTerminal(d.sendInfoBundles)
	collect.SendsTo(send)
	collect.Start()

	err := d.readAllocs(ctx)

	<-send.Done()
	dlog.Info("host daemon stopped")
	return err
}

func (d *HostDaemon) pollSockets(ctx context.Context) {
	ticker := time.NewTicker(d.config.SnapshotPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.reporter.ReportState(ctx, d.enforcer.IsLopri); err != nil {
				dlog.WithError(err).Warn("failed to poll open sockets")
			}
		}
	}
}

// markedFlow fills in the flow-group coordinates the raw socket tuple
// lacks.
func (d *HostDaemon) markedFlow(m *heyppb.FlowMarker) *heyppb.FlowMarker {
	out := &heyppb.FlowMarker{}
	*out = *m
	out.Job = d.config.Job
	out.SrcDc = d.config.SrcDC
	if out.SrcDc == "" {
		out.SrcDc = d.dcMapper.HostDC(m.SrcAddr)
	}
	out.DstDc = d.dcMapper.HostDC(m.DstAddr)
	return out
}

func (d *HostDaemon) makeInfoBundle() *heyppb.InfoBundle {
	d.gen++
	bundle := &heyppb.InfoBundle{
		Bundler:            &heyppb.FlowMarker{HostId: d.config.HostID, SrcDc: d.config.SrcDC},
		Generation:         d.gen,
		TimestampUnixNanos: time.Now().UnixNano(),
	}
	seen := map[flow.HostFlowKey]*heyppb.FlowInfo{}
	addInfo := func(_ time.Time, fi *heyppb.FlowInfo) {
		marked := d.markedFlow(fi.GetFlow())
		if marked.DstDc == "" {
			dlog.WithField("flow", fi.GetFlow().String()).Debug("skipping flow with unknown destination DC")
			return
		}
		key := flow.HostKey(marked)
		agg, ok := seen[key]
		if !ok {
			agg = &heyppb.FlowInfo{Flow: flow.ToHostFlow(marked)}
			seen[key] = agg
			bundle.FlowInfos = append(bundle.FlowInfos, agg)
		}
		agg.CumUsageBytes += fi.CumUsageBytes
		agg.CumHipriUsageBytes += fi.CumHipriUsageBytes
		agg.CumLopriUsageBytes += fi.CumLopriUsageBytes
		agg.EwmaUsageBps += fi.EwmaUsageBps
		agg.PredictedDemandBps += fi.PredictedDemandBps
		agg.CurrentlyLopri = agg.CurrentlyLopri || fi.CurrentlyLopri
	}
	d.tracker.ForEachActiveFlow(addInfo)
	for _, done := range d.tracker.DrainDoneFlows() {
		addInfo(done.UpdatedTime(), done.Cur())
	}
	return bundle
}

func (d *HostDaemon) collectInfoBundles(ctx context.Context) func(out chan<- *heyppb.InfoBundle) {
	return func(out chan<- *heyppb.InfoBundle) {
		ticker := time.NewTicker(d.config.InformPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				out <- d.makeInfoBundle()
			}
		}
	}
}

func (d *HostDaemon) sendInfoBundles(in <-chan *heyppb.InfoBundle) {
	for bundle := range in {
		if err := d.stream.Send(bundle); err != nil {
			dlog.WithError(err).Warn("failed to send info bundle")
			return
		}
	}
	if err := d.stream.CloseSend(); err != nil {
		dlog.WithError(err).Warn("failed to close info stream")
	}
}

func (d *HostDaemon) readAllocs(ctx context.Context) error {
	for {
		bundle, err := d.stream.Recv()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		dlog.WithField("numAllocs", len(bundle.FlowAllocs)).Debug("applying alloc bundle")
		d.enforcer.EnforceAllocs(d.tracker, bundle)
	}
}
