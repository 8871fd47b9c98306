// Package clusteragent hosts the cluster-side control plane: the
// controllers that turn host reports into allocations, and the RPC
// server that exchanges them with host-agents.
package clusteragent

import (
	"bytes"
	"context"
	"time"

	"github.com/gavv/monotime"
	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/stats"
)

var cclog = logrus.WithField("component", "clusteragent.Controller")

// OnNewBundleFunc delivers a freshly computed AllocBundle to one
// host's stream. Implementations must not block.
type OnNewBundleFunc func(*heyppb.AllocBundle)

// Listener is a registered delivery hook; closing it deregisters from
// the controller.
type Listener interface {
	Close()
}

// ClusterController ingests host InfoBundles and periodically computes
// and broadcasts allocations.
type ClusterController interface {
	UpdateInfo(info *heyppb.InfoBundle)
	ComputeAndBroadcast()
	RegisterListener(hostID uint64, fn OnNewBundleFunc) (Listener, error)
}

// RunLoop ticks the controller every controlPeriod until ctx is
// canceled, recording per-tick latency. Per-tick errors never stop the
// loop.
func RunLoop(ctx context.Context, controller ClusterController, controlPeriod time.Duration, recorder *stats.Recorder) {
	ticker := time.NewTicker(controlPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cclog.Info("control loop exiting")
			if recorder != nil {
				var buf bytes.Buffer
				if err := recorder.DumpSummaries(&buf); err == nil && buf.Len() > 0 {
					cclog.WithField("latencies", buf.String()).Info("control loop latency summary")
				}
			}
			return
		case <-ticker.C:
			cclog.Debug("computing new allocations")
			start := monotime.Now()
			controller.ComputeAndBroadcast()
			if recorder != nil {
				recorder.RecordDur("compute-and-broadcast", monotime.Now()-start)
			}
		}
	}
}
