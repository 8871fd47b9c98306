// Package enforcer applies cluster-agent allocations on a host: HTB
// classes under one root qdisc rate-limit each (flow-group, priority)
// pair, and mangle-table iptables rules steer packets into the right
// class and DSCP.
package enforcer

import (
	"time"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// FlowStateProvider exposes the host's current view of active flows;
// the enforcer uses it to expand flow-group allocs into concrete
// per-connection matches.
type FlowStateProvider interface {
	ForEachActiveFlow(fn func(time.Time, *heyppb.FlowInfo))
}

// HostEnforcer applies AllocBundles to the host.
type HostEnforcer interface {
	EnforceAllocs(provider FlowStateProvider, bundle *heyppb.AllocBundle)
	// IsLopri reports the QoS the applied configuration gives a flow.
	IsLopri(flow *heyppb.FlowMarker) bool
}

// NopHostEnforcer ignores all allocations; it keeps the telemetry path
// alive on hosts where enforcement is disabled.
type NopHostEnforcer struct{}

func (NopHostEnforcer) EnforceAllocs(FlowStateProvider, *heyppb.AllocBundle) {}
func (NopHostEnforcer) IsLopri(*heyppb.FlowMarker) bool                     { return false }

// DSCP codepoints for the two service classes. These are wire-visible
// and must match across deployments.
const (
	DscpHipri = "AF41"
	DscpLopri = "AF31"
)
