// Package flow holds the per-flow and per-aggregate usage state shared
// by the host-agent and the cluster-agent: marker keys at the three
// aggregation levels, the EWMA/demand state machine, and the
// cluster-side aggregator.
package flow

import (
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// ClusterFlowKey identifies a flow-group: traffic from one datacenter
// to another.
type ClusterFlowKey struct {
	SrcDC string
	DstDC string
}

// HostFlowKey identifies one host's contribution to a flow-group.
type HostFlowKey struct {
	SrcDC  string
	DstDC  string
	Job    string
	HostID uint64
}

// ConnFlowKey identifies a single connection, seqnum included so a
// reused 5-tuple maps to a fresh key.
type ConnFlowKey struct {
	SrcDC    string
	DstDC    string
	Job      string
	HostID   uint64
	SrcAddr  string
	DstAddr  string
	Protocol heyppb.Protocol
	SrcPort  int32
	DstPort  int32
	Seqnum   uint32
}

func ClusterKey(m *heyppb.FlowMarker) ClusterFlowKey {
	return ClusterFlowKey{SrcDC: m.GetSrcDc(), DstDC: m.GetDstDc()}
}

func HostKey(m *heyppb.FlowMarker) HostFlowKey {
	return HostFlowKey{SrcDC: m.GetSrcDc(), DstDC: m.GetDstDc(), Job: m.GetJob(), HostID: m.GetHostId()}
}

func ConnKey(m *heyppb.FlowMarker) ConnFlowKey {
	return ConnFlowKey{
		SrcDC:    m.GetSrcDc(),
		DstDC:    m.GetDstDc(),
		Job:      m.GetJob(),
		HostID:   m.GetHostId(),
		SrcAddr:  m.GetSrcAddr(),
		DstAddr:  m.GetDstAddr(),
		Protocol: m.GetProtocol(),
		SrcPort:  m.GetSrcPort(),
		DstPort:  m.GetDstPort(),
		Seqnum:   m.GetSeqnum(),
	}
}

func (k ClusterFlowKey) Marker() *heyppb.FlowMarker {
	return &heyppb.FlowMarker{SrcDc: k.SrcDC, DstDc: k.DstDC}
}

func (k HostFlowKey) Marker() *heyppb.FlowMarker {
	return &heyppb.FlowMarker{SrcDc: k.SrcDC, DstDc: k.DstDC, Job: k.Job, HostId: k.HostID}
}

// ToHostFlow projects a marker down to its host-level aggregate.
func ToHostFlow(m *heyppb.FlowMarker) *heyppb.FlowMarker {
	return HostKey(m).Marker()
}

// ToClusterFlow projects a marker down to its flow-group.
func ToClusterFlow(m *heyppb.FlowMarker) *heyppb.FlowMarker {
	return ClusterKey(m).Marker()
}

// HasFG reports whether both datacenters of the flow-group are set.
func HasFG(m *heyppb.FlowMarker) bool {
	return m.GetSrcDc() != "" && m.GetDstDc() != ""
}

// IsValidHostChild reports whether a marker can be aggregated at the
// host level: the flow-group plus the reporting host must be known.
func IsValidHostChild(m *heyppb.FlowMarker) bool {
	return HasFG(m) && m.GetHostId() != 0
}

// IsValidConnChild reports whether a marker names a concrete
// connection.
func IsValidConnChild(m *heyppb.FlowMarker) bool {
	return IsValidHostChild(m) && m.GetSrcAddr() != "" && m.GetDstAddr() != "" &&
		m.GetProtocol() != heyppb.Protocol_PROTO_UNKNOWN && m.GetSrcPort() != 0 && m.GetDstPort() != 0
}

// SameFG reports whether two markers belong to the same flow-group.
func SameFG(a, b *heyppb.FlowMarker) bool {
	return a.GetSrcDc() == b.GetSrcDc() && a.GetDstDc() == b.GetDstDc()
}
