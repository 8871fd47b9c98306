package enforcer

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var elog = logrus.WithField("component", "enforcer.LinuxHostEnforcer")

// MatchedHostFlows holds the concrete flows an alloc expands to, split
// by the priority they should use.
type MatchedHostFlows struct {
	Hipri []*heyppb.FlowMarker
	Lopri []*heyppb.FlowMarker
}

// MatchHostFlowsFunc expands one FlowAlloc into the host flows it
// governs.
type MatchHostFlowsFunc func(FlowStateProvider, *heyppb.FlowAlloc) MatchedHostFlows

// ExpandDestIntoHostsSinglePri expands an alloc with no destination
// address into one matched flow per host of the destination DC. Under
// single-priority enforcement an alloc carries either a HIPRI or a
// LOPRI limit, never both.
func ExpandDestIntoHostsSinglePri(dcMapper *flow.StaticDCMapper, _ FlowStateProvider, alloc *heyppb.FlowAlloc) MatchedHostFlows {
	var matched MatchedHostFlows
	expanded := &matched.Hipri
	if alloc.LopriRateLimitBps > 0 {
		if alloc.HipriRateLimitBps != 0 {
			elog.WithField("alloc", alloc.String()).
				Error("single-priority expansion cannot accept both positive hipri and lopri rate limits")
			return matched
		}
		expanded = &matched.Lopri
	}
	f := alloc.GetFlow()
	if f.GetDstAddr() == "" {
		hosts := dcMapper.HostsForDC(f.GetDstDc())
		if hosts == nil {
			elog.WithField("dstDC", f.GetDstDc()).Error("no hosts match destination DC")
			return matched
		}
		for _, host := range hosts {
			m := &heyppb.FlowMarker{}
			*m = *f
			m.DstAddr = host
			*expanded = append(*expanded, m)
		}
	} else {
		*expanded = append(*expanded, f)
	}
	return matched
}

type flowSysPriority struct {
	classID              string
	curRateLimitBps      int64
	didCreateClass       bool
	updateAfterIptChange bool
}

type flowSys struct {
	hipri flowSysPriority
	lopri flowSysPriority
}

// LinuxHostEnforcer drives tc and iptables to enforce allocations. Rate
// changes apply in three phases so flows are never transiently
// under-limited: raises first, then iptables reclassification, then
// deferred lowers.
type LinuxHostEnforcer struct {
	device      string
	matchFlows  MatchHostFlowsFunc
	tc          TcCaller
	ipt         *IptablesController
	nextClassID int32

	sysInfo map[flow.ClusterFlowKey]*flowSys // entries are never deleted
}

func NewLinuxHostEnforcer(device string, matchFlows MatchHostFlowsFunc, tc TcCaller, ipt *IptablesController) *LinuxHostEnforcer {
	return &LinuxHostEnforcer{
		device:      device,
		matchFlows:  matchFlows,
		tc:          tc,
		ipt:         ipt,
		nextClassID: 2,
		sysInfo:     make(map[flow.ClusterFlowKey]*flowSys),
	}
}

// ResetDeviceConfig clears all previous qdisc and iptables state and
// installs the root HTB qdisc with default class 0.
func (e *LinuxHostEnforcer) ResetDeviceConfig() error {
	if err := e.resetTrafficControl(); err != nil {
		return fmt.Errorf("failed to reset traffic control: %w", err)
	}
	if err := e.ipt.Clear(); err != nil {
		return fmt.Errorf("failed to reset iptables: %w", err)
	}
	return nil
}

func (e *LinuxHostEnforcer) resetTrafficControl() error {
	// Deleting the root qdisc fails when none exists yet; that is fine.
	if _, err := e.tc.Call("-j", "qdisc", "delete", "dev", e.device, "root"); err != nil {
		elog.WithError(err).Debug("deleting root qdisc (may not exist)")
	}
	_, err := e.tc.Call("-j", "qdisc", "add", "dev", e.device, "root", "handle", "1:", "htb", "default", "0")
	return err
}

func (e *LinuxHostEnforcer) updateTrafficControlForFlow(rateLimitBps int64, sys *flowSysPriority) error {
	rateLimitMbps := float64(rateLimitBps) / (1024.0 * 1024.0)

	if sys.classID == "" {
		sys.classID = fmt.Sprintf("1:%d", e.nextClassID)
		e.nextClassID++
	}

	verb := "change"
	if !sys.didCreateClass {
		verb = "add"
	}
	_, err := e.tc.Call("-j", "class", verb, "dev", e.device, "parent", "1:",
		"classid", sys.classID, "htb", "rate", fmt.Sprintf("%fmbit", rateLimitMbps))
	if err != nil {
		return fmt.Errorf("failed to %s tc class: %w", verb, err)
	}
	if verb == "add" {
		sys.didCreateClass = true
	}
	return nil
}

func (e *LinuxHostEnforcer) stageIptablesForFlow(matched []*heyppb.FlowMarker, dscp, classID string) {
	if len(matched) == 0 {
		return
	}
	if classID == "" {
		elog.WithField("dscp", dscp).Error("class id must be set before staging iptables rules")
		return
	}
	for _, f := range matched {
		e.ipt.Stage(Setting{
			SrcPort: uint16(f.SrcPort),
			DstPort: uint16(f.DstPort),
			DstAddr: f.DstAddr,
			ClassID: classID,
			Dscp:    dscp,
		})
	}
}

// EnforceAllocs adjusts rate limits and QoS for host traffic in three
// phases:
//
//  1. Create rate limiters for used (FG, QoS) pairs that lack one and
//     raise limits that grew.
//  2. Update iptables to steer flows into the correct limiters and mark
//     the correct DSCP.
//  3. Apply the deferred limit decreases.
//
// A phase-2 failure cancels phase 3 so flows whose iptables rules were
// not updated are never under-limited.
func (e *LinuxHostEnforcer) EnforceAllocs(provider FlowStateProvider, bundle *heyppb.AllocBundle) {
	for _, alloc := range bundle.FlowAllocs {
		matched := e.matchFlows(provider, alloc)
		sys := e.sysFor(alloc.GetFlow())

		var err error

		mustCreate := sys.hipri.classID == "" && len(matched.Hipri) > 0
		if mustCreate || alloc.HipriRateLimitBps > sys.hipri.curRateLimitBps {
			err = e.updateTrafficControlForFlow(alloc.HipriRateLimitBps, &sys.hipri)
			sys.hipri.updateAfterIptChange = false
		} else if alloc.HipriRateLimitBps < sys.hipri.curRateLimitBps {
			sys.hipri.updateAfterIptChange = true
		}
		sys.hipri.curRateLimitBps = alloc.HipriRateLimitBps

		mustCreate = sys.lopri.classID == "" && len(matched.Lopri) > 0
		if mustCreate || alloc.LopriRateLimitBps > sys.lopri.curRateLimitBps {
			if lerr := e.updateTrafficControlForFlow(alloc.LopriRateLimitBps, &sys.lopri); lerr != nil && err == nil {
				err = lerr
			}
			sys.lopri.updateAfterIptChange = false
		} else if alloc.LopriRateLimitBps < sys.lopri.curRateLimitBps {
			sys.lopri.updateAfterIptChange = true
		}
		sys.lopri.curRateLimitBps = alloc.LopriRateLimitBps

		if err != nil {
			elog.WithError(err).WithField("alloc", alloc.String()).
				Error("failed to increase rate limits for flow; will not change iptables config")
			continue
		}

		e.stageIptablesForFlow(matched.Hipri, DscpHipri, sys.hipri.classID)
		e.stageIptablesForFlow(matched.Lopri, DscpLopri, sys.lopri.classID)
	}

	if err := e.ipt.CommitChanges(); err != nil {
		elog.WithError(err).Error("failed to commit iptables config; will not decrease rate limits")
		return
	}

	for _, alloc := range bundle.FlowAllocs {
		sys := e.sysFor(alloc.GetFlow())
		if sys.hipri.updateAfterIptChange {
			if err := e.updateTrafficControlForFlow(sys.hipri.curRateLimitBps, &sys.hipri); err != nil {
				elog.WithError(err).WithField("alloc", alloc.String()).Error("failed to reduce hipri rate limit")
			}
			sys.hipri.updateAfterIptChange = false
		}
		if sys.lopri.updateAfterIptChange {
			if err := e.updateTrafficControlForFlow(sys.lopri.curRateLimitBps, &sys.lopri); err != nil {
				elog.WithError(err).WithField("alloc", alloc.String()).Error("failed to reduce lopri rate limit")
			}
			sys.lopri.updateAfterIptChange = false
		}
	}
}

func (e *LinuxHostEnforcer) sysFor(marker *heyppb.FlowMarker) *flowSys {
	key := flow.ClusterKey(marker)
	sys, ok := e.sysInfo[key]
	if !ok {
		sys = &flowSys{}
		e.sysInfo[key] = sys
	}
	return sys
}

// IsLopri reports whether the applied iptables settings mark the flow
// with the LOPRI DSCP.
func (e *LinuxHostEnforcer) IsLopri(f *heyppb.FlowMarker) bool {
	return e.ipt.DscpFor(uint16(f.SrcPort), uint16(f.DstPort), f.DstAddr, DscpHipri) == DscpLopri
}
