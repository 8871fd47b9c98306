package flow

import (
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// StaticDCMapper resolves host addresses to datacenters from a fixed
// config. The mapping never changes at runtime; dynamic membership is
// handled at the stream layer, not here.
type StaticDCMapper struct {
	hostAddrToDC map[string]string
	dcToAllHosts map[string][]string
	allDCs       []string
}

func NewStaticDCMapper(config *heyppb.DCMapConfig) *StaticDCMapper {
	m := &StaticDCMapper{
		hostAddrToDC: make(map[string]string),
		dcToAllHosts: make(map[string][]string),
	}
	for _, e := range config.GetEntries() {
		m.hostAddrToDC[e.HostAddr] = e.Dc
		if _, seen := m.dcToAllHosts[e.Dc]; !seen {
			m.allDCs = append(m.allDCs, e.Dc)
		}
		m.dcToAllHosts[e.Dc] = append(m.dcToAllHosts[e.Dc], e.HostAddr)
	}
	return m
}

// HostDC returns the datacenter of a host address, or "" if unknown.
func (m *StaticDCMapper) HostDC(host string) string {
	return m.hostAddrToDC[host]
}

// HostsForDC returns all host addresses in a datacenter, or nil if the
// datacenter is unknown.
func (m *StaticDCMapper) HostsForDC(dc string) []string {
	return m.dcToAllHosts[dc]
}

func (m *StaticDCMapper) AllDCs() []string { return m.allDCs }
