package sstracker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// ParseHostPort splits an ss endpoint ("addr:port", "[v6]:port",
// "[::ffff:v4]:port") into host and port. IPv4-mapped v6 addresses are
// unwrapped to plain v4.
func ParseHostPort(s string) (string, int32, error) {
	if s == "" {
		return "", 0, fmt.Errorf("empty host:port")
	}
	sep := strings.LastIndex(s, ":")
	if sep < 0 {
		return "", 0, fmt.Errorf("port not found in %q", s)
	}
	port64, err := strconv.ParseInt(s[sep+1:], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", s[sep+1:])
	}
	if sep == 0 {
		return "", 0, fmt.Errorf("found port but no address in %q", s)
	}
	host := s[:sep]
	if host[0] == '[' {
		if sep < 3 || host[len(host)-1] != ']' {
			return "", 0, fmt.Errorf("invalid bracketed address %q", host)
		}
		host = host[1 : len(host)-1]
		if rest, ok := strings.CutPrefix(host, "::ffff:"); ok && !strings.Contains(rest, ":") {
			host = rest
		}
	}
	return host, int32(port64), nil
}

// parseBps parses rate values printed by ss: a number with a "bps"
// suffix and an optional SI prefix (k/M/G/T, either case).
func parseBps(s string) (int64, bool) {
	s, ok := strings.CutSuffix(s, "bps")
	if !ok {
		return 0, false
	}
	multiplier := 1.0
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'k', 'K':
			multiplier = 1e3
		case 'm', 'M':
			multiplier = 1e6
		case 'g', 'G':
			multiplier = 1e9
		case 't', 'T':
			multiplier = 1e12
		}
		if multiplier != 1 {
			s = s[:len(s)-1]
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(v * multiplier), true
}

// parseMs parses duration values like "436ms", tolerating a trailing
// parenthesized annotation.
func parseMs(s string) (int64, bool) {
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = s[:i]
	}
	s, ok := strings.CutSuffix(s, "ms")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLineSS parses one `ss -tin -O` record into a flow marker, its
// current send rate and cumulative sent bytes, plus (optionally) the
// TCP auxiliary stats. Unknown tokens are skipped; the leading
// positional fields (state, recv-q, send-q, local, peer) are required.
func ParseLineSS(hostID uint64, line string, aux *heyppb.AuxInfo) (*heyppb.FlowMarker, int64, int64, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return nil, 0, 0, fmt.Errorf("too few fields in ss record: %q", line)
	}

	srcAddr, srcPort, err := ParseHostPort(fields[3])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("bad local endpoint: %w", err)
	}
	dstAddr, dstPort, err := ParseHostPort(fields[4])
	if err != nil {
		return nil, 0, 0, fmt.Errorf("bad peer endpoint: %w", err)
	}

	flow := &heyppb.FlowMarker{
		HostId:   hostID,
		SrcAddr:  srcAddr,
		DstAddr:  dstAddr,
		Protocol: heyppb.Protocol_PROTO_TCP,
		SrcPort:  srcPort,
		DstPort:  dstPort,
	}

	var curUsageBps, cumUsageBytes int64
	for i := 5; i < len(fields); i++ {
		tok := fields[i]
		// Two-token forms: "send 100bps", "pacing_rate 100bps", ...
		next := ""
		if i+1 < len(fields) {
			next = fields[i+1]
		}
		switch tok {
		case "send":
			if v, ok := parseBps(next); ok {
				curUsageBps = v
				i++
			}
			continue
		case "pacing_rate":
			if v, ok := parseBps(next); ok {
				if aux != nil {
					aux.PacingRateBps = v
				}
				i++
			}
			continue
		case "delivery_rate":
			if v, ok := parseBps(next); ok {
				if aux != nil {
					aux.DeliveryRateBps = v
				}
				i++
			}
			continue
		}

		key, val, found := strings.Cut(tok, ":")
		if !found {
			continue
		}
		switch key {
		case "bytes_sent":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cumUsageBytes = v
			}
		case "cwnd":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil && aux != nil {
				aux.Cwnd = v
			}
		case "rtt":
			// rtt:<mean>/<var> in ms.
			mean, _, _ := strings.Cut(val, "/")
			if v, err := strconv.ParseFloat(mean, 64); err == nil && aux != nil {
				aux.RttUsec = int64(v * 1000)
			}
		case "busy":
			if v, ok := parseMs(val); ok && aux != nil {
				aux.BusyTimeMs = v
			}
		case "bbr":
			if aux != nil {
				parseBbr(val, aux)
			}
		}
	}
	return flow, curUsageBps, cumUsageBytes, nil
}

// parseBbr parses "(bw:413714088bps,mrtt:0.028,...)".
func parseBbr(val string, aux *heyppb.AuxInfo) {
	val = strings.TrimPrefix(val, "(")
	val = strings.TrimSuffix(val, ")")
	aux.IsBbr = true
	for _, part := range strings.Split(val, ",") {
		key, v, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		switch key {
		case "bw":
			if bps, ok := parseBps(v); ok {
				aux.BbrBwBps = bps
			}
		case "mrtt":
			if ms, err := strconv.ParseFloat(v, 64); err == nil {
				aux.BbrMinRttUsec = int64(ms * 1000)
			}
		}
	}
}
