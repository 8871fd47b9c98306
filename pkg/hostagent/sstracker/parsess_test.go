package sstracker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

func rec(fields ...string) string { return strings.Join(fields, " ") }

func line1() string {
	return rec(
		"UNCONN", "1", "0",
		"140.197.113.99:22", "165.121.234.111:21364",
		"wscale:6,7", "rto:236", "rtt:33.49/1.669", "ato:40", "mss:1448",
		"pmtu:1500", "rcvmss:1392", "advmss:1448", "cwnd:10",
		"bytes_sent:4140", "bytes_acked:4141", "bytes_received:3302",
		"segs_out:21", "segs_in:31", "data_segs_out:14", "data_segs_in:13",
		"send", "3458943bps", "lastsnd:72", "lastrcv:40",
		"pacing_rate", "6917808bps", "delivery_rate", "336408bps",
		"delivered:16", "busy:436ms", "rcv_space:14600", "rcv_ssthresh:64076",
		"minrtt:31.792",
	)
}

func line2() string {
	return rec(
		"ESTAB", "0", "0",
		"[::ffff:140.197.113.99]:4580", "[::ffff:192.168.1.7]:38290",
		"bbr", "wscale:7,7", "rto:204", "rtt:0.128/0.085", "ato:40",
		"mss:1448", "pmtu:1500", "rcvmss:536", "advmss:1448", "cwnd:43",
		"bytes_sent:1431", "bytes_acked:1431", "bytes_received:2214",
		"segs_out:100", "segs_in:95", "data_segs_out:33", "data_segs_in:67",
		"bbr:(bw:413714088bps,mrtt:0.028,pacing_gain:2.88672,cwnd_gain:2.88672)",
		"send", "3891500000bps", "lastsnd:1536", "lastrcv:1096", "lastack:1096",
		"pacing_rate", "4355966600bps", "delivery_rate", "413714280bps",
		"delivered:34", "app_limited", "rcv_space:14600", "rcv_ssthresh:64076",
		"minrtt:0.028",
	)
}

func line3() string {
	return strings.Replace(line2(), "send 3891500000bps", "send 10Mbps", 1)
}

func TestParseLineSSNoAux(t *testing.T) {
	flow, curBps, cumBytes, err := ParseLineSS(123, line1(), nil)
	require.NoError(t, err)
	assert.Equal(t, &heyppb.FlowMarker{
		HostId:   123,
		SrcAddr:  "140.197.113.99",
		DstAddr:  "165.121.234.111",
		Protocol: heyppb.Protocol_PROTO_TCP,
		SrcPort:  22,
		DstPort:  21364,
	}, flow)
	assert.Equal(t, int64(3458943), curBps)
	assert.Equal(t, int64(4140), cumBytes)

	flow, curBps, cumBytes, err = ParseLineSS(123, line2(), nil)
	require.NoError(t, err)
	assert.Equal(t, "140.197.113.99", flow.SrcAddr)
	assert.Equal(t, "192.168.1.7", flow.DstAddr)
	assert.Equal(t, int32(4580), flow.SrcPort)
	assert.Equal(t, int32(38290), flow.DstPort)
	assert.Equal(t, int64(3891500000), curBps)
	assert.Equal(t, int64(1431), cumBytes)

	_, curBps, _, err = ParseLineSS(123, line3(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), curBps)
}

func TestParseLineSSWithAux(t *testing.T) {
	aux := &heyppb.AuxInfo{}
	_, _, _, err := ParseLineSS(234, line1(), aux)
	require.NoError(t, err)
	assert.Equal(t, int64(33490), aux.RttUsec)
	assert.Equal(t, int64(10), aux.Cwnd)
	assert.Equal(t, int64(6917808), aux.PacingRateBps)
	assert.Equal(t, int64(336408), aux.DeliveryRateBps)
	assert.Equal(t, int64(436), aux.BusyTimeMs)
	assert.False(t, aux.IsBbr)

	aux = &heyppb.AuxInfo{}
	_, _, _, err = ParseLineSS(234, line2(), aux)
	require.NoError(t, err)
	assert.True(t, aux.IsBbr)
	assert.Equal(t, int64(413714088), aux.BbrBwBps)
	assert.Equal(t, int64(28), aux.BbrMinRttUsec)
	assert.Equal(t, int64(43), aux.Cwnd)
	assert.Equal(t, int64(4355966600), aux.PacingRateBps)
}

func TestParseLineSSRejectsGarbage(t *testing.T) {
	_, _, _, err := ParseLineSS(1, "ESTAB 0 0", nil)
	assert.Error(t, err)
	_, _, _, err = ParseLineSS(1, "ESTAB 0 0 nonsense alsononsense", nil)
	assert.Error(t, err)
}

func TestParseHostPort(t *testing.T) {
	host, port, err := ParseHostPort("10.0.0.1:80")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, int32(80), port)

	host, port, err = ParseHostPort("[::ffff:10.0.0.1]:443")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", host)
	assert.Equal(t, int32(443), port)

	host, _, err = ParseHostPort("[2001:db8::1]:22")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", host)

	_, _, err = ParseHostPort("")
	assert.Error(t, err)
	_, _, err = ParseHostPort("noport")
	assert.Error(t, err)
	_, _, err = ParseHostPort(":80")
	assert.Error(t, err)
	_, _, err = ParseHostPort("10.0.0.1:notaport")
	assert.Error(t, err)
}

func TestParseBps(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want int64
		ok   bool
	}{
		{"3458943bps", 3458943, true},
		{"10Mbps", 10_000_000, true},
		{"1.5kbps", 1500, true},
		{"2Gbps", 2_000_000_000, true},
		{"1Tbps", 1_000_000_000_000, true},
		{"42", 0, false},
		{"bps", 0, false},
	} {
		got, ok := parseBps(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}

func TestParseMs(t *testing.T) {
	v, ok := parseMs("436ms")
	assert.True(t, ok)
	assert.Equal(t, int64(436), v)

	v, ok = parseMs("120ms(acked)")
	assert.True(t, ok)
	assert.Equal(t, int64(120), v)

	_, ok = parseMs("436")
	assert.False(t, ok)
}
