package sstracker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"time"

	"github.com/gavv/monotime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

var rlog = logrus.WithField("component", "sstracker.SSFlowStateReporter")

const monitorRestartBackoff = 500 * time.Millisecond

// ReporterConfig tunes the ss subprocess invocations.
type ReporterConfig struct {
	SSBinaryName string
	HostID       uint64
	// MyAddrs is the local-address allowlist: flows whose source is
	// not listed are ignored.
	MyAddrs    []string
	CollectAux bool
}

// IsLopriFunc resolves the QoS the enforcer currently applies to a
// flow.
type IsLopriFunc func(flow *heyppb.FlowMarker) bool

// SSFlowStateReporter feeds the FlowTracker from the OS socket
// inspector: a persistent `ss -E` subprocess streams closed-socket
// records, and ReportState runs a one-shot listing of open sockets.
type SSFlowStateReporter struct {
	config  ReporterConfig
	tracker *FlowTracker

	parsedLines  prometheus.Counter
	droppedLines prometheus.Counter
	pollDur      prometheus.Histogram
}

func NewSSFlowStateReporter(config ReporterConfig, tracker *FlowTracker, reg prometheus.Registerer) *SSFlowStateReporter {
	if config.SSBinaryName == "" {
		config.SSBinaryName = "ss"
	}
	sort.Strings(config.MyAddrs)
	r := &SSFlowStateReporter{
		config:  config,
		tracker: tracker,
		parsedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heyp_ss_parsed_lines_total",
			Help: "Socket inspector records parsed successfully.",
		}),
		droppedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heyp_ss_dropped_lines_total",
			Help: "Socket inspector records dropped as unparsable.",
		}),
		pollDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "heyp_ss_poll_duration_seconds",
			Help: "Wall time of one open-socket poll.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.parsedLines, r.droppedLines, r.pollDur)
	}
	return r
}

func (r *SSFlowStateReporter) ignoreFlow(f *heyppb.FlowMarker) bool {
	i := sort.SearchStrings(r.config.MyAddrs, f.SrcAddr)
	return i >= len(r.config.MyAddrs) || r.config.MyAddrs[i] != f.SrcAddr
}

func (r *SSFlowStateReporter) parseLine(line string) (Update, bool) {
	var aux *heyppb.AuxInfo
	if r.config.CollectAux {
		aux = &heyppb.AuxInfo{}
	}
	f, usageBps, cumBytes, err := ParseLineSS(r.config.HostID, line, aux)
	if err != nil {
		r.droppedLines.Inc()
		rlog.WithError(err).Debug("failed to parse ss record")
		return Update{}, false
	}
	if r.ignoreFlow(f) {
		rlog.WithField("flow", f.String()).Debug("ignoring flow from foreign source address")
		return Update{}, false
	}
	r.parsedLines.Inc()
	return Update{Flow: f, InstantaneousUsageBps: usageBps, CumUsageBytes: cumBytes, Aux: aux}, true
}

// MonitorDone runs until ctx is canceled, restarting the closed-socket
// stream with a short backoff whenever the subprocess dies.
func (r *SSFlowStateReporter) MonitorDone(ctx context.Context) {
	rlog.Info("entered closed-socket monitor loop")
	defer rlog.Info("exited closed-socket monitor loop")
	for ctx.Err() == nil {
		if err := r.monitorDoneOnce(ctx); err != nil && ctx.Err() == nil {
			rlog.WithError(err).Warn("restarting ss closed-socket monitor")
			select {
			case <-time.After(monitorRestartBackoff):
			case <-ctx.Done():
			}
		}
	}
}

func (r *SSFlowStateReporter) monitorDoneOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, r.config.SSBinaryName, "-E", "-i", "-t", "-n", "-H", "-O")
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.config.SSBinaryName, err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if u, ok := r.parseLine(line); ok {
			u.UsedPriority = FlowPriUnset
			r.tracker.FinalizeFlows(time.Now(), []Update{u})
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading %s output: %w", r.config.SSBinaryName, err)
	}
	return fmt.Errorf("%s exited", r.config.SSBinaryName)
}

// ReportState lists currently open sockets once and updates the
// tracker. isLopri resolves each flow's QoS from the enforcer.
func (r *SSFlowStateReporter) ReportState(ctx context.Context, isLopri IsLopriFunc) error {
	start := monotime.Now()
	cmd := exec.CommandContext(ctx, r.config.SSBinaryName, "-i", "-t", "-n", "-H", "-O")
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("running %s: %w", r.config.SSBinaryName, err)
	}

	now := time.Now()
	var updates []Update
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		u, ok := r.parseLine(line)
		if !ok {
			continue
		}
		u.UsedPriority = FlowPriHi
		if isLopri(u.Flow) {
			u.UsedPriority = FlowPriLo
		}
		updates = append(updates, u)
	}
	r.tracker.UpdateFlows(now, updates)
	r.pollDur.Observe(time.Duration(monotime.Now() - start).Seconds())
	return nil
}
