package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v6"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v2"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/hostagent"
	"github.com/heyp-project/heyp-agents/pkg/hostagent/enforcer"
	"github.com/heyp-project/heyp-agents/pkg/hostagent/sstracker"
)

const (
	exitRuntimeError = 1
	exitBadArgs      = 2
	exitConfigError  = 3
)

var halog = logrus.WithField("component", "main")

type dcMapFile struct {
	Entries []struct {
		HostAddr string `yaml:"hostAddr"`
		DC       string `yaml:"dc"`
	} `yaml:"entries"`
}

func loadDCMap(path string) (*flow.StaticDCMapper, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading DC map: %w", err)
	}
	var f dcMapFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing DC map: %w", err)
	}
	config := &heyppb.DCMapConfig{}
	for _, e := range f.Entries {
		config.Entries = append(config.Entries, &heyppb.DCMapEntry{HostAddr: e.HostAddr, Dc: e.DC})
	}
	return flow.NewStaticDCMapper(config), nil
}

func buildEnforcer(config hostagent.Config, mapper *flow.StaticDCMapper) (enforcer.HostEnforcer, error) {
	if !config.EnforceOnDevice {
		halog.Info("enforcement disabled; allocations will be ignored")
		return enforcer.NopHostEnforcer{}, nil
	}
	runner, err := enforcer.NewIptablesRunner()
	if err != nil {
		return nil, err
	}
	ipt := enforcer.NewIptablesController(config.Device, nil, runner)
	match := func(p enforcer.FlowStateProvider, a *heyppb.FlowAlloc) enforcer.MatchedHostFlows {
		return enforcer.ExpandDestIntoHostsSinglePri(mapper, p, a)
	}
	linux := enforcer.NewLinuxHostEnforcer(config.Device, match, enforcer.NewTcCaller("tc"), ipt)
	if err := linux.ResetDeviceConfig(); err != nil {
		return nil, fmt.Errorf("resetting device config: %w", err)
	}
	return linux, nil
}

func run(config hostagent.Config) error {
	if config.HostID == 0 {
		halog.Error("a nonzero HEYP_HOST_ID is required")
		os.Exit(exitBadArgs)
	}
	if config.ClusterAgentAddr == "" {
		halog.Error("HEYP_CLUSTER_AGENT_ADDR is required")
		os.Exit(exitBadArgs)
	}
	if config.DCMapFile == "" {
		halog.Error("HEYP_DC_MAP_FILE is required")
		os.Exit(exitBadArgs)
	}
	mapper, err := loadDCMap(config.DCMapFile)
	if err != nil {
		halog.WithError(err).Error("failed to load DC map")
		os.Exit(exitConfigError)
	}

	predictor, err := alg.NewBweDemandPredictor(config.UsageHistoryWindow, config.DemandMultiplier, config.MinDemandBps)
	if err != nil {
		halog.WithError(err).Error("invalid demand predictor config")
		os.Exit(exitConfigError)
	}

	tracker := sstracker.NewFlowTracker(predictor, sstracker.TrackerConfig{
		UsageHistoryWindow: config.UsageHistoryWindow,
	})
	reporter := sstracker.NewSSFlowStateReporter(sstracker.ReporterConfig{
		SSBinaryName: config.SSBinaryName,
		HostID:       config.HostID,
		MyAddrs:      config.MyAddrs,
		CollectAux:   config.CollectAux,
	}, tracker, prometheus.DefaultRegisterer)

	hostEnforcer, err := buildEnforcer(config, mapper)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The initial dial is fatal on timeout; afterwards gRPC reconnects
	// on its own.
	dialCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, config.ClusterAgentAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()), grpc.WithBlock())
	if err != nil {
		return fmt.Errorf("dialing cluster-agent at %s: %w", config.ClusterAgentAddr, err)
	}
	defer conn.Close()

	stream, err := heyppb.NewClusterAgentClient(conn).RegisterHost(ctx)
	if err != nil {
		return fmt.Errorf("opening stream to cluster-agent: %w", err)
	}

	daemon := hostagent.NewHostDaemon(config, tracker, reporter, hostEnforcer, mapper, stream)
	return daemon.Run(ctx)
}

func main() {
	var config hostagent.Config
	root := &cobra.Command{
		Use:          "host-agent",
		Short:        "HEYP per-host usage reporter and enforcer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Parse(&config); err != nil {
				halog.WithError(err).Error("failed to parse environment config")
				os.Exit(exitBadArgs)
			}
			if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
				logrus.SetLevel(level)
			}
			return run(config)
		},
	}
	if err := root.Execute(); err != nil {
		halog.WithError(err).Error("host-agent failed")
		os.Exit(exitRuntimeError)
	}
}
