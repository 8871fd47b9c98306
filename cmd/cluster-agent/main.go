package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v6"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/heyp-project/heyp-agents/pkg/alg"
	"github.com/heyp-project/heyp-agents/pkg/clusteragent"
	"github.com/heyp-project/heyp-agents/pkg/clusteragent/allocator"
	"github.com/heyp-project/heyp-agents/pkg/flow"
	"github.com/heyp-project/heyp-agents/pkg/heyppb"
	"github.com/heyp-project/heyp-agents/pkg/stats"
)

const (
	exitRuntimeError = 1
	exitBadArgs      = 2
	exitConfigError  = 3
)

var calog = logrus.WithField("component", "main")

func buildController(config clusteragent.Config, fc *clusteragent.FileConfig) (clusteragent.ClusterController, error) {
	switch config.Controller {
	case "fast":
		var fracConfig *alg.DowngradeFracControllerConfig
		if fc.Fast.UseFracController {
			defaults := alg.DefaultDowngradeFracControllerConfig()
			fracConfig = &defaults
		}
		return clusteragent.NewFastClusterController(clusteragent.FastControllerConfig{
			TargetNumSamples:        fc.Fast.TargetNumSamples,
			NumThreads:              fc.Fast.NumThreads,
			DowngradeFracController: fracConfig,
		}, fc.AdmissionBundle()), nil
	case "full":
		predictor, err := alg.NewBweDemandPredictor(config.UsageHistoryWindow, config.DemandMultiplier, config.MinDemandBps)
		if err != nil {
			return nil, err
		}
		aggregator := flow.NewHostToClusterAggregator(predictor, config.UsageHistoryWindow)
		alloc, err := allocator.NewClusterAllocator(mustAllocatorConfig(fc), fc.AdmissionBundle(), config.DemandMultiplier)
		if err != nil {
			return nil, err
		}
		return clusteragent.NewFullClusterController(aggregator, alloc), nil
	}
	return nil, fmt.Errorf("unknown controller %q", config.Controller)
}

func mustAllocatorConfig(fc *clusteragent.FileConfig) *heyppb.ClusterAllocatorConfig {
	config, err := fc.AllocatorConfig()
	if err != nil {
		calog.WithError(err).Fatal("invalid allocator config")
	}
	return config
}

func run(config clusteragent.Config) error {
	if config.ConfigFile == "" {
		calog.Error("a cluster config file is required (HEYP_CLUSTER_CONFIG_FILE)")
		os.Exit(exitBadArgs)
	}
	fc, err := clusteragent.LoadFileConfig(config.ConfigFile)
	if err != nil {
		calog.WithError(err).Error("failed to load cluster config")
		os.Exit(exitConfigError)
	}
	if _, err := fc.AllocatorConfig(); err != nil {
		calog.WithError(err).Error("invalid cluster config")
		os.Exit(exitConfigError)
	}

	controller, err := buildController(config, fc)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", config.ListenAddr, err)
	}

	registry := prometheus.NewRegistry()
	if config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(config.MetricsAddr, mux); err != nil {
				calog.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	srv := grpc.NewServer()
	heyppb.RegisterClusterAgentServer(srv, clusteragent.NewClusterAgentService(controller, registry))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go clusteragent.RunLoop(ctx, controller, config.ControlPeriod, stats.NewRecorder(60_000_000, 3))
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	calog.WithField("addr", config.ListenAddr).Info("cluster-agent serving")
	return srv.Serve(lis)
}

func main() {
	var config clusteragent.Config
	root := &cobra.Command{
		Use:          "cluster-agent",
		Short:        "HEYP per-cluster bandwidth controller",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.Parse(&config); err != nil {
				calog.WithError(err).Error("failed to parse environment config")
				os.Exit(exitBadArgs)
			}
			if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
				logrus.SetLevel(level)
			}
			return run(config)
		},
	}
	if err := root.Execute(); err != nil {
		calog.WithError(err).Error("cluster-agent failed")
		os.Exit(exitRuntimeError)
	}
}
