package clusteragent

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/heyp-project/heyp-agents/pkg/heyppb"
)

// Config is the cluster-agent process configuration, loaded from the
// environment. Per-FG admissions and allocator knobs live in the YAML
// file named by ConfigFile.
type Config struct {
	// ListenAddr is the host:port the RPC server binds.
	ListenAddr string `env:"HEYP_CLUSTER_LISTEN_ADDR" envDefault:":4560"`
	// ControlPeriod is the controller tick interval.
	ControlPeriod time.Duration `env:"HEYP_CONTROL_PERIOD" envDefault:"5s"`
	// Controller selects the pipeline: full or fast.
	Controller string `env:"HEYP_CONTROLLER" envDefault:"full"`
	// ConfigFile is the YAML file holding allocator config and per-FG
	// admissions.
	ConfigFile string `env:"HEYP_CLUSTER_CONFIG_FILE"`
	// UsageHistoryWindow bounds aggregate usage history.
	UsageHistoryWindow time.Duration `env:"HEYP_USAGE_HISTORY_WINDOW" envDefault:"120s"`
	// DemandMultiplier scales windowed-max usage into demand.
	DemandMultiplier float64 `env:"HEYP_DEMAND_MULTIPLIER" envDefault:"1.1"`
	// MinDemandBps floors every demand prediction.
	MinDemandBps int64 `env:"HEYP_MIN_DEMAND_BPS" envDefault:"1048576"`
	// MetricsAddr enables the Prometheus endpoint when nonempty.
	MetricsAddr string `env:"HEYP_METRICS_ADDR"`
	// LogLevel from more to less verbose: trace, debug, info, warn,
	// error, fatal, panic.
	LogLevel string `env:"HEYP_LOG_LEVEL" envDefault:"info"`
}

// FileConfig is the YAML shape of the cluster configuration file.
type FileConfig struct {
	Allocator struct {
		Type                    string  `yaml:"type"`
		DowngradeSelector       string  `yaml:"downgradeSelector"`
		DowngradeJobs           bool    `yaml:"downgradeJobs"`
		DowngradeUsage          bool    `yaml:"downgradeUsage"`
		EnableBurstiness        bool    `yaml:"enableBurstiness"`
		EnableBonus             bool    `yaml:"enableBonus"`
		ProbeLopriWhenAmbiguous bool    `yaml:"probeLopriWhenAmbiguous"`
		OversubFactor           float64 `yaml:"oversubFactor"`
		ThrottleHipri           string  `yaml:"throttleHipri"`
		// AcceptableRatio is the threshold on the measured-over-
		// intended LOPRI ratio below which congestion is inferred.
		AcceptableRatio float64 `yaml:"acceptableMeasuredRatioOverIntendedRatio"`
	} `yaml:"allocator"`
	Admissions []struct {
		SrcDC    string `yaml:"srcDC"`
		DstDC    string `yaml:"dstDC"`
		HipriBps int64  `yaml:"hipriBps"`
		LopriBps int64  `yaml:"lopriBps"`
	} `yaml:"admissions"`
	Fast struct {
		TargetNumSamples  float64 `yaml:"targetNumSamples"`
		NumThreads        int     `yaml:"numThreads"`
		UseFracController bool    `yaml:"useFracController"`
	} `yaml:"fast"`
	DCMap []struct {
		HostAddr string `yaml:"hostAddr"`
		DC       string `yaml:"dc"`
	} `yaml:"dcMap"`
}

// LoadFileConfig reads and parses the YAML cluster configuration.
func LoadFileConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cluster config: %w", err)
	}
	var fc FileConfig
	if err := yaml.UnmarshalStrict(raw, &fc); err != nil {
		return nil, fmt.Errorf("parsing cluster config: %w", err)
	}
	return &fc, nil
}

func selectorKind(name string) (heyppb.DowngradeSelectorKind, error) {
	switch name {
	case "", "HEYP_SIGCOMM20":
		return heyppb.DowngradeSelectorKind_DS_HEYP_SIGCOMM20, nil
	case "LARGEST_FIRST":
		return heyppb.DowngradeSelectorKind_DS_LARGEST_FIRST, nil
	case "KNAPSACK":
		return heyppb.DowngradeSelectorKind_DS_KNAPSACK, nil
	case "HASHING":
		return heyppb.DowngradeSelectorKind_DS_HASHING, nil
	}
	return 0, fmt.Errorf("unknown downgrade selector %q", name)
}

func throttleCondition(name string) (heyppb.HipriThrottleCondition, error) {
	switch name {
	case "", "NEVER":
		return heyppb.HipriThrottleCondition_HTC_NEVER, nil
	case "WHEN_ABOVE_HIPRI_LIMIT":
		return heyppb.HipriThrottleCondition_HTC_WHEN_ABOVE_HIPRI_LIMIT, nil
	case "WHEN_ASSIGNED_LOPRI":
		return heyppb.HipriThrottleCondition_HTC_WHEN_ASSIGNED_LOPRI, nil
	case "ALWAYS":
		return heyppb.HipriThrottleCondition_HTC_ALWAYS, nil
	}
	return 0, fmt.Errorf("unknown HIPRI throttle condition %q", name)
}

// AllocatorConfig converts the YAML allocator section to the wire
// config consumed by the allocators.
func (fc *FileConfig) AllocatorConfig() (*heyppb.ClusterAllocatorConfig, error) {
	selector, err := selectorKind(fc.Allocator.DowngradeSelector)
	if err != nil {
		return nil, err
	}
	throttle, err := throttleCondition(fc.Allocator.ThrottleHipri)
	if err != nil {
		return nil, err
	}
	oversub := fc.Allocator.OversubFactor
	if oversub == 0 {
		oversub = 1.0
	}
	config := &heyppb.ClusterAllocatorConfig{
		Type:                         fc.Allocator.Type,
		DowngradeSelector:            selector,
		DowngradeJobs:                fc.Allocator.DowngradeJobs,
		DowngradeUsage:               fc.Allocator.DowngradeUsage,
		EnableBurstiness:             fc.Allocator.EnableBurstiness,
		EnableBonus:                  fc.Allocator.EnableBonus,
		HeypProbeLopriWhenAmbiguous:  fc.Allocator.ProbeLopriWhenAmbiguous,
		OversubFactor:                oversub,
		SimpleDowngradeThrottleHipri: throttle,
	}
	config.AcceptableMeasuredRatioOverIntendedRatio = fc.Allocator.AcceptableRatio
	return config, nil
}

// AdmissionBundle converts the YAML admissions list to a cluster-wide
// AllocBundle.
func (fc *FileConfig) AdmissionBundle() *heyppb.AllocBundle {
	bundle := &heyppb.AllocBundle{}
	for _, a := range fc.Admissions {
		bundle.FlowAllocs = append(bundle.FlowAllocs, &heyppb.FlowAlloc{
			Flow:              &heyppb.FlowMarker{SrcDc: a.SrcDC, DstDc: a.DstDC},
			HipriRateLimitBps: a.HipriBps,
			LopriRateLimitBps: a.LopriBps,
		})
	}
	return bundle
}

// DCMapConfig converts the YAML dcMap section.
func (fc *FileConfig) DCMapConfig() *heyppb.DCMapConfig {
	config := &heyppb.DCMapConfig{}
	for _, e := range fc.DCMap {
		config.Entries = append(config.Entries, &heyppb.DCMapEntry{HostAddr: e.HostAddr, Dc: e.DC})
	}
	return config
}
