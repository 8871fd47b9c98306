package hostagent

import (
	"time"
)

// Config is the host-agent process configuration, loaded from the
// environment.
type Config struct {
	// ClusterAgentAddr is the host:port of this cluster's cluster-agent.
	ClusterAgentAddr string `env:"HEYP_CLUSTER_AGENT_ADDR"`
	// DialTimeout bounds the initial dial to the cluster-agent. Failure
	// to connect within it is fatal.
	DialTimeout time.Duration `env:"HEYP_DIAL_TIMEOUT" envDefault:"30s"`
	// HostID is this host's stable 64-bit identity. It must be nonzero
	// and unique within the cluster.
	HostID uint64 `env:"HEYP_HOST_ID"`
	// SrcDC is the datacenter this host lives in. If empty, each flow's
	// source DC is resolved from its source address via the DC map.
	SrcDC string `env:"HEYP_SRC_DC"`
	// Job is an optional job name attached to every reported flow.
	Job string `env:"HEYP_JOB"`
	// Device is the outbound network device rate limits apply to.
	Device string `env:"HEYP_DEVICE" envDefault:"eth0"`
	// MyAddrs lists this host's local addresses. Flows whose source is
	// not listed are ignored by the socket inspector.
	MyAddrs []string `env:"HEYP_MY_ADDRS" envSeparator:","`
	// InformPeriod is how often an InfoBundle is sent upstream.
	InformPeriod time.Duration `env:"HEYP_INFORM_PERIOD" envDefault:"2s"`
	// SnapshotPeriod is how often open sockets are polled.
	SnapshotPeriod time.Duration `env:"HEYP_SNAPSHOT_PERIOD" envDefault:"5s"`
	// UsageHistoryWindow bounds the usage history used for demand
	// prediction.
	UsageHistoryWindow time.Duration `env:"HEYP_USAGE_HISTORY_WINDOW" envDefault:"120s"`
	// DemandMultiplier scales the windowed-max usage into a demand.
	DemandMultiplier float64 `env:"HEYP_DEMAND_MULTIPLIER" envDefault:"1.1"`
	// MinDemandBps floors every demand prediction.
	MinDemandBps int64 `env:"HEYP_MIN_DEMAND_BPS" envDefault:"1048576"`
	// SSBinaryName is the socket inspector binary.
	SSBinaryName string `env:"HEYP_SS_BINARY" envDefault:"ss"`
	// CollectAux enables collection of TCP auxiliary stats.
	CollectAux bool `env:"HEYP_COLLECT_AUX"`
	// DCMapFile is a YAML file listing host-address to datacenter
	// bindings.
	DCMapFile string `env:"HEYP_DC_MAP_FILE"`
	// EnforceOnDevice disables enforcement when false; telemetry still
	// flows.
	EnforceOnDevice bool `env:"HEYP_ENFORCE" envDefault:"true"`
	// LogLevel from more to less verbose: trace, debug, info, warn,
	// error, fatal, panic.
	LogLevel string `env:"HEYP_LOG_LEVEL" envDefault:"info"`
}
