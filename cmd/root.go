package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/portaldiscoverer/discoverer/config"
)

// AddFlags binds the command line flags to cfg and returns the flag set
// they were added to.
func AddFlags(flagSet *pflag.FlagSet, cfg *config.Config) *pflag.FlagSet {
	/** ======================== BaseConfig Flags ========================== **/
	flagSet.StringVarP(&cfg.ConfigFile, "config", "c",
		cfg.ConfigFile, "load configuration from file")
	flagSet.StringVarP(&cfg.Preset, "preset", "p", cfg.Preset,
		fmt.Sprintf("preset overwrites default values of the config. options %s", strings.Join(config.Presets(), ", ")))
	flagSet.StringVarP(&cfg.DataDir, "data-dir", "d",
		cfg.DataDir, "directory holding databases and the lock file")
	flagSet.StringVar(&cfg.Endpoint, "endpoint",
		cfg.Endpoint, "base URL of the index service")
	flagSet.StringVar(&cfg.Fingerprint, "fingerprint",
		cfg.Fingerprint, "reference fingerprint algorithm (sha1, blake3)")
	flagSet.BoolVar(&cfg.CollectMetrics, "metrics",
		cfg.CollectMetrics, "collect metrics")
	flagSet.IntVar(&cfg.MetricsPort, "metrics-port",
		cfg.MetricsPort, "metric server port")
	flagSet.StringVar(&cfg.MetricsPush, "metrics-push",
		cfg.MetricsPush, "push metrics to url")
	flagSet.DurationVar(&cfg.MetricsPushPeriod, "metrics-push-period",
		cfg.MetricsPushPeriod, "push period")

	/** ======================== Logging Flags ========================== **/
	flagSet.StringVar(&cfg.Logging.Level, "log-level",
		cfg.Logging.Level, "default level of all loggers")
	flagSet.StringVar(&cfg.Logging.Encoder, "log-encoder",
		cfg.Logging.Encoder, "log as json or console text")

	/** ======================== Sync Flags ========================== **/
	flagSet.IntVar(&cfg.Sync.BatchThreshold, "batch-threshold",
		cfg.Sync.BatchThreshold, "number of pending portals that triggers a submission")
	flagSet.DurationVar(&cfg.Sync.RefreshInterval, "refresh-interval",
		cfg.Sync.RefreshInterval, "period of index refreshes, zero disables them")
	flagSet.BoolVar(&cfg.Sync.AdoptRemoteRegion, "adopt-remote-region",
		cfg.Sync.AdoptRemoteRegion, "use the search region published by the index service")
	flagSet.StringVar(&cfg.Client.Reporter, "reporter",
		cfg.Client.Reporter, "name credited for submitted portals")
	flagSet.BoolVar(&cfg.Region.Unbounded, "unbounded",
		cfg.Region.Unbounded, "accept observations outside of the configured region")

	/** ======================== Listen Flags ========================== **/
	flagSet.StringVar(&cfg.Ingest.Listen, "ingest-listen",
		cfg.Ingest.Listen, "address of the observation endpoints")
	flagSet.StringVar(&cfg.Server.Listen, "listen",
		cfg.Server.Listen, "address of the index server")
	return flagSet
}
