// Package config contains the discoverer configuration definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/indexclient"
	"github.com/portaldiscoverer/discoverer/indexserver"
	"github.com/portaldiscoverer/discoverer/ingest"
	"github.com/portaldiscoverer/discoverer/portalsync"
)

const (
	defaultDataDirName = "discoverer"
	lockFileName       = "LOCK"
	agentDBName        = "agent.sql"
	serverDBName       = "index.sql"
)

// Config defines the top level configuration of the discoverer.
type Config struct {
	BaseConfig `mapstructure:"main"`
	Sync       portalsync.Config  `mapstructure:"sync"`
	Client     indexclient.Config `mapstructure:"client"`
	Ingest     ingest.Config      `mapstructure:"ingest"`
	Server     indexserver.Config `mapstructure:"server"`
	Region     RegionConfig       `mapstructure:"region"`
	Logging    LoggerConfig       `mapstructure:"logging"`
}

// BaseConfig holds options shared by all commands.
type BaseConfig struct {
	ConfigFile string `mapstructure:"config"`
	Preset     string `mapstructure:"preset"`
	DataDir    string `mapstructure:"data-dir"`

	// Endpoint is the base URL of the index service. When empty the agent
	// uses the one saved by a previous run.
	Endpoint string `mapstructure:"endpoint"`

	// Fingerprint names the reference algorithm, sha1 or blake3.
	Fingerprint          string `mapstructure:"fingerprint"`
	FingerprintCacheSize int    `mapstructure:"fingerprint-cache-size"`

	DatabaseConnections     int  `mapstructure:"db-connections"`
	DatabaseLatencyMetering bool `mapstructure:"db-latency-metering"`

	CollectMetrics    bool          `mapstructure:"metrics"`
	MetricsPort       int           `mapstructure:"metrics-port"`
	MetricsPush       string        `mapstructure:"metrics-push"`
	MetricsPushPeriod time.Duration `mapstructure:"metrics-push-period"`

	// ShutdownTimeout bounds the final flush and server shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

// LockFile is held by a running process for the data directory.
func (cfg *BaseConfig) LockFile() string {
	return filepath.Join(cfg.DataDir, lockFileName)
}

// AgentDB is the path of the agent state database.
func (cfg *BaseConfig) AgentDB() string {
	return filepath.Join(cfg.DataDir, agentDBName)
}

// ServerDB is the path of the index server database.
func (cfg *BaseConfig) ServerDB() string {
	return filepath.Join(cfg.DataDir, serverDBName)
}

// RegionConfig is the region of interest of the agent.
type RegionConfig struct {
	// Corners are two opposite corners as [lat, lng] pairs in degrees, in any order.
	Corners [][2]float64 `mapstructure:"corners"`
	// Unbounded accepts observations anywhere. It takes precedence over Corners.
	Unbounded bool `mapstructure:"unbounded"`
}

var ErrRegionCorners = errors.New("region needs exactly two corners")

// Region returns the normalized region. Without corners it is bounds.Default().
func (r RegionConfig) Region() (bounds.Region, error) {
	switch {
	case r.Unbounded:
		return bounds.Region{}, nil
	case len(r.Corners) == 0:
		return bounds.Default(), nil
	case len(r.Corners) != 2:
		return bounds.Region{}, fmt.Errorf("%w: got %d", ErrRegionCorners, len(r.Corners))
	}
	for _, c := range r.Corners {
		if c[0] < -90 || c[0] > 90 || c[1] < -180 || c[1] > 180 {
			return bounds.Region{}, fmt.Errorf("corner %v is out of range", c)
		}
	}
	return bounds.NewRegion(
		types.CoordinateFromDegrees(r.Corners[0][0], r.Corners[0][1]),
		types.CoordinateFromDegrees(r.Corners[1][0], r.Corners[1][1]),
	), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(home, "."+defaultDataDirName)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseConfig: defaultBaseConfig(),
		Sync:       portalsync.DefaultConfig(),
		Client:     indexclient.DefaultConfig(),
		Ingest:     ingest.DefaultConfig(),
		Server:     indexserver.DefaultConfig(),
		Logging:    defaultLoggingConfig(),
	}
}

func defaultBaseConfig() BaseConfig {
	return BaseConfig{
		DataDir:              defaultDataDir(),
		Fingerprint:          "sha1",
		FingerprintCacheSize: 4096,
		DatabaseConnections:  4,
		MetricsPort:          1010,
		MetricsPushPeriod:    time.Minute,
		ShutdownTimeout:      30 * time.Second,
	}
}

// Validate checks values that can not be fixed up by defaults.
func (cfg *Config) Validate() error {
	if _, err := cfg.Region.Region(); err != nil {
		return err
	}
	if cfg.Sync.SubmitBurst < 0 || cfg.Sync.SubmitRate < 0 {
		return errors.New("submit rate and burst must not be negative")
	}
	return nil
}

// LoadConfig reads the config file at path into vip. A missing file is an
// error only when it was asked for explicitly.
func LoadConfig(path string, vip *viper.Viper) error {
	if path == "" {
		return nil
	}
	vip.SetConfigFile(path)
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %w", err)
	}
	return nil
}

// Load fills cfg from the preset, then the config file, then the flags that
// were set explicitly on the command line, in that order of precedence.
func Load(cfg *Config, flags *pflag.FlagSet) error {
	explicit := map[string]string{}
	if flags != nil {
		flags.Visit(func(f *pflag.Flag) {
			explicit[f.Name] = f.Value.String()
		})
	}

	vip := viper.New()
	if err := LoadConfig(cfg.ConfigFile, vip); err != nil {
		return err
	}
	preset := cfg.Preset
	if preset == "" && vip.IsSet("main.preset") {
		preset = vip.GetString("main.preset")
	}
	if preset != "" {
		p, err := GetPreset(preset)
		if err != nil {
			return err
		}
		p.ConfigFile = cfg.ConfigFile
		*cfg = p
	}

	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	if err := vip.Unmarshal(cfg, viper.DecodeHook(hook), withIgnoreUntagged(), withErrorUnused()); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if flags != nil {
		for name, value := range explicit {
			if err := flags.Set(name, value); err != nil {
				return fmt.Errorf("reapply flag %s: %w", name, err)
			}
		}
	}
	return cfg.Validate()
}

func withIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func withErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
