package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
)

func writeConfig(tb testing.TB, content string) string {
	path := filepath.Join(tb.TempDir(), "config.toml")
	require.NoError(tb, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfigFile = filepath.Join(t.TempDir(), "missing.toml")
	require.ErrorContains(t, Load(&cfg, nil), "failed to read config file")

	// no file requested
	cfg = DefaultConfig()
	require.NoError(t, Load(&cfg, nil))
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfigFile = writeConfig(t, `
[main]
endpoint = "index.example.com"
fingerprint = "blake3"

[sync]
batch-threshold = 5
submit-timeout = "10s"
restore-on-failure = false

[server]
allowed-origins = "https://a.example.com,https://b.example.com"

[region]
corners = [[45.0, -122.0], [46.0, -123.0]]

[logging]
level = "debug"
sync = "warn"
`)
	require.NoError(t, Load(&cfg, nil))
	require.Equal(t, "index.example.com", cfg.Endpoint)
	require.Equal(t, "blake3", cfg.Fingerprint)
	require.Equal(t, 5, cfg.Sync.BatchThreshold)
	require.Equal(t, 10*time.Second, cfg.Sync.SubmitTimeout)
	require.False(t, cfg.Sync.RestoreOnFailure)
	// untouched values keep their defaults
	require.Equal(t, DefaultConfig().Sync.MaxRetries, cfg.Sync.MaxRetries)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)

	region, err := cfg.Region.Region()
	require.NoError(t, err)
	// corners given in the wrong order are normalized
	require.Equal(t, bounds.NewRegion(
		types.CoordinateFromDegrees(46, -123),
		types.CoordinateFromDegrees(45, -122),
	), region)

	level, err := cfg.Logging.ComponentLevel("sync")
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, level)
	level, err = cfg.Logging.ComponentLevel("client")
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfigFile = writeConfig(t, `
[sync]
batch-treshold = 5
`)
	require.ErrorContains(t, Load(&cfg, nil), "batch-treshold")
}

func TestFlagsOverrideFile(t *testing.T) {
	cfg := DefaultConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "")
	flags.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "")
	flags.StringVar(&cfg.Fingerprint, "fingerprint", cfg.Fingerprint, "")

	path := writeConfig(t, `
[main]
endpoint = "from-file"
fingerprint = "blake3"
`)
	require.NoError(t, flags.Parse([]string{"--config", path, "--endpoint", "from-flag"}))
	require.NoError(t, Load(&cfg, flags))
	require.Equal(t, "from-flag", cfg.Endpoint)
	require.Equal(t, "blake3", cfg.Fingerprint)
	require.Equal(t, path, cfg.ConfigFile)
}

func TestPresets(t *testing.T) {
	require.Equal(t, []string{"local", "testing"}, Presets())

	cfg := DefaultConfig()
	cfg.ConfigFile = writeConfig(t, `
[main]
preset = "testing"

[sync]
batch-threshold = 3
`)
	require.NoError(t, Load(&cfg, nil))
	require.Equal(t, "http://127.0.0.1:8480/", cfg.Endpoint)
	require.True(t, cfg.Region.Unbounded)
	require.Equal(t, 100*time.Millisecond, cfg.Sync.RetryBackoff)
	require.Equal(t, 3, cfg.Sync.BatchThreshold)

	_, err := GetPreset("missing")
	require.ErrorContains(t, err, "not registered")
}

func TestRegion(t *testing.T) {
	region, err := RegionConfig{}.Region()
	require.NoError(t, err)
	require.Equal(t, bounds.Default(), region)

	region, err = RegionConfig{Unbounded: true, Corners: [][2]float64{{1, 1}}}.Region()
	require.NoError(t, err)
	require.True(t, region.IsZero())

	_, err = RegionConfig{Corners: [][2]float64{{1, 1}}}.Region()
	require.ErrorIs(t, err, ErrRegionCorners)

	_, err = RegionConfig{Corners: [][2]float64{{91, 1}, {0, 0}}}.Region()
	require.ErrorContains(t, err, "out of range")
}

func TestNamedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := LoggerConfig{Level: "debug", ServerLoggerLevel: "error"}

	lowest, err := cfg.MinLevel()
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, lowest)

	server, err := cfg.Named(zap.New(core), "server")
	require.NoError(t, err)
	server.Info("dropped")
	server.Error("kept")
	sync, err := cfg.Named(zap.New(core), "sync")
	require.NoError(t, err)
	sync.Debug("kept")

	require.Equal(t, 2, logs.Len())
	require.Equal(t, "server", logs.All()[0].LoggerName)
	require.Equal(t, "sync", logs.All()[1].LoggerName)

	_, err = LoggerConfig{Level: "loud"}.Named(zap.NewNop(), "sync")
	require.Error(t, err)
}
