package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/exp/maps"
)

var presets = map[string]func() Config{}

func register(name string, preset func() Config) {
	if _, exists := presets[name]; exists {
		panic(fmt.Sprintf("preset %s already registered", name))
	}
	presets[name] = preset
}

// GetPreset returns the configuration registered under name.
func GetPreset(name string) (Config, error) {
	preset, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("preset %s is not registered. select one from %v", name, Presets())
	}
	return preset(), nil
}

// Presets returns the registered preset names, sorted.
func Presets() []string {
	names := maps.Keys(presets)
	slices.Sort(names)
	return names
}

func init() {
	register("local", localPreset)
	register("testing", testingPreset)
}

// localPreset runs the agent against an index server on the same host.
func localPreset() Config {
	conf := DefaultConfig()
	conf.DataDir = filepath.Join(os.TempDir(), "discoverer")
	conf.Endpoint = "http://127.0.0.1:8480/"
	conf.Server.Listen = "127.0.0.1:8480"
	conf.Server.AllowedOrigins = []string{"*"}
	conf.Ingest.AllowedOrigins = []string{"*"}
	conf.Region.Unbounded = true
	conf.Sync.RefreshInterval = time.Minute
	conf.Logging.Level = "debug"
	return conf
}

// testingPreset keeps every timer short and submits observations one by one.
func testingPreset() Config {
	conf := localPreset()
	conf.Sync.BatchThreshold = 1
	conf.Sync.RetryBackoff = 100 * time.Millisecond
	conf.Sync.SubmitTimeout = 2 * time.Second
	conf.Sync.FetchTimeout = 2 * time.Second
	conf.Sync.RefreshInterval = time.Second
	conf.Client.MaxRequestRetries = 1
	conf.Client.RequestRetryDelay = 10 * time.Millisecond
	conf.Client.RequestTimeout = 2 * time.Second
	conf.ShutdownTimeout = 5 * time.Second
	return conf
}
