package indexserver

import "time"

type Config struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
	// MaxBodyBytes limits the size of a submitted batch.
	MaxBodyBytes    int64         `mapstructure:"max-body-bytes"`
	MaxBatchSize    int           `mapstructure:"max-batch-size"`
	LeaderboardSize int           `mapstructure:"leaderboard-size"`
	CacheDir        string        `mapstructure:"cache-dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	// SearchRegion is published with the index as [lng, lat] pairs.
	SearchRegion [][2]float64 `mapstructure:"search-region"`
}

func DefaultConfig() Config {
	return Config{
		Listen:          ":8480",
		AllowedOrigins:  []string{"https://intel.ingress.com", "https://www.ingress.com"},
		MaxBodyBytes:    4 << 20,
		MaxBatchSize:    1000,
		LeaderboardSize: 20,
		CacheDir:        "kml",
		ShutdownTimeout: 10 * time.Second,
	}
}
