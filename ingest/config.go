package ingest

import "time"

type Config struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
	MaxBodyBytes   int64    `mapstructure:"max-body-bytes"`
	// MaxBatchSize caps the number of observations in a single request or message.
	MaxBatchSize int `mapstructure:"max-batch-size"`
	// StreamRate limits observations per second on a single websocket. Zero disables the limit.
	StreamRate      float64       `mapstructure:"stream-rate"`
	StreamBurst     int           `mapstructure:"stream-burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8481",
		AllowedOrigins:  []string{"https://intel.ingress.com", "https://www.ingress.com"},
		MaxBodyBytes:    1 << 20,
		MaxBatchSize:    500,
		StreamRate:      200,
		StreamBurst:     500,
		ShutdownTimeout: 5 * time.Second,
	}
}
