package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEncoder defines a log encoder kind.
type LogEncoder = string

const (
	defaultLoggingLevel = zapcore.InfoLevel
	// ConsoleLogEncoder represents logging with plain text.
	ConsoleLogEncoder LogEncoder = "console"
	// JSONLogEncoder represents logging with JSON.
	JSONLogEncoder LogEncoder = "json"
)

// LoggerConfig holds the logging level for each component.
// An empty component level inherits Level.
type LoggerConfig struct {
	Encoder LogEncoder `mapstructure:"log-encoder"`
	Level   string     `mapstructure:"level"`

	SyncLoggerLevel     string `mapstructure:"sync"`
	ClientLoggerLevel   string `mapstructure:"client"`
	IngestLoggerLevel   string `mapstructure:"ingest"`
	ServerLoggerLevel   string `mapstructure:"server"`
	DatabaseLoggerLevel string `mapstructure:"database"`
}

func defaultLoggingConfig() LoggerConfig {
	return LoggerConfig{
		Encoder: ConsoleLogEncoder,
		Level:   defaultLoggingLevel.String(),
	}
}

// ComponentLevel returns the level configured for a component logger.
func (cfg LoggerConfig) ComponentLevel(name string) (zapcore.Level, error) {
	lvl := cfg.Level
	override := map[string]string{
		"sync":     cfg.SyncLoggerLevel,
		"client":   cfg.ClientLoggerLevel,
		"ingest":   cfg.IngestLoggerLevel,
		"server":   cfg.ServerLoggerLevel,
		"database": cfg.DatabaseLoggerLevel,
	}[name]
	if override != "" {
		lvl = override
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return 0, fmt.Errorf("logger %s: %w", name, err)
	}
	return level, nil
}

// Named returns a child of logger for a component, filtered at its configured level.
// The parent should be built at the lowest level in use since children can only raise it.
func (cfg LoggerConfig) Named(logger *zap.Logger, name string) (*zap.Logger, error) {
	level, err := cfg.ComponentLevel(name)
	if err != nil {
		return nil, err
	}
	return logger.Named(name).WithOptions(zap.IncreaseLevel(level)), nil
}

// MinLevel is the lowest level of all components.
func (cfg LoggerConfig) MinLevel() (zapcore.Level, error) {
	lowest := zapcore.FatalLevel
	for _, name := range []string{"", "sync", "client", "ingest", "server", "database"} {
		level, err := cfg.ComponentLevel(name)
		if err != nil {
			return 0, err
		}
		if level < lowest {
			lowest = level
		}
	}
	return lowest, nil
}
