package app

import (
	"strings"

	"github.com/domushq/domus/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	format := cfg.LogFormat
	if cfg.Development && strings.TrimSpace(format) == "" {
		format = "console"
	}
	return logger.Init(level, format)
}
