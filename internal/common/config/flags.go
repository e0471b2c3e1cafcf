package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LogLevelFlag implements flag.Value for a slog.Level
type LogLevelFlag slog.Level

func (f *LogLevelFlag) String() string {
	return strings.ToLower(slog.Level(*f).String())
}

func (f *LogLevelFlag) Set(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		*f = LogLevelFlag(slog.LevelDebug)
	case "info":
		*f = LogLevelFlag(slog.LevelInfo)
	case "warn":
		*f = LogLevelFlag(slog.LevelWarn)
	case "error":
		*f = LogLevelFlag(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level %q", value)
	}
	return nil
}

func (f *LogLevelFlag) Level() slog.Level {
	return slog.Level(*f)
}
