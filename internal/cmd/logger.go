package cmd

import (
	"github.com/torrpeddo/torrpeddo/internal/config"
	"github.com/torrpeddo/torrpeddo/internal/logging"
)

// newLogger builds the root logger from the logging section.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewFileLogger(cfg.Logging.LogFilePath(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

// watchConfig applies config file edits to a running host. Invalid edits
// are logged and ignored.
func watchConfig(logger *logging.Logger, apply func(*config.Config)) {
	config.Watch(func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload rejected", "error", err)
			return
		}
		apply(cfg)
	})
}
