// Package logging provides structured logging for the Torrpeddo host.
//
// This package wraps Go's log/slog to emit JSON lines with persistent
// attributes. The host logs worker lifecycle, relay drops and boundary
// rejections here; the worker's own stderr is copied in at WARN level so
// operators see backend diagnostics in one place.
//
// # Basic Usage
//
//	logger, err := logging.NewFileLogger("/var/log/torrpeddo/torrpeddo.log", "INFO",
//	    logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	sup := logger.WithComponent("supervisor").WithRunID(runID)
//	sup.Info("worker started", "pid", pid)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"worker started","component":"supervisor","run_id":"...","pid":4242}
//
// # Live Level Changes
//
// All loggers derived from one root share a level. SetLevel on any of them
// takes effect immediately, which is how a config file edit reaches a
// running host:
//
//	logger.SetLevel("DEBUG")
//
// # Log Rotation
//
// NewFileLogger writes through a [RotatingWriter]. Rotated files are named
// torrpeddo.log.1 (newest) to torrpeddo.log.N and are gzip-compressed when
// RotationConfig.Compress is set.
package logging
