package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "worker.stop_timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateGateway()...)
	errors = append(errors, c.validateConsole()...)
	errors = append(errors, c.validateDialog()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidWorkerModes(), c.Worker.Mode) {
		errors = append(errors, ValidationError{
			Field:   "worker.mode",
			Value:   c.Worker.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidWorkerModes(), ", ")),
		})
	}
	if c.Worker.Mode == "source" && strings.TrimSpace(c.Worker.Python) == "" {
		errors = append(errors, ValidationError{
			Field:   "worker.python",
			Value:   c.Worker.Python,
			Message: "is required in source mode",
		})
	}
	if strings.TrimSpace(c.Worker.Script) == "" {
		errors = append(errors, ValidationError{
			Field:   "worker.script",
			Value:   c.Worker.Script,
			Message: "must not be empty",
		})
	}
	if c.Worker.StopTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.stop_timeout_ms",
			Value:   c.Worker.StopTimeoutMs,
			Message: "must be non-negative",
		})
	}

	// the stdout record limit must admit at least one small record
	const minRecordBytes = 1024
	if c.Worker.MaxRecordBytes < minRecordBytes {
		errors = append(errors, ValidationError{
			Field:   "worker.max_record_bytes",
			Value:   c.Worker.MaxRecordBytes,
			Message: fmt.Sprintf("must be at least %d", minRecordBytes),
		})
	}

	return errors
}

func (c *Config) validateGateway() []ValidationError {
	var errors []ValidationError

	if !c.Gateway.Enabled {
		return nil
	}

	host, _, err := net.SplitHostPort(c.Gateway.Addr)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "gateway.addr",
			Value:   c.Gateway.Addr,
			Message: "must be host:port",
		})
	} else if !isLoopback(host) {
		errors = append(errors, ValidationError{
			Field:   "gateway.addr",
			Value:   c.Gateway.Addr,
			Message: "must bind a loopback address",
		})
	}

	if c.Gateway.SendQueue < 1 {
		errors = append(errors, ValidationError{
			Field:   "gateway.send_queue",
			Value:   c.Gateway.SendQueue,
			Message: "must be at least 1",
		})
	}

	return errors
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) validateConsole() []ValidationError {
	const maxLinesLimit = 100000
	if c.Console.MaxLines < 1 || c.Console.MaxLines > maxLinesLimit {
		return []ValidationError{{
			Field:   "console.max_lines",
			Value:   c.Console.MaxLines,
			Message: fmt.Sprintf("must be between 1 and %d", maxLinesLimit),
		}}
	}
	return nil
}

func (c *Config) validateDialog() []ValidationError {
	if !slices.Contains(ValidDialogBackends(), c.Dialog.Backend) {
		return []ValidationError{{
			Field:   "dialog.backend",
			Value:   c.Dialog.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDialogBackends(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
