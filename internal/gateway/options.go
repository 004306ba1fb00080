package gateway

import (
	"github.com/torrpeddo/torrpeddo/internal/logging"
	"github.com/torrpeddo/torrpeddo/internal/metrics"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics counts clients and, when Config.Metrics is set, serves
// /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithToken fixes the session token instead of generating one.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}
