package group

import (
	"log/slog"
	"time"

	"opgrid/internal/logging"
)

const (
	defaultJoinTimeout     = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	abortDeliveryTimeout   = 2 * time.Second
)

// Option configures the gRPC coordinator and client.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	joinTimeout     time.Duration
	shutdownTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:          logging.NewNop(),
		joinTimeout:     defaultJoinTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// WithLogger sets the logger used for membership and abort diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithJoinTimeout bounds how long ranks wait for the group to assemble.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.joinTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long the coordinator drains in-flight calls.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "group")
	return o
}
