package store

import (
	"github.com/adonese/kaos/kaos_fields"
	"github.com/sirupsen/logrus"
)

const defaultBatchSize = 500

// Option configures Store behavior.
type Option func(*StoreOptions)

// StoreOptions carries optional configuration for Store.
type StoreOptions struct {
	Logger    *logrus.Logger
	Clock     kaos_fields.Clock
	BatchSize int
}

func WithLogger(logger *logrus.Logger) Option {
	return func(opts *StoreOptions) {
		opts.Logger = logger
	}
}

// WithClock sets the clock used for created_at columns.
func WithClock(clock kaos_fields.Clock) Option {
	return func(opts *StoreOptions) {
		opts.Clock = clock
	}
}

// WithBatchSize sets how many orbit records go into one insert statement.
func WithBatchSize(n int) Option {
	return func(opts *StoreOptions) {
		if n > 0 {
			opts.BatchSize = n
		}
	}
}
