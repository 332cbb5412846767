// Package sqlite provides the public API for the SQLite catalog backend.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/catalog/internal/metrics"
	"github.com/mesh-intelligence/catalog/internal/sqlite"
	"github.com/mesh-intelligence/catalog/pkg/types"
)

// Option configures a backend created by NewBackend.
type Option = sqlite.Option

// WithLogger routes backend logs to l.
func WithLogger(l zerolog.Logger) Option {
	return sqlite.WithLogger(l)
}

// WithMetrics registers the backend's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return sqlite.WithMetrics(metrics.New(reg))
}

// NewBackend creates a new SQLite backend instance.
// The backend is not open; call Open with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".catalog",
//	})
//	defer store.Close()
func NewBackend(opts ...Option) types.Store {
	return sqlite.NewBackend(opts...)
}
