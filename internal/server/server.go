// Package server composes the process-wide dependencies of a dblayer
// binary.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service
//   - the migrated database pool
//   - the repositories that run on it
//   - the metrics registry the pool reports into
package server

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/uwececa/dblayer/internal/config"
	"github.com/uwececa/dblayer/internal/database"
	loggerPkg "github.com/uwececa/dblayer/internal/logger"
	"github.com/uwececa/dblayer/internal/repository"
)

// Server holds shared resources. It is not an HTTP server.
type Server struct {
	Config *config.Config
	Logger *zerolog.Logger

	// LoggerService holds the New Relic application, which may be nil.
	LoggerService *loggerPkg.LoggerService

	DB *database.Pool

	// Repositories hold the SQL for users and sessions. They run against DB
	// or a transaction begun on it.
	Repositories *repository.Repositories

	// Metrics receives pool statistics and error counts.
	Metrics *prometheus.Registry
}

// New connects to the database, applying pending migrations, and returns
// the container. Extra database options are passed through.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService, opts ...database.Option) (*Server, error) {
	registry := prometheus.NewRegistry()
	opts = append([]database.Option{database.WithMetrics(registry)}, opts...)

	db, err := database.New(ctx, cfg, logger, loggerService, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            db,
		Repositories:  repository.NewRepositories(),
		Metrics:       registry,
	}, nil
}

// Shutdown closes the pool and flushes New Relic.
func (s *Server) Shutdown(_ context.Context) error {
	if s.DB != nil {
		s.DB.Close()
	}
	s.LoggerService.Shutdown()
	return nil
}
