package commands

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/querykit/internal/config"
	"github.com/satishbabariya/querykit/internal/database"
	"github.com/satishbabariya/querykit/internal/debug"
	"github.com/satishbabariya/querykit/query/cache"
	"github.com/satishbabariya/querykit/query/dialect"
	"github.com/satishbabariya/querykit/query/executor"
	"github.com/satishbabariya/querykit/query/loader"
	"github.com/satishbabariya/querykit/query/schema"
	"github.com/satishbabariya/querykit/runtime/client"
)

// dialects is shared by every command.
var dialects = dialect.NewRegistry()

// loadDefinitions reads the configured definitions path.
func loadDefinitions(cfg *config.Config) ([]*schema.Definition, error) {
	if cfg.Definitions == "" {
		return nil, usageError(errors.New("no definitions path configured"))
	}
	l := loader.New(config.AppFs, loader.NewFunctions()).
		PageDefaults(cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize)
	return l.LoadPath(cfg.Definitions)
}

// strategy resolves the configured dialect. An empty dialect falls back to
// the provider's, then to the default strategy.
func strategy(cfg *config.Config) (dialect.Strategy, error) {
	name := cfg.Dialect
	if name == "" && cfg.Database.URL != "" {
		if p, err := provider(cfg); err == nil {
			name = p.Dialect
		}
	}
	if name == "" {
		name = dialect.DefaultName
	}
	s, ok := dialects.Resolve(name)
	if !ok {
		return nil, usageError(fmt.Errorf("unknown dialect %q (available: %v)", name, dialects.Names()))
	}
	return s, nil
}

func provider(cfg *config.Config) (database.Provider, error) {
	if cfg.Database.Provider != "" {
		return database.LookupProvider(cfg.Database.Provider)
	}
	return database.DetectProvider(cfg.Database.URL)
}

// session bundles what a command needs to run queries.
type session struct {
	registry *client.Registry
	pool     *database.Pool
}

func (s *session) Close() error {
	var errs []error
	if err := s.registry.Executor().Close(); err != nil {
		errs = append(errs, err)
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	return errors.Join(errs...)
}

// openSession loads the definitions and, when connect is set, opens the
// database. Without a connection the registry can only explain queries.
func openSession(cfg *config.Config, connect bool) (*session, error) {
	defs, err := loadDefinitions(cfg)
	if err != nil {
		return nil, err
	}
	strat, err := strategy(cfg)
	if err != nil {
		return nil, err
	}

	var (
		pool *database.Pool
		db   executor.Querier
	)
	if connect {
		if cfg.Database.URL == "" {
			return nil, usageError(errors.New("no database url configured (set database.url or DATABASE_URL)"))
		}
		pool, err = database.Open(cfg.Database.Provider, cfg.Database.URL, database.Config{
			MaxOpenConns:        cfg.Database.MaxOpenConns,
			MaxIdleConns:        cfg.Database.MaxIdleConns,
			ConnMaxLifetime:     cfg.Database.ConnMaxLifetime,
			HealthCheckInterval: cfg.Database.HealthCheckInterval,
		})
		if err != nil {
			return nil, usageError(err)
		}
		db = pool
	}

	opts := []executor.Option{
		executor.WithStrategy(strat),
		executor.WithMetadataCache(cache.NewMetadataCache(cfg.Cache.MetadataSize)),
		executor.WithDefaultTimeout(cfg.Query.Timeout),
		executor.WithLogger(debug.Logger()),
		executor.WithMiddleware(executor.LoggingMiddleware(debug.Logger())),
	}
	if cfg.Cache.ResultSize > 0 {
		opts = append(opts, executor.WithResultCache(cache.NewResultCache(cfg.Cache.ResultSize, cfg.Cache.ResultTTL)))
	}

	reg := client.NewRegistry(executor.New(db, opts...))
	if err := reg.RegisterAll(defs...); err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	return &session{registry: reg, pool: pool}, nil
}
