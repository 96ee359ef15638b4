package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/satishbabariya/querykit/internal/debug"
)

// Config holds connection pool configuration.
type Config struct {
	// MaxOpenConns is the maximum number of open connections (0 = unlimited).
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum idle time of a connection.
	ConnMaxIdleTime time.Duration
	// HealthCheckInterval is how often to run health checks.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns sensible default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:        25,
		MaxIdleConns:        5,
		ConnMaxLifetime:     30 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 1 * time.Minute,
	}
}

// Pool manages database connections with lifecycle management. It
// satisfies the executor's Querier, Preparer and TxBeginner interfaces.
type Pool struct {
	db       *sql.DB
	config   Config
	provider Provider

	mu              sync.RWMutex
	failedChecks    int64
	lastHealthCheck time.Time
	lastError       error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens a pool for a connection URL. An empty provider is inferred
// from the URL.
func Open(provider, rawURL string, config Config) (*Pool, error) {
	var (
		p   Provider
		err error
	)
	if provider == "" {
		p, err = DetectProvider(rawURL)
	} else {
		p, err = LookupProvider(provider)
	}
	if err != nil {
		return nil, err
	}
	dsn, err := DataSourceName(p, rawURL)
	if err != nil {
		return nil, err
	}
	pool, err := New(p.Driver, dsn, config)
	if err != nil {
		return nil, err
	}
	pool.provider = p
	return pool, nil
}

// New creates a new connection pool.
func New(driverName, dataSourceName string, config Config) (*Pool, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		db:       db,
		config:   config,
		provider: Provider{Driver: driverName},
		ctx:      ctx,
		cancel:   cancel,
	}

	if config.HealthCheckInterval > 0 {
		pool.wg.Add(1)
		go pool.healthCheckLoop()
	}

	return pool, nil
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Provider returns the provider the pool was opened for.
func (p *Pool) Provider() Provider {
	return p.provider
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dbStats := p.db.Stats()

	return PoolStats{
		MaxOpenConnections: p.config.MaxOpenConns,
		OpenConnections:    dbStats.OpenConnections,
		InUse:              dbStats.InUse,
		Idle:               dbStats.Idle,
		WaitCount:          dbStats.WaitCount,
		WaitDuration:       dbStats.WaitDuration,
		MaxIdleClosed:      dbStats.MaxIdleClosed,
		MaxLifetimeClosed:  dbStats.MaxLifetimeClosed,
		FailedHealthChecks: p.failedChecks,
		LastHealthCheck:    p.lastHealthCheck,
		Healthy:            p.lastError == nil,
	}
}

// PoolStats represents pool statistics.
type PoolStats struct {
	MaxOpenConnections int           `json:"maxOpenConnections"`
	OpenConnections    int           `json:"openConnections"`
	InUse              int           `json:"inUse"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"waitCount"`
	WaitDuration       time.Duration `json:"waitDuration"`
	MaxIdleClosed      int64         `json:"maxIdleClosed"`
	MaxLifetimeClosed  int64         `json:"maxLifetimeClosed"`
	FailedHealthChecks int64         `json:"failedHealthChecks"`
	LastHealthCheck    time.Time     `json:"lastHealthCheck"`
	Healthy            bool          `json:"healthy"`
}

// HealthCheck performs a health check on the connection pool.
func (p *Pool) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)

	p.mu.Lock()
	p.lastHealthCheck = time.Now()
	p.lastError = err
	if err != nil {
		p.failedChecks++
	}
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// healthCheckLoop runs periodic health checks.
func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			if err := p.HealthCheck(ctx); err != nil {
				p.log().Warn("database health check failed", "driver", p.provider.Driver, "error", err)
			}
			cancel()
		}
	}
}

func (p *Pool) log() *slog.Logger {
	return debug.Logger()
}

// Close closes the pool and waits for background routines to finish.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.db.Close()
}

// QueryContext executes a query that returns rows.
func (p *Pool) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

// PrepareContext prepares a statement.
func (p *Pool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return p.db.PrepareContext(ctx, query)
}

// ExecContext executes a statement without returning rows.
func (p *Pool) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction with options.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return p.db.BeginTx(ctx, opts)
}
