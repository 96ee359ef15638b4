// Package executor runs compiled queries against a database and assembles
// results with pagination metadata.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/satishbabariya/querykit/internal/debug"
	"github.com/satishbabariya/querykit/query/cache"
	"github.com/satishbabariya/querykit/query/compiler"
	"github.com/satishbabariya/querykit/query/dialect"
	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/mapper"
	"github.com/satishbabariya/querykit/query/params"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Preparer is implemented by queriers that can prepare statements.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// CacheKeyer is implemented by security values that can partition the
// result cache. Results for callers whose security value does not implement
// it are never cached.
type CacheKeyer interface {
	CacheKey() string
}

// Executor executes query definitions.
type Executor struct {
	db       Querier
	strategy dialect.Strategy
	compiler *compiler.Compiler
	mapper   *mapper.Mapper
	meta     *cache.MetadataCache
	results  *cache.ResultCache
	logger   *slog.Logger
	timeout  time.Duration

	middlewares []Middleware
	sequential  bool

	stmts *stmtCache
}

// Option configures an Executor.
type Option func(*Executor)

// WithStrategy sets the dialect strategy. The default is the ROWNUM strategy.
func WithStrategy(s dialect.Strategy) Option {
	return func(e *Executor) { e.strategy = s }
}

// WithMetadataCache sets the column-index cache.
func WithMetadataCache(mc *cache.MetadataCache) Option {
	return func(e *Executor) { e.meta = mc }
}

// WithResultCache enables result caching for definitions with a cache policy.
func WithResultCache(rc *cache.ResultCache) Option {
	return func(e *Executor) { e.results = rc }
}

// WithLogger sets the logger used by the executor and its compiler and mapper.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithDefaultTimeout applies to definitions that declare no timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithPreparedStatements caches prepared statements per SQL text. The
// querier must implement Preparer.
func WithPreparedStatements() Option {
	return func(e *Executor) { e.stmts = newStmtCache() }
}

// WithMiddleware appends statement middleware.
func WithMiddleware(m ...Middleware) Option {
	return func(e *Executor) { e.middlewares = append(e.middlewares, m...) }
}

// New creates an executor over db.
func New(db Querier, opts ...Option) *Executor {
	e := &Executor{db: db}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategy == nil {
		e.strategy = dialect.RowNum{}
	}
	if e.meta == nil {
		e.meta = cache.NewMetadataCache(256)
	}
	e.compiler = compiler.New(e.strategy, compiler.WithLogger(e.log()))
	e.mapper = mapper.New(
		mapper.WithMetadataCache(e.meta),
		mapper.WithIgnoredColumns(dialect.PseudoColumns(e.strategy)...),
		mapper.WithLogger(e.log()),
	)
	return e
}

func (e *Executor) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return debug.Logger()
}

// Strategy returns the dialect strategy.
func (e *Executor) Strategy() dialect.Strategy { return e.strategy }

// Compiler returns the compiler bound to the strategy.
func (e *Executor) Compiler() *compiler.Compiler { return e.compiler }

// Mapper returns the row mapper.
func (e *Executor) Mapper() *mapper.Mapper { return e.mapper }

// ResultCache returns the result cache, or nil when caching is off.
func (e *Executor) ResultCache() *cache.ResultCache { return e.results }

// MetadataCache returns the column-index cache.
func (e *Executor) MetadataCache() *cache.MetadataCache { return e.meta }

// Use appends a middleware to the chain. It is not safe to call concurrently
// with Execute.
func (e *Executor) Use(m Middleware) {
	e.middlewares = append(e.middlewares, m)
}

// Close releases cached prepared statements.
func (e *Executor) Close() error {
	if e.stmts != nil {
		return e.stmts.close()
	}
	return nil
}

// Forget drops cached metadata and results of a definition.
func (e *Executor) Forget(name string) {
	e.meta.Forget(name)
	if e.results != nil {
		e.results.Invalidate(name)
	}
}

// Plan is the SQL an execution would run.
type Plan struct {
	Strategy  string             `json:"strategy"`
	SQL       string             `json:"sql"`
	Args      []any              `json:"args"`
	CountSQL  string             `json:"countSql"`
	CountArgs []any              `json:"countArgs"`
	Binds     map[string]any     `json:"binds"`
	Applied   []string           `json:"appliedCriteria"`
	Skipped   []compiler.Skipped `json:"skipped,omitempty"`
	Page      *domain.Pagination `json:"pagination,omitempty"`
	Levels    int                `json:"levels"`
}

// Explain runs the request pipeline up to binding without touching the
// database. qc is not modified.
func (e *Executor) Explain(def *schema.Definition, qc *domain.Context) (*Plan, error) {
	qc = qc.Clone()
	compiled, err := e.prepare(def, qc)
	if err != nil {
		return nil, err
	}
	query, args, err := dialect.Bind(compiled.SQL, compiled.Binds, e.strategy.BindStyle())
	if err != nil {
		return nil, e.execError(def, "bind", compiled.SQL, err)
	}
	countQuery, countArgs, err := dialect.Bind(compiled.CountSQL, compiled.Binds, e.strategy.BindStyle())
	if err != nil {
		return nil, e.execError(def, "bind", compiled.CountSQL, err)
	}
	plan := &Plan{
		Strategy:  e.strategy.Name(),
		SQL:       query,
		Args:      args,
		CountSQL:  countQuery,
		CountArgs: countArgs,
		Binds:     compiled.Binds,
		Applied:   compiled.Applied,
		Skipped:   compiled.Skipped,
		Levels:    compiled.Levels,
	}
	if compiled.Paginated {
		page := compiled.Page
		plan.Page = &page
	}
	return plan, nil
}

// prepare runs pre-processors and the parameter pipeline, checks the
// request and compiles it.
func (e *Executor) prepare(def *schema.Definition, qc *domain.Context) (*compiler.Compiled, error) {
	for i, pre := range def.PreProcessors() {
		if err := pre(qc); err != nil {
			return nil, e.stageError(def, fmt.Sprintf("preprocess %d", i), err)
		}
	}
	if err := params.Run(def, qc); err != nil {
		return nil, err
	}
	if err := params.CheckRequest(def, qc, false); err != nil {
		return nil, err
	}
	compiled, err := e.compiler.Compile(def, qc)
	if err != nil {
		return nil, err
	}
	return compiled, nil
}

// Execute runs def for the request in qc. Parameters in qc are replaced by
// their processed values and the applied criteria are recorded on it.
func (e *Executor) Execute(ctx context.Context, def *schema.Definition, qc *domain.Context) (*domain.Result, error) {
	start := time.Now()
	executionID := uuid.Must(uuid.NewV7()).String()
	logger := e.log().With("query", def.Name(), "execution", executionID)

	compiled, err := e.prepare(def, qc)
	if err != nil {
		return nil, err
	}

	query, args, err := dialect.Bind(compiled.SQL, compiled.Binds, e.strategy.BindStyle())
	if err != nil {
		return nil, e.execError(def, "bind", compiled.SQL, err)
	}

	withCount := qc.IncludeMetadata() && compiled.Paginated
	cacheKey, cacheable := e.cacheKey(def, qc, compiled, withCount)
	if cacheable {
		if hit, ok := e.results.Get(cacheKey); ok {
			logger.Debug("result cache hit")
			out := copyResult(hit)
			if out.Metadata != nil {
				out.Metadata.Cached = true
				out.Metadata.ExecutionID = executionID
				out.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()
			}
			return out, nil
		}
	}

	timeout := def.Timeout()
	if timeout <= 0 {
		timeout = e.timeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var countQuery string
	var countArgs []any
	if withCount {
		countQuery, countArgs, err = dialect.Bind(compiled.CountSQL, compiled.Binds, e.strategy.BindStyle())
		if err != nil {
			return nil, e.execError(def, "bind", compiled.CountSQL, err)
		}
	}

	var (
		rows  []domain.Row
		total int64
	)
	if e.sequential {
		rows, err = e.fetch(runCtx, def, qc, query, args)
		if err == nil && withCount {
			total, err = e.count(runCtx, def, countQuery, countArgs)
		}
	} else {
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error {
			var err error
			rows, err = e.fetch(gctx, def, qc, query, args)
			return err
		})
		if withCount {
			g.Go(func() error {
				var err error
				total, err = e.count(gctx, def, countQuery, countArgs)
				return err
			})
		}
		err = g.Wait()
	}
	if err != nil {
		return nil, e.classify(def, timeout, err)
	}

	result := &domain.Result{Rows: rows}
	for i, post := range def.PostProcessors() {
		if err := post(result, qc); err != nil {
			return nil, e.stageError(def, fmt.Sprintf("postprocess %d", i), err)
		}
	}

	if qc.IncludeMetadata() {
		result.Metadata = &domain.Metadata{
			Pagination:      pageInfo(compiled, len(result.Rows), total, withCount),
			AppliedCriteria: compiled.Applied,
			Attributes:      e.mapper.Attributes(def, qc),
			ExecutionID:     executionID,
		}
	}
	elapsed := time.Since(start)
	if result.Metadata != nil {
		result.Metadata.ExecutionTimeMs = elapsed.Milliseconds()
	}
	if cacheable {
		e.results.Set(cacheKey, copyResult(result), def.CachePolicy().TTL)
	}

	logger.Debug("query executed", "rows", len(result.Rows), "duration", elapsed)
	return result, nil
}

func (e *Executor) fetch(ctx context.Context, def *schema.Definition, qc *domain.Context, query string, args []any) ([]domain.Row, error) {
	var out []domain.Row
	err := e.run(ctx, def, StatementData, query, args, func(ctx context.Context) error {
		rows, err := e.query(ctx, query, args)
		if err != nil {
			return &stmtError{op: "query", sql: query, err: err}
		}
		defer rows.Close()

		out, err = e.mapper.MapRows(def, rows, qc)
		if err != nil {
			return &stmtError{op: "map", sql: query, err: err}
		}
		return nil
	})
	return out, err
}

func (e *Executor) count(ctx context.Context, def *schema.Definition, query string, args []any) (int64, error) {
	var total int64
	err := e.run(ctx, def, StatementCount, query, args, func(ctx context.Context) error {
		rows, err := e.query(ctx, query, args)
		if err != nil {
			return &stmtError{op: "count", sql: query, err: err}
		}
		defer rows.Close()
		if rows.Next() {
			if err := rows.Scan(&total); err != nil {
				return &stmtError{op: "count", sql: query, err: err}
			}
		}
		if err := rows.Err(); err != nil {
			return &stmtError{op: "count", sql: query, err: err}
		}
		return nil
	})
	return total, err
}

func (e *Executor) query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	if e.stmts != nil {
		if p, ok := e.db.(Preparer); ok {
			stmt, err := e.stmts.get(ctx, p, query)
			if err != nil {
				return nil, err
			}
			return stmt.QueryContext(ctx, args...)
		}
	}
	return e.db.QueryContext(ctx, query, args...)
}

// stmtError carries the failing statement out of the error group.
type stmtError struct {
	op  string
	sql string
	err error
}

func (e *stmtError) Error() string { return e.op + ": " + e.err.Error() }
func (e *stmtError) Unwrap() error { return e.err }

func (e *Executor) classify(def *schema.Definition, timeout time.Duration, err error) error {
	op, query := "query", ""
	var se *stmtError
	if errors.As(err, &se) {
		op, query, err = se.op, se.sql, se.err
	}
	if qerrors.IsTimeoutCause(err) {
		e.log().Warn("query timed out", "query", def.Name(), "timeout", timeout)
		return &qerrors.TimeoutError{Query: def.Name(), Timeout: timeout, Cause: err}
	}
	return e.execError(def, op, query, err)
}

func (e *Executor) execError(def *schema.Definition, op, query string, err error) error {
	e.log().Error("query failed", "query", def.Name(), "op", op, "error", err)
	ee := qerrors.NewExecutionError(def.Name(), op, err)
	ee.SQL = query
	return ee
}

// stageError keeps typed errors raised by processors and wraps the rest.
func (e *Executor) stageError(def *schema.Definition, op string, err error) error {
	var (
		ve *qerrors.ValidationError
		se *qerrors.SecurityError
	)
	if errors.As(err, &ve) || errors.As(err, &se) {
		return err
	}
	return e.execError(def, op, "", err)
}

func (e *Executor) cacheKey(def *schema.Definition, qc *domain.Context, c *compiler.Compiled, withCount bool) (string, bool) {
	if e.results == nil || !def.CachePolicy().Enabled || !qc.UseCache() {
		return "", false
	}
	partition := ""
	if sec := qc.Security(); sec != nil {
		keyer, ok := sec.(CacheKeyer)
		if !ok {
			return "", false
		}
		partition = keyer.CacheKey()
	}
	if qc.IncludeMetadata() {
		partition += "\x00meta"
	}
	if selected := qc.Selected(); len(selected) > 0 {
		partition += "\x00select=" + strings.Join(selected, ",")
	}
	countSQL := ""
	if withCount {
		countSQL = c.CountSQL
	}
	return cache.Key(def.Name(), c.SQL, countSQL, c.Binds, partition), true
}

// copyResult copies rows and metadata so cached results are never shared
// with callers.
func copyResult(r *domain.Result) *domain.Result {
	out := &domain.Result{Rows: make([]domain.Row, len(r.Rows))}
	for i, row := range r.Rows {
		out.Rows[i] = maps.Clone(row)
	}
	if r.Metadata != nil {
		md := *r.Metadata
		if md.Pagination != nil {
			page := *md.Pagination
			md.Pagination = &page
		}
		md.AppliedCriteria = slices.Clone(md.AppliedCriteria)
		md.Attributes = slices.Clone(md.Attributes)
		out.Metadata = &md
	}
	return out
}

func pageInfo(c *compiler.Compiled, rows int, total int64, counted bool) *domain.PageInfo {
	if !c.Paginated {
		return &domain.PageInfo{End: rows, Total: int64(rows)}
	}
	info := &domain.PageInfo{
		Start:       c.Page.Start,
		End:         c.Page.End,
		Total:       total,
		HasPrevious: c.Page.Start > 0,
	}
	if c.Page.IsOpen() {
		info.End = info.Start + rows
	}
	if !counted {
		info.Total = int64(info.Start + rows)
	}
	info.HasNext = int64(info.End) < info.Total
	return info
}

// stmtCache holds prepared statements by SQL text.
type stmtCache struct {
	mu    sync.RWMutex
	stmts map[string]*sql.Stmt
}

func newStmtCache() *stmtCache {
	return &stmtCache{stmts: make(map[string]*sql.Stmt)}
}

func (c *stmtCache) get(ctx context.Context, p Preparer, query string) (*sql.Stmt, error) {
	c.mu.RLock()
	stmt, ok := c.stmts[query]
	c.mu.RUnlock()
	if ok {
		return stmt, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if stmt, ok := c.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	c.stmts[query] = stmt
	return stmt, nil
}

func (c *stmtCache) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, stmt := range c.stmts {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.stmts = make(map[string]*sql.Stmt)
	return errors.Join(errs...)
}
