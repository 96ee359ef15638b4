package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/satishbabariya/querykit/query/schema"
)

// StatementKind tells data statements from count statements.
type StatementKind string

const (
	StatementData  StatementKind = "data"
	StatementCount StatementKind = "count"
)

// QueryEvent represents one statement execution.
type QueryEvent struct {
	Query    string
	Kind     StatementKind
	SQL      string
	Args     []any
	Duration time.Duration
	Error    error
	Start    time.Time
	End      time.Time
}

// Middleware intercepts statement execution. The data and count statements
// of one execution may run concurrently, each with its own event.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// run executes exec through the middleware chain.
func (e *Executor) run(ctx context.Context, def *schema.Definition, kind StatementKind, query string, args []any, exec func(ctx context.Context) error) error {
	event := &QueryEvent{
		Query: def.Name(),
		Kind:  kind,
		SQL:   query,
		Args:  args,
		Start: time.Now(),
	}

	index := 0
	var next func() error
	next = func() error {
		if index >= len(e.middlewares) {
			err := exec(ctx)
			event.End = time.Now()
			event.Duration = event.End.Sub(event.Start)
			event.Error = err
			return err
		}
		m := e.middlewares[index]
		index++
		return m(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs every statement at debug level and failures at
// error level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		logger.DebugContext(ctx, "executing statement", "query", event.Query, "kind", event.Kind, "sql", event.SQL, "args", len(event.Args))
		err := next()
		if err != nil {
			logger.ErrorContext(ctx, "statement failed", "query", event.Query, "kind", event.Kind, "error", err)
		} else {
			logger.DebugContext(ctx, "statement completed", "query", event.Query, "kind", event.Kind, "duration", event.Duration)
		}
		return err
	}
}

// TimingMiddleware reports the duration of every statement.
func TimingMiddleware(onTiming func(query string, kind StatementKind, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Kind, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed statements.
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}
