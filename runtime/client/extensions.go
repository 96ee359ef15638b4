package client

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/satishbabariya/querykit/query/domain"
)

// Operation names reported to extensions.
const (
	OperationExecute       = "execute"
	OperationExecuteSingle = "executeSingle"
	OperationExecuteAsync  = "executeAsync"
)

// ExtensionContext provides context for extension hooks
type ExtensionContext struct {
	Context   context.Context
	Query     string
	Operation string
	Request   *domain.Context
	Result    *domain.Result // set for AfterExecute
	Error     error          // set for AfterExecute
	Duration  time.Duration
	StartTime time.Time
	EndTime   time.Time
}

// Hook is called before or after an execution.
type Hook func(ctx *ExtensionContext, next func() error) error

// Extension hooks into every execution of a registry.
type Extension struct {
	Name string

	// BeforeExecute may modify the request or abort the execution by
	// returning an error.
	BeforeExecute Hook
	// AfterExecute may inspect or replace the result.
	AfterExecute Hook
}

// ExtensionChain manages a chain of extensions
type ExtensionChain struct {
	mu         sync.RWMutex
	extensions []Extension
}

// NewExtensionChain creates a new extension chain
func NewExtensionChain() *ExtensionChain {
	return &ExtensionChain{}
}

// Add adds an extension to the chain
func (ec *ExtensionChain) Add(ext Extension) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.extensions = append(ec.extensions, ext)
}

// Execute runs exec between the before hooks, in order, and the after hooks,
// in reverse order.
func (ec *ExtensionChain) Execute(ctx context.Context, query, operation string, request *domain.Context, exec func() (*domain.Result, error)) (*domain.Result, error) {
	ec.mu.RLock()
	extensions := slices.Clone(ec.extensions)
	ec.mu.RUnlock()

	extCtx := &ExtensionContext{
		Context:   ctx,
		Query:     query,
		Operation: operation,
		Request:   request,
		StartTime: time.Now(),
	}

	for _, ext := range extensions {
		if ext.BeforeExecute != nil {
			if err := ext.BeforeExecute(extCtx, func() error { return nil }); err != nil {
				return nil, err
			}
		}
	}

	result, err := exec()
	extCtx.Result = result
	extCtx.Error = err
	extCtx.EndTime = time.Now()
	extCtx.Duration = extCtx.EndTime.Sub(extCtx.StartTime)

	for i := len(extensions) - 1; i >= 0; i-- {
		ext := extensions[i]
		if ext.AfterExecute != nil {
			if err := ext.AfterExecute(extCtx, func() error { return nil }); err != nil {
				return extCtx.Result, err
			}
		}
	}

	return extCtx.Result, extCtx.Error
}

// LoggingExtension logs every execution.
func LoggingExtension(logger *slog.Logger) Extension {
	return Extension{
		Name: "logging",
		BeforeExecute: func(ctx *ExtensionContext, next func() error) error {
			logger.Debug("executing query", "query", ctx.Query, "operation", ctx.Operation)
			return next()
		},
		AfterExecute: func(ctx *ExtensionContext, next func() error) error {
			if ctx.Error != nil {
				logger.Error("query failed", "query", ctx.Query, "operation", ctx.Operation, "error", ctx.Error, "duration", ctx.Duration)
			} else {
				logger.Info("query completed", "query", ctx.Query, "operation", ctx.Operation, "rows", ctx.Result.Len(), "duration", ctx.Duration)
			}
			return next()
		},
	}
}

// TimingExtension reports the duration of every execution.
func TimingExtension(onTiming func(query, operation string, duration time.Duration)) Extension {
	return Extension{
		Name: "timing",
		AfterExecute: func(ctx *ExtensionContext, next func() error) error {
			if onTiming != nil {
				onTiming(ctx.Query, ctx.Operation, ctx.Duration)
			}
			return next()
		},
	}
}

// ErrorHandlingExtension reports failed executions.
func ErrorHandlingExtension(onError func(query, operation string, err error)) Extension {
	return Extension{
		Name: "error-handling",
		AfterExecute: func(ctx *ExtensionContext, next func() error) error {
			if ctx.Error != nil && onError != nil {
				onError(ctx.Query, ctx.Operation, ctx.Error)
			}
			return next()
		},
	}
}

// ResultTransformationExtension replaces successful results.
func ResultTransformationExtension(transform func(ctx *ExtensionContext, result *domain.Result) *domain.Result) Extension {
	return Extension{
		Name: "result-transformation",
		AfterExecute: func(ctx *ExtensionContext, next func() error) error {
			if ctx.Result != nil && transform != nil {
				ctx.Result = transform(ctx, ctx.Result)
			}
			return next()
		},
	}
}
