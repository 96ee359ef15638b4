package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/executor"
	"github.com/satishbabariya/querykit/query/params"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// Execution builds one request against a query definition. Builder methods
// return the receiver; an Execution is not safe for concurrent use, but
// Execute and ExecuteAsync never modify the request, so it can be run
// repeatedly.
type Execution struct {
	reg  *Registry
	exec *executor.Executor
	def  *schema.Definition
	err  error
	qc   *domain.Context
}

func newExecution(reg *Registry, exec *executor.Executor, def *schema.Definition, err error) *Execution {
	if err == nil && def == nil {
		err = errors.New("query definition is nil")
	}
	return &Execution{reg: reg, exec: exec, def: def, err: err, qc: domain.NewContext()}
}

// Definition returns the definition being executed, or nil when the query
// was not found.
func (e *Execution) Definition() *schema.Definition { return e.def }

// Context returns the request being built.
func (e *Execution) Context() *domain.Context { return e.qc }

// WithParam sets a bind parameter. A nil value removes it.
func (e *Execution) WithParam(name string, value any) *Execution {
	e.qc.SetParam(name, value)
	return e
}

// WithParams sets several bind parameters.
func (e *Execution) WithParams(values map[string]any) *Execution {
	for name, value := range values {
		e.qc.SetParam(name, value)
	}
	return e
}

// WithFilter adds a filter.
func (e *Execution) WithFilter(f domain.Filter) *Execution {
	e.qc.AddFilter(f)
	return e
}

// Where adds a filter from an operator and its operands: none for the null
// checks, two for BETWEEN, any number for IN and NOT_IN, one otherwise.
func (e *Execution) Where(attribute string, op domain.Operator, values ...any) *Execution {
	f := domain.Filter{Attribute: attribute, Operator: op}
	switch {
	case op.IsList():
		f.Values = values
	case op == domain.Between && len(values) == 2:
		f.Value, f.Value2 = values[0], values[1]
	case len(values) == 1:
		f.Value = values[0]
	case len(values) > 1:
		f.Values = values
	}
	e.qc.AddFilter(f)
	return e
}

// WithSort adds a sort.
func (e *Execution) WithSort(attribute string, direction domain.SortDirection) *Execution {
	e.qc.AddSort(domain.Sort{Attribute: attribute, Direction: direction})
	return e
}

// WithPagination requests rows [start, end). An end of zero leaves the
// window open, which selects the default page size.
func (e *Execution) WithPagination(start, end int) *Execution {
	e.qc.SetPagination(domain.Window(start, end))
	return e
}

// WithOffset requests limit rows after skipping offset rows.
func (e *Execution) WithOffset(offset, limit int) *Execution {
	e.qc.SetPagination(domain.Page(offset, limit))
	return e
}

// WithSecurity sets the opaque security value seen by security rules and
// conditions.
func (e *Execution) WithSecurity(security any) *Execution {
	e.qc.SetSecurity(security)
	return e
}

// Select includes hidden attributes in the result.
func (e *Execution) Select(attributes ...string) *Execution {
	e.qc.Select(attributes...)
	return e
}

// WithMetadata requests result metadata, including the total row count of
// paginated executions.
func (e *Execution) WithMetadata(include bool) *Execution {
	e.qc.SetIncludeMetadata(include)
	return e
}

// WithCache allows or bypasses the result cache.
func (e *Execution) WithCache(use bool) *Execution {
	e.qc.SetUseCache(use)
	return e
}

// Validate checks parameters, filters, sorts and pagination without
// executing. Unlike Execute, unusable filters and sorts are violations.
func (e *Execution) Validate() error {
	if e.err != nil {
		return e.err
	}
	return params.Validate(e.def, e.qc)
}

// Explain returns the SQL the execution would run.
func (e *Execution) Explain() (*executor.Plan, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.exec == nil {
		return nil, errors.New("client: registry has no executor")
	}
	return e.exec.Explain(e.def, e.qc)
}

// Execute runs the query.
func (e *Execution) Execute(ctx context.Context) (*domain.Result, error) {
	return e.run(ctx, OperationExecute, e.qc.Clone())
}

// ExecuteSingle runs the query and returns its only row. No rows is
// ErrNotFound and more than one is ErrTooManyRows.
func (e *Execution) ExecuteSingle(ctx context.Context) (domain.Row, error) {
	res, err := e.run(ctx, OperationExecuteSingle, e.qc.Clone())
	if err != nil {
		return nil, err
	}
	switch len(res.Rows) {
	case 0:
		return nil, fmt.Errorf("query %q: %w", e.def.Name(), qerrors.ErrNotFound)
	case 1:
		return res.Rows[0], nil
	}
	return nil, fmt.Errorf("query %q returned %d rows: %w", e.def.Name(), len(res.Rows), qerrors.ErrTooManyRows)
}

// AsyncResult is delivered by ExecuteAsync.
type AsyncResult struct {
	Result *domain.Result
	Err    error
}

// ExecuteAsync runs the query on a new goroutine. The channel receives
// exactly one value and is then closed. The request is copied before
// returning, so the builder may be reused immediately.
func (e *Execution) ExecuteAsync(ctx context.Context) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	qc := e.qc.Clone()
	go func() {
		defer close(out)
		res, err := e.run(ctx, OperationExecuteAsync, qc)
		out <- AsyncResult{Result: res, Err: err}
	}()
	return out
}

func (e *Execution) run(ctx context.Context, op string, qc *domain.Context) (*domain.Result, error) {
	if e.err != nil {
		return nil, e.err
	}
	if e.exec == nil {
		return nil, errors.New("client: registry has no executor")
	}
	chain := NewExtensionChain()
	if e.reg != nil {
		chain = e.reg.extensions
	}
	return chain.Execute(ctx, e.def.Name(), op, qc, func() (*domain.Result, error) {
		return e.exec.Execute(ctx, e.def, qc)
	})
}
