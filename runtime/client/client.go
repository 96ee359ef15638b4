// Package client provides the runtime API of querykit: a registry of query
// definitions and a chainable execution builder.
package client

import (
	"fmt"
	"sort"
	"sync"

	"github.com/satishbabariya/querykit/query/executor"
	"github.com/satishbabariya/querykit/query/qerrors"
	"github.com/satishbabariya/querykit/query/schema"
)

// Registry holds query definitions by name and executes them.
type Registry struct {
	mu         sync.RWMutex
	defs       map[string]*schema.Definition
	exec       *executor.Executor
	extensions *ExtensionChain
}

// NewRegistry creates an empty registry executing through exec.
func NewRegistry(exec *executor.Executor) *Registry {
	return &Registry{
		defs:       make(map[string]*schema.Definition),
		exec:       exec,
		extensions: NewExtensionChain(),
	}
}

// Executor returns the executor used by the registry.
func (r *Registry) Executor() *executor.Executor {
	return r.exec
}

// Extend adds an execution extension.
func (r *Registry) Extend(ext Extension) {
	r.extensions.Add(ext)
}

// Register adds a definition. A name that is already registered is a
// conflict.
func (r *Registry) Register(def *schema.Definition) error {
	if def == nil {
		return fmt.Errorf("register: nil definition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name()]; exists {
		return qerrors.NewConflictError(def.Name())
	}
	r.defs[def.Name()] = def
	return nil
}

// RegisterAll registers every definition, stopping at the first error.
func (r *Registry) RegisterAll(defs ...*schema.Definition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers def and panics on error.
func (r *Registry) MustRegister(def *schema.Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*schema.Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("query %q: %w", name, qerrors.ErrNotFound)
	}
	return def, nil
}

// Unregister removes a definition and its cached metadata and results.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.defs[name]
	delete(r.defs, name)
	r.mu.Unlock()
	if ok && r.exec != nil {
		r.exec.Forget(name)
	}
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every definition. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.defs = make(map[string]*schema.Definition)
	r.mu.Unlock()
	if r.exec != nil {
		for _, name := range names {
			r.exec.Forget(name)
		}
	}
}

// Query starts an execution of a registered query. A missing name is
// reported when the execution runs.
func (r *Registry) Query(name string) *Execution {
	def, err := r.Get(name)
	return newExecution(r, r.exec, def, err)
}

// QueryDefinition starts an execution of an unregistered definition.
func (r *Registry) QueryDefinition(def *schema.Definition) *Execution {
	return newExecution(r, r.exec, def, nil)
}
