package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultName is the strategy used for unknown or empty dialect names.
const DefaultName = "oracle11g"

// Registry maps dialect names and aliases to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	aliases    map[string]string
}

// NewRegistry creates a registry pre-loaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		aliases:    make(map[string]string),
	}
	r.mustRegister(RowNum{}, "oracle", "legacy", "rownum")
	r.mustRegister(OffsetFetch{}, "standard", "offset-fetch")
	r.mustRegister(Postgres(), "postgresql", "pg")
	r.mustRegister(MySQL(), "mariadb")
	r.mustRegister(SQLite(), "sqlite3")
	return r
}

func (r *Registry) mustRegister(s Strategy, aliases ...string) {
	if err := r.Register(s, aliases...); err != nil {
		panic(err)
	}
}

// Register adds a strategy under its name and the given aliases. Names are
// case-insensitive.
func (r *Registry) Register(s Strategy, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := normalize(s.Name())
	if name == "" {
		return fmt.Errorf("dialect name is empty")
	}
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("dialect %q is already registered", name)
	}
	for _, a := range aliases {
		if _, exists := r.aliases[normalize(a)]; exists {
			return fmt.Errorf("dialect alias %q is already registered", a)
		}
	}
	r.strategies[name] = s
	for _, a := range aliases {
		r.aliases[normalize(a)] = name
	}
	return nil
}

// Resolve looks up a strategy by name or alias.
func (r *Registry) Resolve(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := normalize(name)
	if target, ok := r.aliases[key]; ok {
		key = target
	}
	s, ok := r.strategies[key]
	return s, ok
}

// Lookup resolves a strategy, falling back to the ROWNUM strategy when the
// name is empty or unknown.
func (r *Registry) Lookup(name string) Strategy {
	if s, ok := r.Resolve(name); ok {
		return s
	}
	s, _ := r.Resolve(DefaultName)
	return s
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns the aliases of a registered strategy, sorted.
func (r *Registry) Aliases(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for alias, target := range r.aliases {
		if target == normalize(name) {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
