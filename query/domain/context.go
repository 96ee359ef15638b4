package domain

import (
	"maps"
	"slices"
	"strings"
)

// Context carries the runtime inputs of one execution: parameter values,
// filters, sorts, the pagination window and the caller's security context.
// A Context belongs to a single call and must not be shared between
// concurrent executions.
type Context struct {
	params   map[string]any
	filters  []Filter
	sorts    []Sort
	page     *Pagination
	security any
	selected map[string]bool

	includeMetadata bool
	useCache        bool

	applied    []string
	appliedSet map[string]bool
}

// NewContext creates an empty execution context.
func NewContext() *Context {
	return &Context{
		params:     make(map[string]any),
		selected:   make(map[string]bool),
		appliedSet: make(map[string]bool),
		useCache:   true,
	}
}

// SetParam sets a parameter value. A nil value removes the parameter.
func (c *Context) SetParam(name string, value any) {
	if value == nil {
		delete(c.params, name)
		return
	}
	c.params[name] = value
}

// Param returns the raw value of a parameter.
func (c *Context) Param(name string) (any, bool) {
	v, ok := c.params[name]
	return v, ok
}

// HasParam reports whether a parameter holds a usable value. Blank strings
// count as absent.
func (c *Context) HasParam(name string) bool {
	v, ok := c.params[name]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Params returns a copy of all parameter values.
func (c *Context) Params() map[string]any {
	return maps.Clone(c.params)
}

// AddFilter appends a filter. The same attribute may be filtered more than once.
func (c *Context) AddFilter(f Filter) {
	c.filters = append(c.filters, f)
}

// Filters returns the filters in the order they were added.
func (c *Context) Filters() []Filter {
	return slices.Clone(c.filters)
}

// HasFilter reports whether any filter targets the attribute.
func (c *Context) HasFilter(attribute string) bool {
	for _, f := range c.filters {
		if f.Attribute == attribute {
			return true
		}
	}
	return false
}

// AddSort appends a sort spec.
func (c *Context) AddSort(s Sort) {
	c.sorts = append(c.sorts, s)
}

// Sorts returns the sort specs in caller order.
func (c *Context) Sorts() []Sort {
	return slices.Clone(c.sorts)
}

// HasSort reports whether any sort spec targets the attribute.
func (c *Context) HasSort(attribute string) bool {
	for _, s := range c.sorts {
		if s.Attribute == attribute {
			return true
		}
	}
	return false
}

// SetPagination sets the requested row window.
func (c *Context) SetPagination(p Pagination) {
	c.page = &p
}

// ClearPagination removes the row window.
func (c *Context) ClearPagination() {
	c.page = nil
}

// Pagination returns the requested row window, if any.
func (c *Context) Pagination() (Pagination, bool) {
	if c.page == nil {
		return Pagination{}, false
	}
	return *c.page, true
}

// SetSecurity stores the caller's opaque security context.
func (c *Context) SetSecurity(security any) {
	c.security = security
}

// Security returns the caller's security context.
func (c *Context) Security() any {
	return c.security
}

// Select explicitly requests attributes, including hidden ones.
func (c *Context) Select(attributes ...string) {
	for _, a := range attributes {
		c.selected[a] = true
	}
}

// IsSelected reports whether the attribute was explicitly requested.
func (c *Context) IsSelected(attribute string) bool {
	return c.selected[attribute]
}

// Selected returns the explicitly requested attributes in sorted order.
func (c *Context) Selected() []string {
	return slices.Sorted(maps.Keys(c.selected))
}

// SetIncludeMetadata toggles the metadata block of the result.
func (c *Context) SetIncludeMetadata(include bool) {
	c.includeMetadata = include
}

// IncludeMetadata reports whether result metadata was requested.
func (c *Context) IncludeMetadata() bool {
	return c.includeMetadata
}

// SetUseCache toggles use of the result cache for this call.
func (c *Context) SetUseCache(use bool) {
	c.useCache = use
}

// UseCache reports whether the result cache may serve this call.
func (c *Context) UseCache() bool {
	return c.useCache
}

// MarkApplied records that a criteria fragment was spliced into the SQL.
func (c *Context) MarkApplied(criteria string) {
	if c.appliedSet[criteria] {
		return
	}
	c.appliedSet[criteria] = true
	c.applied = append(c.applied, criteria)
}

// IsApplied reports whether a criteria fragment has already been spliced
// during the current compilation.
func (c *Context) IsApplied(criteria string) bool {
	return c.appliedSet[criteria]
}

// Applied returns the applied criteria names in application order.
func (c *Context) Applied() []string {
	return slices.Clone(c.applied)
}

// ResetApplied clears the applied criteria bookkeeping.
func (c *Context) ResetApplied() {
	c.applied = nil
	c.appliedSet = make(map[string]bool)
}

// Clone returns a deep enough copy for handing the context to another goroutine.
func (c *Context) Clone() *Context {
	out := &Context{
		params:          maps.Clone(c.params),
		filters:         slices.Clone(c.filters),
		sorts:           slices.Clone(c.sorts),
		security:        c.security,
		selected:        maps.Clone(c.selected),
		includeMetadata: c.includeMetadata,
		useCache:        c.useCache,
		applied:         slices.Clone(c.applied),
		appliedSet:      maps.Clone(c.appliedSet),
	}
	if c.page != nil {
		p := *c.page
		out.page = &p
	}
	return out
}
