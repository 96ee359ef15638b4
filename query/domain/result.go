package domain

// Row is one mapped result row keyed by attribute name.
type Row map[string]any

// Get returns the value stored under an attribute name.
func (r Row) Get(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

// RowView is the read-only view of a partially mapped row handed to
// calculators.
type RowView interface {
	Get(name string) (any, bool)
}

// Result is the outcome of one execution.
type Result struct {
	Rows     []Row     `json:"rows"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Metadata describes how a result was produced.
type Metadata struct {
	Pagination      *PageInfo       `json:"pagination,omitempty"`
	AppliedCriteria []string        `json:"appliedCriteria"`
	Attributes      []AttributeInfo `json:"attributes,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
	ExecutionID     string          `json:"executionId,omitempty"`
	Cached          bool            `json:"cached,omitempty"`
}

// PageInfo reports the window served and, when counted, the total row count.
type PageInfo struct {
	Start       int   `json:"start"`
	End         int   `json:"end"`
	Total       int64 `json:"total"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

// AttributeInfo describes one attribute of the result for the caller.
type AttributeInfo struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Restricted bool     `json:"restricted"`
	Filterable bool     `json:"filterable"`
	Sortable   bool     `json:"sortable"`
	PrimaryKey bool     `json:"primaryKey,omitempty"`
	Virtual    bool     `json:"virtual,omitempty"`
	Operators  []string `json:"operators,omitempty"`
}
