package loader

// Document is the root of a definitions file.
type Document struct {
	// APIVersion must satisfy SupportedAPIVersions.
	APIVersion string `yaml:"apiVersion"`

	// Queries lists the query definitions in the file.
	Queries []QuerySpec `yaml:"queries"`
}

// QuerySpec declares one query definition. Timeout is in seconds.
type QuerySpec struct {
	Name           string          `yaml:"name"`
	Description    string          `yaml:"description,omitempty"`
	SQL            string          `yaml:"sql"`
	Attributes     []AttributeSpec `yaml:"attributes"`
	Params         []ParamSpec     `yaml:"params,omitempty"`
	Criteria       []CriteriaSpec  `yaml:"criteria,omitempty"`
	PreProcessors  []string        `yaml:"preProcessors,omitempty"`
	RowProcessors  []string        `yaml:"rowProcessors,omitempty"`
	PostProcessors []string        `yaml:"postProcessors,omitempty"`
	PageSize       *PageSizeSpec   `yaml:"pageSize,omitempty"`
	Cache          *CacheSpec      `yaml:"cache,omitempty"`
	Timeout        int             `yaml:"timeout,omitempty"`
	IncludeDynamic bool            `yaml:"includeDynamic,omitempty"`
}

// AttributeSpec declares an attribute. Converter, Calculator and Formatter
// name functions registered in Functions; Security is a condition
// expression that must hold for the caller to see the value.
type AttributeSpec struct {
	Name       string   `yaml:"name"`
	Column     string   `yaml:"column,omitempty"`
	Type       string   `yaml:"type,omitempty"`
	Label      string   `yaml:"label,omitempty"`
	Filterable bool     `yaml:"filterable,omitempty"`
	Sortable   bool     `yaml:"sortable,omitempty"`
	PrimaryKey bool     `yaml:"primaryKey,omitempty"`
	Virtual    bool     `yaml:"virtual,omitempty"`
	Hidden     bool     `yaml:"hidden,omitempty"`
	Operators  []string `yaml:"operators,omitempty"`
	Default    any      `yaml:"default,omitempty"`
	DependsOn  []string `yaml:"dependsOn,omitempty"`
	Converter  string   `yaml:"converter,omitempty"`
	Calculator string   `yaml:"calculator,omitempty"`
	Formatter  string   `yaml:"formatter,omitempty"`
	Security   string   `yaml:"security,omitempty"`
}

// ParamSpec declares a bind parameter. The built-in checks run in the order
// trim, minLength, maxLength, pattern, oneOf, range, daysAgo, and the named
// processor runs last.
type ParamSpec struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type,omitempty"`
	Default     any       `yaml:"default,omitempty"`
	Required    bool      `yaml:"required,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Trim        bool      `yaml:"trim,omitempty"`
	MinLength   *int      `yaml:"minLength,omitempty"`
	MaxLength   *int      `yaml:"maxLength,omitempty"`
	Pattern     string    `yaml:"pattern,omitempty"`
	OneOf       []string  `yaml:"oneOf,omitempty"`
	Range       []float64 `yaml:"range,omitempty"`
	DaysAgo     string    `yaml:"daysAgo,omitempty"`
	Processor   string    `yaml:"processor,omitempty"`
}

// CriteriaSpec declares a criteria fragment. When is a condition expression;
// Generator names a function registered in Functions.
type CriteriaSpec struct {
	Name      string   `yaml:"name"`
	SQL       string   `yaml:"sql,omitempty"`
	Generator string   `yaml:"generator,omitempty"`
	When      string   `yaml:"when,omitempty"`
	Priority  int      `yaml:"priority,omitempty"`
	FindByKey bool     `yaml:"findByKey,omitempty"`
	Params    []string `yaml:"params,omitempty"`
}

// PageSizeSpec sets the default and maximum page sizes.
type PageSizeSpec struct {
	Default int `yaml:"default"`
	Max     int `yaml:"max"`
}

// CacheSpec enables the result cache. TTL is a Go duration string.
type CacheSpec struct {
	TTL string `yaml:"ttl"`
}
