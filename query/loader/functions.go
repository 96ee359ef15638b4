package loader

import (
	"fmt"
	"sort"

	"github.com/satishbabariya/querykit/query/schema"
)

// Functions resolves the function names used in definitions files.
type Functions struct {
	converters  map[string]schema.Converter
	calculators map[string]schema.Calculator
	formatters  map[string]schema.Formatter
	processors  map[string]schema.ParamProcessor
	generators  map[string]schema.Generator
	pre         map[string]schema.PreProcessor
	rows        map[string]schema.RowProcessor
	post        map[string]schema.PostProcessor
}

// NewFunctions creates an empty function registry.
func NewFunctions() *Functions {
	return &Functions{
		converters:  make(map[string]schema.Converter),
		calculators: make(map[string]schema.Calculator),
		formatters:  make(map[string]schema.Formatter),
		processors:  make(map[string]schema.ParamProcessor),
		generators:  make(map[string]schema.Generator),
		pre:         make(map[string]schema.PreProcessor),
		rows:        make(map[string]schema.RowProcessor),
		post:        make(map[string]schema.PostProcessor),
	}
}

func (f *Functions) Converter(name string, fn schema.Converter) *Functions {
	f.converters[name] = fn
	return f
}

func (f *Functions) Calculator(name string, fn schema.Calculator) *Functions {
	f.calculators[name] = fn
	return f
}

func (f *Functions) Formatter(name string, fn schema.Formatter) *Functions {
	f.formatters[name] = fn
	return f
}

func (f *Functions) Processor(name string, fn schema.ParamProcessor) *Functions {
	f.processors[name] = fn
	return f
}

func (f *Functions) Generator(name string, fn schema.Generator) *Functions {
	f.generators[name] = fn
	return f
}

func (f *Functions) PreProcessor(name string, fn schema.PreProcessor) *Functions {
	f.pre[name] = fn
	return f
}

func (f *Functions) RowProcessor(name string, fn schema.RowProcessor) *Functions {
	f.rows[name] = fn
	return f
}

func (f *Functions) PostProcessor(name string, fn schema.PostProcessor) *Functions {
	f.post[name] = fn
	return f
}

// Names lists every registered name by category.
func (f *Functions) Names() map[string][]string {
	return map[string][]string{
		"converter":     keys(f.converters),
		"calculator":    keys(f.calculators),
		"formatter":     keys(f.formatters),
		"processor":     keys(f.processors),
		"generator":     keys(f.generators),
		"preProcessor":  keys(f.pre),
		"rowProcessor":  keys(f.rows),
		"postProcessor": keys(f.post),
	}
}

func lookup[T any](m map[string]T, category, name string) (T, error) {
	fn, ok := m[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q", category, name)
	}
	return fn, nil
}

func keys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
