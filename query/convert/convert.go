// Package convert implements the closed table of value kinds supported by
// the query engine and the conversions into them.
package convert

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/spf13/cast"

	"github.com/satishbabariya/querykit/query/qerrors"
)

// Kind is a declared value type of an attribute or parameter.
type Kind int

const (
	// Any passes values through untouched.
	Any Kind = iota
	String
	Integer
	Long
	Float
	Double
	Decimal
	Boolean
	Date
	DateTime
	Time
)

var kindNames = map[Kind]string{
	Any:      "ANY",
	String:   "STRING",
	Integer:  "INTEGER",
	Long:     "LONG",
	Float:    "FLOAT",
	Double:   "DOUBLE",
	Decimal:  "DECIMAL",
	Boolean:  "BOOLEAN",
	Date:     "DATE",
	DateTime: "DATETIME",
	Time:     "TIME",
}

var kindAliases = map[string]Kind{
	"":           Any,
	"object":     Any,
	"text":       String,
	"varchar":    String,
	"varchar2":   String,
	"char":       String,
	"int":        Integer,
	"int32":      Integer,
	"int64":      Long,
	"bigint":     Long,
	"float32":    Float,
	"float64":    Double,
	"number":     Decimal,
	"numeric":    Decimal,
	"bigdecimal": Decimal,
	"bool":       Boolean,
	"timestamp":  DateTime,
	"datetime":   DateTime,
	"localdate":  Date,
	"localtime":  Time,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// ParseKind resolves a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == upper {
			return k, nil
		}
	}
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return Any, fmt.Errorf("%w: unknown kind %q", qerrors.ErrUnsupportedConversion, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Converter converts a non-nil raw value into a kind.
type Converter func(v any) (any, error)

// ConversionError reports a value that could not be converted to a kind.
type ConversionError struct {
	Kind  Kind
	Value any
	Cause error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %v (%T) to %s: %v", e.Value, e.Value, e.Kind, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConversionError) Unwrap() error { return e.Cause }

// TimeLayout is the textual form of Time values.
const TimeLayout = "15:04:05"

var table = map[Kind]Converter{
	Any:      func(v any) (any, error) { return v, nil },
	String:   toString,
	Integer:  toInteger,
	Long:     func(v any) (any, error) { return toWhole(v) },
	Float:    toFloat,
	Double:   func(v any) (any, error) { return cast.ToFloat64E(v) },
	Decimal:  toDecimal,
	Boolean:  toBoolean,
	Date:     toDate,
	DateTime: toDateTime,
	Time:     toTimeOfDay,
}

// Supported reports whether the kind has an entry in the conversion table.
func Supported(k Kind) bool {
	_, ok := table[k]
	return ok
}

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{Any, String, Integer, Long, Float, Double, Decimal, Boolean, Date, DateTime, Time}
}

// To converts v into kind k. Nil converts to nil for every kind.
func To(k Kind, v any) (any, error) {
	conv, ok := table[k]
	if !ok {
		return nil, &ConversionError{Kind: k, Value: v, Cause: qerrors.ErrUnsupportedConversion}
	}
	if v == nil {
		return nil, nil
	}
	if b, isBytes := v.([]byte); isBytes {
		v = string(b)
	}
	out, err := conv(v)
	if err != nil {
		return nil, &ConversionError{Kind: k, Value: v, Cause: err}
	}
	return out, nil
}

func toString(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339), nil
	case *apd.Decimal:
		return t.String(), nil
	}
	return cast.ToStringE(v)
}

func toInteger(v any) (any, error) {
	n, err := toWhole(v)
	if err != nil {
		return nil, err
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("value %d overflows INTEGER", n)
	}
	return int(n), nil
}

// toWhole converts v to an int64. Strings are always read as base 10 and
// floats must carry no fractional part.
func toWhole(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseInt(trimNumeric(t).(string), 10, 64)
	case json.Number:
		return strconv.ParseInt(trimNumeric(string(t)).(string), 10, 64)
	case float32:
		return wholeFloat(float64(t))
	case float64:
		return wholeFloat(t)
	}
	return cast.ToInt64E(v)
}

func wholeFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not a whole number", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v overflows BIGINT", f)
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	return float32(f), nil
}

func toDecimal(v any) (any, error) {
	switch t := v.(type) {
	case *apd.Decimal:
		return t, nil
	case apd.Decimal:
		return &t, nil
	case string:
		d, _, err := apd.NewFromString(strings.TrimSpace(t))
		return d, err
	case json.Number:
		d, _, err := apd.NewFromString(t.String())
		return d, err
	case float32:
		return new(apd.Decimal).SetFloat64(float64(t))
	case float64:
		return new(apd.Decimal).SetFloat64(t)
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, err
	}
	return apd.New(n, 0), nil
}

func toBoolean(v any) (any, error) {
	if s, ok := v.(string); ok {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "Y", "YES", "ON":
			return true, nil
		case "N", "NO", "OFF":
			return false, nil
		}
	}
	return cast.ToBoolE(v)
}

func toDateTime(v any) (any, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	return cast.ToTimeE(v)
}

func toDate(v any) (any, error) {
	t, err := toDateTime(v)
	if err != nil {
		return nil, err
	}
	tt := t.(time.Time)
	return time.Date(tt.Year(), tt.Month(), tt.Day(), 0, 0, 0, 0, tt.Location()), nil
}

var timeLayouts = []string{TimeLayout, "15:04", "15:04:05.999999999"}

func toTimeOfDay(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(TimeLayout), nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.Format(TimeLayout), nil
			}
		}
		if parsed, err := cast.ToTimeE(s); err == nil {
			return parsed.Format(TimeLayout), nil
		}
		return nil, fmt.Errorf("unrecognized time %q", s)
	}
	return nil, fmt.Errorf("unsupported source type %T", v)
}

// trimNumeric drops a zero fractional part so "10.0" converts to an integer.
func trimNumeric(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 && strings.Trim(s[i+1:], "0") == "" {
		return s[:i]
	}
	return s
}
