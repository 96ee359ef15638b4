package client

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/satishbabariya/querykit/query/domain"
)

// ExecuteInto runs e and decodes its rows into T.
func ExecuteInto[T any](ctx context.Context, e *Execution) ([]T, *domain.Metadata, error) {
	res, err := e.Execute(ctx)
	if err != nil {
		return nil, nil, err
	}
	out, err := Decode[T](res.Rows)
	if err != nil {
		return nil, nil, err
	}
	return out, res.Metadata, nil
}

// Decode maps rows onto structs of type T. Attributes are matched to fields
// by the "query" tag, then the "json" tag, then the field name compared
// case-insensitively. Attributes without a field are ignored.
func Decode[T any](rows []domain.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		v, err := DecodeRow[T](row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// DecodeRow maps one row onto a struct of type T.
func DecodeRow[T any](row domain.Row) (T, error) {
	var result T
	val := reflect.ValueOf(&result).Elem()
	if val.Kind() != reflect.Struct {
		return result, fmt.Errorf("decode: %s is not a struct", val.Type())
	}
	typ := val.Type()

	for name, value := range row {
		field, ok := findFieldByName(typ, name)
		if !ok {
			continue
		}
		if err := assign(val.FieldByIndex(field.Index), value); err != nil {
			return result, fmt.Errorf("attribute %q: %w", name, err)
		}
	}
	return result, nil
}

// findFieldByName finds the exported field for an attribute name.
func findFieldByName(typ reflect.Type, name string) (reflect.StructField, bool) {
	fallback := -1
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, skip := fieldTag(field)
		if skip {
			continue
		}
		if tag == name {
			return field, true
		}
		if fallback < 0 && tag == "" && strings.EqualFold(field.Name, name) {
			fallback = i
		}
	}
	if fallback >= 0 {
		return typ.Field(fallback), true
	}
	return reflect.StructField{}, false
}

// fieldTag returns the attribute name from the "query" tag, or else the
// "json" tag.
func fieldTag(field reflect.StructField) (name string, skip bool) {
	for _, key := range []string{"query", "json"} {
		tag := strings.Split(field.Tag.Get(key), ",")[0]
		if tag == "-" {
			return "", true
		}
		if tag != "" {
			return tag, false
		}
	}
	return "", false
}

var timeType = reflect.TypeOf(time.Time{})

func assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		ptr := reflect.New(dst.Type().Elem())
		if err := assign(ptr.Elem(), value); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil
	}

	src := reflect.ValueOf(value)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}

	var (
		converted any
		err       error
	)
	switch dst.Kind() {
	case reflect.String:
		converted, err = cast.ToStringE(value)
	case reflect.Bool:
		converted, err = cast.ToBoolE(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		converted, err = cast.ToInt64E(value)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		converted, err = cast.ToUint64E(value)
	case reflect.Float32, reflect.Float64:
		converted, err = cast.ToFloat64E(value)
	default:
		if dst.Type() == timeType {
			converted, err = cast.ToTimeE(value)
			break
		}
		return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
	}
	if err != nil {
		return err
	}
	cv := reflect.ValueOf(converted)
	if !cv.Type().ConvertibleTo(dst.Type()) {
		return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
	}
	dst.Set(cv.Convert(dst.Type()))
	return nil
}
