package params

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/satishbabariya/querykit/query/domain"
	"github.com/satishbabariya/querykit/query/schema"
)

// Chain runs processors in order, feeding each the previous output.
func Chain(processors ...schema.ParamProcessor) schema.ParamProcessor {
	return func(value any, ctx *domain.Context) (any, error) {
		var err error
		for _, p := range processors {
			if value, err = p(value, ctx); err != nil {
				return nil, err
			}
		}
		return value, nil
	}
}

// Between rejects numbers outside [lo, hi].
func Between(lo, hi float64) schema.ParamProcessor {
	return func(value any, _ *domain.Context) (any, error) {
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return nil, fmt.Errorf("must be a number: %w", err)
		}
		if f < lo || f > hi {
			return nil, fmt.Errorf("must be between %v and %v", lo, hi)
		}
		return value, nil
	}
}

// MinLength rejects strings shorter than n characters.
func MinLength(n int) schema.ParamProcessor {
	return func(value any, _ *domain.Context) (any, error) {
		if utf8.RuneCountInString(cast.ToString(value)) < n {
			return nil, fmt.Errorf("must be at least %d characters", n)
		}
		return value, nil
	}
}

// MaxLength rejects strings longer than n characters.
func MaxLength(n int) schema.ParamProcessor {
	return func(value any, _ *domain.Context) (any, error) {
		if utf8.RuneCountInString(cast.ToString(value)) > n {
			return nil, fmt.Errorf("must be at most %d characters", n)
		}
		return value, nil
	}
}

// Matches rejects strings that do not match pattern.
func Matches(pattern string) schema.ParamProcessor {
	re := regexp.MustCompile(pattern)
	return func(value any, _ *domain.Context) (any, error) {
		if !re.MatchString(cast.ToString(value)) {
			return nil, fmt.Errorf("must match %s", pattern)
		}
		return value, nil
	}
}

// OneOf rejects values outside the allowed set, compared as strings.
func OneOf(allowed ...string) schema.ParamProcessor {
	return func(value any, _ *domain.Context) (any, error) {
		if !slices.Contains(allowed, cast.ToString(value)) {
			return nil, fmt.Errorf("must be one of %v", allowed)
		}
		return value, nil
	}
}

// Trim removes surrounding whitespace from string values.
func Trim() schema.ParamProcessor {
	return func(value any, _ *domain.Context) (any, error) {
		if s, ok := value.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return value, nil
	}
}

// DaysAgo derives the date n days before today from an integer parameter and
// stores it under target. The original value is kept.
func DaysAgo(target string) schema.ParamProcessor {
	return daysAgo(target, time.Now)
}

func daysAgo(target string, now func() time.Time) schema.ParamProcessor {
	return func(value any, ctx *domain.Context) (any, error) {
		days, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("must be a whole number of days: %w", err)
		}
		if days < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		t := now().AddDate(0, 0, -days)
		ctx.SetParam(target, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()))
		return value, nil
	}
}
