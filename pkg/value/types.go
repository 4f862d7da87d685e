package value

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	// DateLayout is the canonical form of date values.
	DateLayout = "2006-01-02"

	// maxExactFloatInt is the largest integer a float64 represents without rounding.
	maxExactFloatInt = 1 << 53
)

var (
	errNotIntegral = errors.New("value is not integral")
	errOverflow    = errors.New("value overflows int64")
	errPrecision   = errors.New("value cannot be represented without rounding")
)

// Built-in value types.
var (
	Text = MustRegister(NewType("text", Codec{
		Parse:   func(s string) (any, error) { return s, nil },
		Coerce:  coerceText,
		Format:  func(p any) string { return p.(string) },
		Compare: func(a, b any) int { return strings.Compare(a.(string), b.(string)) },
	}))

	Integer = MustRegister(NewType("integer", Codec{
		Parse: func(s string) (any, error) {
			return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		},
		Coerce:      coerceInteger,
		Format:      func(p any) string { return strconv.FormatInt(p.(int64), 10) },
		Compare:     func(a, b any) int { return cmp.Compare(a.(int64), b.(int64)) },
		BlankIsNull: true,
		Numeric:     true,
	}))

	Decimal = MustRegister(NewType("decimal", Codec{
		Parse: func(s string) (any, error) {
			return strconv.ParseFloat(strings.TrimSpace(s), 64)
		},
		Coerce:      coerceDecimal,
		Format:      func(p any) string { return strconv.FormatFloat(p.(float64), 'f', -1, 64) },
		Compare:     func(a, b any) int { return cmp.Compare(a.(float64), b.(float64)) },
		BlankIsNull: true,
		Numeric:     true,
	}))

	Boolean = MustRegister(NewType("boolean", Codec{
		Parse: func(s string) (any, error) {
			return strconv.ParseBool(strings.TrimSpace(s))
		},
		Coerce: func(v any) (any, error) {
			if b, ok := v.(bool); ok {
				return b, nil
			}
			return nil, fmt.Errorf("unsupported kind %T", v)
		},
		Format: func(p any) string { return strconv.FormatBool(p.(bool)) },
		Compare: func(a, b any) int {
			x, y := a.(bool), b.(bool)
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		},
		BlankIsNull: true,
	}))

	Date = MustRegister(NewType("date", Codec{
		Parse: func(s string) (any, error) {
			return time.Parse(DateLayout, strings.TrimSpace(s))
		},
		Coerce: func(v any) (any, error) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("unsupported kind %T", v)
			}
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		},
		Format:      func(p any) string { return p.(time.Time).Format(DateLayout) },
		Compare:     func(a, b any) int { return a.(time.Time).Compare(b.(time.Time)) },
		BlankIsNull: true,
		Temporal:    true,
	}))

	DateTime = MustRegister(NewType("datetime", Codec{
		Parse: func(s string) (any, error) {
			t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
			if err != nil {
				return nil, err
			}
			return t.UTC(), nil
		},
		Coerce: func(v any) (any, error) {
			t, ok := v.(time.Time)
			if !ok {
				return nil, fmt.Errorf("unsupported kind %T", v)
			}
			return t.UTC(), nil
		},
		Format:      func(p any) string { return p.(time.Time).Format(time.RFC3339Nano) },
		Compare:     func(a, b any) int { return a.(time.Time).Compare(b.(time.Time)) },
		BlankIsNull: true,
		Temporal:    true,
	}))

	Binary = MustRegister(NewType("binary", Codec{
		Parse: func(s string) (any, error) {
			return base64.StdEncoding.DecodeString(s)
		},
		Coerce: func(v any) (any, error) {
			b, ok := v.([]byte)
			if !ok {
				return nil, fmt.Errorf("unsupported kind %T", v)
			}
			return bytes.Clone(b), nil
		},
		Format:  func(p any) string { return base64.StdEncoding.EncodeToString(p.([]byte)) },
		Compare: func(a, b any) int { return bytes.Compare(a.([]byte), b.([]byte)) },
	}))

	Locale = MustRegister(NewType("locale", Codec{
		Parse: func(s string) (any, error) {
			return language.Parse(strings.TrimSpace(s))
		},
		Coerce: func(v any) (any, error) {
			t, ok := v.(language.Tag)
			if !ok {
				return nil, fmt.Errorf("unsupported kind %T", v)
			}
			return t, nil
		},
		Format:      func(p any) string { return p.(language.Tag).String() },
		Compare:     func(a, b any) int { return strings.Compare(a.(language.Tag).String(), b.(language.Tag).String()) },
		BlankIsNull: true,
	}))
)

// ForNative returns the type whose payload matches the Go kind of v.
func ForNative(v any) (*Type, error) {
	switch v.(type) {
	case language.Tag:
		return Locale, nil
	case time.Time:
		return DateTime, nil
	case string, fmt.Stringer:
		return Text, nil
	case bool:
		return Boolean, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer, nil
	case float32, float64:
		return Decimal, nil
	case []byte:
		return Binary, nil
	}
	return nil, fmt.Errorf("no value type for %T: %w", v, ErrUnknownType)
}

func coerceText(v any) (any, error) {
	switch v := v.(type) {
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

func coerceInteger(v any) (any, error) {
	switch v := v.(type) {
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, errOverflow
		}
		return int64(u), nil
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return nil, errNotIntegral
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, errOverflow
	}
	return int64(f), nil
}

func coerceDecimal(v any) (any, error) {
	switch v := v.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i > maxExactFloatInt || i < -maxExactFloatInt {
			return nil, errPrecision
		}
		return float64(i), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > maxExactFloatInt {
			return nil, errPrecision
		}
		return float64(u), nil
	}
	return nil, fmt.Errorf("unsupported kind %T", v)
}
