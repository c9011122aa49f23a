package csvdb

import (
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type coercion maps a raw CSV cell to the Go value stored in a field.
//
// Single declared type:
//
//	bool                → bool     (empty and "0" are false)
//	int                 → int64    (lenient: "12abc" is 12, garbage is 0)
//	float               → float64  (lenient: "1.5kg" is 1.5, garbage is 0)
//	datetime            → *time.Time, empty or missing is now
//	datetime_immutable  → time.Time,  empty or missing is now
//	anything else       → string, unchanged (nil when missing)
//
// Union type: the first kind of string, int, float, bool, datetime,
// datetime_immutable present in the union is used. A missing cell for a
// date-time candidate is the Unix epoch instead of now. A union with none of
// these kinds is ambiguous.

// epochSentinel is the value of a missing date-time cell in a union field.
const epochSentinel = "1970-01-01 00:00:00"

// timeLayouts are tried in order when parsing date-time cells.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"20060102 150405",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC850,
	time.ANSIC,
	time.DateOnly,
}

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)
)

// Coercer converts raw cells to typed values.
//
// The zero value uses time.Now for date-time defaults.
type Coercer struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Coerce converts tok according to ft using the wall clock.
//
// A nil tok is a missing cell.
func Coerce(tok *string, ft FieldType) (any, error) {
	var c Coercer
	return c.Coerce(tok, ft)
}

// Coerce converts tok according to ft.
//
// A nil tok is a missing cell.
func (c *Coercer) Coerce(tok *string, ft FieldType) (any, error) {
	if !ft.IsUnion() {
		return c.coerceSingle(tok, ft.Kind(), false)
	}
	for _, k := range unionPrecedence {
		if ft.Contains(k) {
			return c.coerceSingle(tok, k, true)
		}
	}
	return nil, &AmbiguousUnionTypeError{Type: ft}
}

func (c *Coercer) coerceSingle(tok *string, k Kind, inUnion bool) (any, error) {
	switch k {
	case KindBool:
		return coerceBool(deref(tok)), nil
	case KindInt:
		return coerceInt(deref(tok)), nil
	case KindFloat:
		return coerceFloat(deref(tok)), nil
	case KindDateTime, KindDateTimeImmutable:
		t, err := c.coerceTime(tok, k, inUnion)
		if err != nil {
			return nil, err
		}
		if k == KindDateTime {
			return &t, nil
		}
		return t, nil
	case KindString:
		if inUnion {
			// A string candidate always produces a string.
			return deref(tok), nil
		}
		fallthrough
	default:
		if tok == nil {
			return nil, nil
		}
		return *tok, nil
	}
}

func (c *Coercer) coerceTime(tok *string, k Kind, inUnion bool) (time.Time, error) {
	var s string
	switch {
	case tok == nil && inUnion:
		s = epochSentinel
	case tok == nil || strings.TrimSpace(*tok) == "":
		return c.now(), nil
	default:
		s = strings.TrimSpace(*tok)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Unix seconds.
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, &TokenError{Token: s, Kind: k}
}

func (c *Coercer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func deref(tok *string) string {
	if tok == nil {
		return ""
	}
	return *tok
}

// coerceBool converts a cell to a bool. Empty and "0" are false, known
// spellings are honored and every other non-empty cell is true.
func coerceBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "0":
		return false
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return true
}

// coerceInt converts a cell to an int64, truncating floats and parsing the
// leading integer of partially numeric text.
func coerceInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return truncate(f)
	}
	if m := leadingFloat.FindString(s); m != "" && strings.ContainsAny(m, ".eE") {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			return truncate(f)
		}
	}
	if m := leadingInt.FindString(s); m != "" {
		if i, err := strconv.ParseInt(m, 10, 64); err == nil {
			return i
		}
		// Out of range.
		if strings.HasPrefix(m, "-") {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return 0
}

func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// coerceFloat converts a cell to a float64, parsing the leading number of
// partially numeric text.
func coerceFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if m := leadingFloat.FindString(s); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			return f
		}
	}
	return 0
}

// formatValue renders a scalar or time value as a CSV cell. The second
// result is false for values that have no cell representation.
func formatValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case time.Time:
		return t.Format(TimeFormat), true
	case *time.Time:
		if t == nil {
			return "", true
		}
		return t.Format(TimeFormat), true
	}
	// Named scalar types, e.g. time.Duration.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	default:
		return "", false
	}
}
