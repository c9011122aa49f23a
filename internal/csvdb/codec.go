package csvdb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"
)

// TimeFormat is the layout of time values written to CSV.
const TimeFormat = time.RFC3339

// Codec converts between CSV rows and records.
//
// A Codec without shape decodes scalars and rows. The first object it
// encodes sets its shape.
type Codec struct {
	shape   *Shape
	coercer *Coercer
}

// NewCodec returns a codec for records of shape. shape and coercer may be
// nil.
func NewCodec(shape *Shape, coercer *Coercer) *Codec {
	if coercer == nil {
		coercer = &Coercer{}
	}
	return &Codec{shape: shape, coercer: coercer}
}

// Shape returns the codec's shape, nil if none.
func (c *Codec) Shape() *Shape {
	return c.shape
}

// Header returns the header row of object records, nil without shape.
func (c *Codec) Header() []string {
	if c.shape == nil {
		return nil
	}
	return c.shape.Header()
}

// DecodeRow converts one CSV row to a record.
//
// Without shape, a single-column row is a scalar string and any other row is
// a [Row]. With a shape, each cell is coerced to the type of the field named
// by its header and set on a new record.
func (c *Codec) DecodeRow(headers, row []string) (any, error) {
	if c.shape == nil {
		if len(row) == 1 {
			return row[0], nil
		}
		r := Row{Values: slices.Clone(row)}
		if !slices.Contains(headers, "") {
			r.Columns = slices.Clone(headers)
		}
		return r, nil
	}
	if len(row) > len(headers) {
		return nil, fmt.Errorf("%w: %d cells for %d columns", ErrMalformedFile, len(row), len(headers))
	}
	rec := c.shape.New()
	for i, name := range headers {
		if name == "" {
			continue
		}
		idx, ok := c.shape.byName[name]
		if !ok {
			return nil, &UnknownFieldError{Shape: c.shape.name, Field: name}
		}
		var tok *string
		if i < len(row) {
			tok = &row[i]
		}
		v, err := c.coercer.Coerce(tok, c.shape.fields[idx].Type)
		if err != nil {
			return nil, withField(err, name)
		}
		if err := c.shape.set(rec, idx, v); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// withField annotates coercion errors with the field name.
func withField(err error, name string) error {
	var ambiguous *AmbiguousUnionTypeError
	if errors.As(err, &ambiguous) {
		ambiguous.Field = name
		return ambiguous
	}
	var tok *TokenError
	if errors.As(err, &tok) {
		tok.Field = name
		return tok
	}
	return fmt.Errorf("field %q: %w", name, err)
}

// EncodeRecord converts one record to a CSV row.
//
// Records that are neither scalars, rows nor objects fail with an
// *InvalidRecordShapeError.
func (c *Codec) EncodeRecord(rec any) ([]string, error) {
	switch t := rec.(type) {
	case Row:
		return slices.Clone(t.Values), nil
	case *Row:
		if t != nil {
			return slices.Clone(t.Values), nil
		}
	case []string:
		return slices.Clone(t), nil
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		s, _ := formatValue(t)
		return []string{s}, nil
	}
	if isScalarKind(rec) {
		s, _ := formatValue(rec)
		return []string{s}, nil
	}
	if !isObject(rec) {
		return nil, &InvalidRecordShapeError{Type: fmt.Sprintf("%T", rec)}
	}
	if c.shape == nil {
		if err := c.adopt(rec); err != nil {
			return nil, err
		}
	}
	if !c.shape.Owns(rec) {
		return nil, &InvalidRecordShapeError{Type: fmt.Sprintf("%T, not a %s record", rec, c.shape.name)}
	}
	out := make([]string, len(c.shape.fields))
	for i := range c.shape.fields {
		// Non-scalar values encode as empty cells.
		out[i], _ = formatValue(c.shape.get(rec, i))
	}
	return out, nil
}

func (c *Codec) adopt(rec any) error {
	if o, ok := rec.(*Object); ok {
		c.shape = o.shape
		return nil
	}
	s, err := ShapeFromType(reflect.TypeOf(rec))
	if err != nil {
		return &InvalidRecordShapeError{Type: fmt.Sprintf("%T (%v)", rec, err)}
	}
	c.shape = s
	return nil
}

// isScalarKind returns true for named types whose underlying type is a
// string, bool or number.
func isScalarKind(rec any) bool {
	t := reflect.TypeOf(rec)
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// isObject returns true for *Object, and for structs or non-nil pointers to
// structs other than time.Time.
func isObject(rec any) bool {
	if o, ok := rec.(*Object); ok {
		return o != nil
	}
	t := reflect.TypeOf(rec)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(rec).IsNil() {
			return false
		}
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}
