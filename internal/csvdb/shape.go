// Handles shape definition, field types, and reflection-based shape generation.

package csvdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/maruel/csvdb/internal/kv"
)

var (
	timeType    = reflect.TypeFor[time.Time]()
	timePtrType = reflect.TypeFor[*time.Time]()
)

// Field is one column of a shape.
type Field struct {
	Name        string
	Type        FieldType
	Description string

	// index is the struct field index path for reflected shapes.
	index []int
}

// Shape is the declared field layout of object records.
//
// A Shape is immutable once built and can be shared between stores.
type Shape struct {
	name       string
	fields     []Field
	byName     map[string]int
	primaryKey string
	// typ is the struct type for reflected shapes, nil for declared shapes.
	typ reflect.Type
	// factory overrides reflect.New for reflected shapes.
	factory func() any
}

// NewShape returns a declared shape whose records are *Object.
//
// primaryKey is optional; when set it must name one of fields and records
// implement [Identifier].
func NewShape(name string, fields []Field, primaryKey string) (*Shape, error) {
	if name == "" {
		return nil, errors.New("shape name is required")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("shape %q: at least one field is required", name)
	}
	s := &Shape{name: name, primaryKey: primaryKey}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("shape %q: field %d: name is required", name, i)
		}
		f.index = nil
		if err := s.addField(f); err != nil {
			return nil, err
		}
	}
	if primaryKey != "" {
		if _, ok := s.byName[primaryKey]; !ok {
			return nil, fmt.Errorf("shape %q: primary key %q is not a field", name, primaryKey)
		}
	}
	return s, nil
}

// ShapeOf reflects the shape of struct T. Records are *T.
func ShapeOf[T any]() (*Shape, error) {
	return ShapeFromType(reflect.TypeFor[T]())
}

// ShapeFromType reflects the shape of a struct or pointer to struct type.
//
// Field names and order come from the type's JSON Schema: json tags name
// the columns and `jsonschema:"description=..."` tags document them. A
// `csvdb:"..."` tag overrides the field type, e.g. `csvdb:"int|string"`.
func ShapeFromType(t reflect.Type) (*Shape, error) {
	if t == nil {
		return nil, errors.New("type is required")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}
	return reflectShape(strings.ToLower(t.Name()), t)
}

func reflectShape(name string, t reflect.Type) (*Shape, error) {
	byJSON := make(map[string]reflect.StructField)
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() {
			continue
		}
		n := jsonFieldName(&sf)
		if _, ok := byJSON[n]; !ok {
			byJSON[n] = sf
		}
	}
	if len(byJSON) == 0 {
		return nil, fmt.Errorf("shape %q: %s has no exported fields", name, t)
	}

	// Generate JSON Schema from type with inline properties (no $ref).
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema := r.ReflectFromType(t)

	s := &Shape{name: name, typ: t}
	if schema.Properties != nil {
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			sf, ok := byJSON[pair.Key]
			if !ok {
				continue
			}
			ft := fieldTypeOf(sf.Type)
			if tag := sf.Tag.Get("csvdb"); tag != "" {
				ft = ParseFieldType(tag)
			}
			f := Field{Name: pair.Key, Type: ft, Description: pair.Value.Description, index: sf.Index}
			if err := s.addField(f); err != nil {
				return nil, err
			}
		}
	}
	if len(s.fields) == 0 {
		return nil, fmt.Errorf("shape %q: %s has no exported fields", name, t)
	}
	return s, nil
}

func (s *Shape) addField(f Field) error {
	if s.byName == nil {
		s.byName = make(map[string]int)
	}
	if _, ok := s.byName[f.Name]; ok {
		return fmt.Errorf("shape %q: duplicate field %q", s.name, f.Name)
	}
	s.byName[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	return nil
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

// fieldTypeOf maps Go types to field types.
func fieldTypeOf(t reflect.Type) FieldType {
	switch t {
	case timeType:
		return Single(KindDateTimeImmutable)
	case timePtrType:
		return Single(KindDateTime)
	}
	switch t.Kind() {
	case reflect.String:
		return Single(KindString)
	case reflect.Bool:
		return Single(KindBool)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Single(KindInt)
	case reflect.Float32, reflect.Float64:
		return Single(KindFloat)
	case reflect.Interface:
		return Single(KindUntyped)
	case reflect.Pointer:
		if ft := fieldTypeOf(t.Elem()); ft.Kind() != KindOther && ft.Kind() != KindUntyped {
			return ft
		}
	}
	return FieldType{kinds: []Kind{KindOther}, names: []string{t.String()}}
}

// Name returns the shape name.
func (s *Shape) Name() string {
	return s.name
}

// Fields returns the fields in declaration order.
func (s *Shape) Fields() []Field {
	return slices.Clone(s.fields)
}

// Field returns the named field.
func (s *Shape) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Header returns the field names in declaration order.
func (s *Shape) Header() []string {
	out := make([]string, len(s.fields))
	for i := range s.fields {
		out[i] = s.fields[i].Name
	}
	return out
}

// PrimaryKey returns the primary key column of a declared shape, if any.
func (s *Shape) PrimaryKey() string {
	return s.primaryKey
}

// New returns a new empty record of this shape.
func (s *Shape) New() any {
	if s.typ == nil {
		return &Object{shape: s, values: make([]any, len(s.fields))}
	}
	if s.factory != nil {
		return s.factory()
	}
	return reflect.New(s.typ).Interface()
}

// Owns returns true when rec is a record of this shape.
func (s *Shape) Owns(rec any) bool {
	if s.typ == nil {
		o, ok := rec.(*Object)
		return ok && o != nil && o.shape == s
	}
	t := reflect.TypeOf(rec)
	return t == s.typ || t == reflect.PointerTo(s.typ)
}

// get returns the value of field i of rec. Pointers are dereferenced and nil
// pointers are returned as nil.
func (s *Shape) get(rec any, i int) any {
	if s.typ == nil {
		return rec.(*Object).values[i]
	}
	v := reflect.ValueOf(rec)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	fv, err := v.FieldByIndexErr(s.fields[i].index)
	if err != nil {
		// Nil embedded pointer.
		return nil
	}
	for fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface {
		if fv.IsNil() {
			return nil
		}
		if fv.Type() == timePtrType {
			break
		}
		fv = fv.Elem()
	}
	return fv.Interface()
}

// set assigns v to field i of rec.
func (s *Shape) set(rec any, i int, v any) error {
	if s.typ == nil {
		rec.(*Object).values[i] = v
		return nil
	}
	rv := reflect.ValueOf(rec)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("record %T is not addressable", rec)
	}
	fv := rv.Elem()
	for _, x := range s.fields[i].index {
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		fv = fv.Field(x)
	}
	if err := assign(fv, v); err != nil {
		return fmt.Errorf("field %q: %w", s.fields[i].Name, err)
	}
	return nil
}

// assign stores v into dst, allocating pointers and converting between
// numeric kinds.
func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if src.Kind() == dst.Kind() && src.Type().ConvertibleTo(dst.Type()) {
		// Named scalar types, e.g. string into a `type status string` field.
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			dst.SetZero()
			return nil
		}
		return assign(dst, src.Elem().Interface())
	}
	if isNumeric(src.Kind()) && isNumeric(dst.Kind()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", v, dst.Type())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// JSONSchema returns the JSON Schema of one record of this shape.
func (s *Shape) JSONSchema() *jsonschema.Schema {
	out := &jsonschema.Schema{
		Version:              jsonschema.Version,
		Title:                s.name,
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}
	for _, f := range s.fields {
		var p *jsonschema.Schema
		if f.Type.IsUnion() {
			p = &jsonschema.Schema{}
			for _, k := range f.Type.Kinds() {
				p.AnyOf = append(p.AnyOf, kindSchema(k))
			}
		} else {
			p = kindSchema(f.Type.Kind())
		}
		p.Description = f.Description
		out.Properties.Set(f.Name, p)
	}
	if s.primaryKey != "" {
		out.Required = []string{s.primaryKey}
	}
	return out
}

func kindSchema(k Kind) *jsonschema.Schema {
	switch k {
	case KindString:
		return &jsonschema.Schema{Type: "string"}
	case KindInt:
		return &jsonschema.Schema{Type: "integer"}
	case KindFloat:
		return &jsonschema.Schema{Type: "number"}
	case KindBool:
		return &jsonschema.Schema{Type: "boolean"}
	case KindDateTime, KindDateTimeImmutable:
		return &jsonschema.Schema{Type: "string", Format: "date-time"}
	default:
		return &jsonschema.Schema{}
	}
}

// Object is a record of a declared shape.
type Object struct {
	shape  *Shape
	values []any
}

// Shape returns the object's shape.
func (o *Object) Shape() *Shape {
	return o.shape
}

// Get returns the value of the named field.
func (o *Object) Get(name string) (any, bool) {
	i, ok := o.shape.byName[name]
	if !ok {
		return nil, false
	}
	return o.values[i], true
}

// Set assigns the named field. The value is stored as is.
func (o *Object) Set(name string, v any) error {
	i, ok := o.shape.byName[name]
	if !ok {
		return &UnknownFieldError{Shape: o.shape.name, Field: name}
	}
	o.values[i] = v
	return nil
}

// PrimaryKey implements Identifier.
//
// It returns the zero Key when the shape has no primary key; use
// [Object.HasPrimaryKey] to tell.
func (o *Object) PrimaryKey() kv.Key {
	k, _ := o.key()
	return k
}

// HasPrimaryKey returns true when the shape declares a primary key column.
func (o *Object) HasPrimaryKey() bool {
	return o.shape.primaryKey != ""
}

func (o *Object) key() (kv.Key, bool) {
	if o.shape.primaryKey == "" {
		return kv.Key{}, false
	}
	v, _ := o.Get(o.shape.primaryKey)
	return keyOf(v), true
}

// keyOf converts a primary key value to a Key.
func keyOf(v any) kv.Key {
	switch t := v.(type) {
	case kv.Key:
		return t
	case string:
		return kv.ParseKey(t)
	case int64:
		return kv.IntKey(t)
	case int:
		return kv.IntKey(int64(t))
	case nil:
		return kv.StringKey("")
	}
	if s, ok := formatValue(v); ok {
		return kv.ParseKey(s)
	}
	return kv.StringKey(fmt.Sprint(v))
}

// MarshalJSON encodes the object as a JSON object in field order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range o.shape.fields {
		if i != 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// identify returns the record's own key, if it has one.
func identify(rec any) (kv.Key, bool) {
	if o, ok := rec.(*Object); ok {
		return o.key()
	}
	if id, ok := rec.(Identifier); ok {
		return id.PrimaryKey(), true
	}
	return kv.Key{}, false
}
