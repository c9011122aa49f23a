package csvdb

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/maruel/csvdb/internal/kv"
)

type task struct {
	ID     string     `json:"id" jsonschema:"description=Task identifier"`
	Title  string     `json:"title"`
	Done   bool       `json:"done"`
	Score  int        `json:"score"`
	Ratio  float64    `json:"ratio,omitempty"`
	Due    time.Time  `json:"due"`
	Seen   *time.Time `json:"seen"`
	Extra  any        `json:"extra" csvdb:"int|string"`
	Note   *string    `json:"note"`
	Skip   string     `json:"-"`
	hidden int
}

func mustShape(t *testing.T) *Shape {
	t.Helper()
	s, err := ShapeOf[task]()
	if err != nil {
		t.Fatalf("ShapeOf failed: %v", err)
	}
	return s
}

func TestShapeOf(t *testing.T) {
	s := mustShape(t)
	if s.Name() != "task" {
		t.Errorf("Name() = %q", s.Name())
	}
	want := []string{"id", "title", "done", "score", "ratio", "due", "seen", "extra", "note"}
	if got := s.Header(); !slices.Equal(got, want) {
		t.Fatalf("Header() = %v, want %v", got, want)
	}
	types := map[string]string{
		"id":    "string",
		"done":  "bool",
		"score": "int",
		"ratio": "float",
		"due":   "datetime_immutable",
		"seen":  "datetime",
		"extra": "int|string",
		"note":  "string",
	}
	for name, wantType := range types {
		f, ok := s.Field(name)
		if !ok {
			t.Errorf("Field(%q) not found", name)
			continue
		}
		if got := f.Type.String(); got != wantType {
			t.Errorf("Field(%q).Type = %q, want %q", name, got, wantType)
		}
	}
	if f, _ := s.Field("id"); f.Description != "Task identifier" {
		t.Errorf("Description = %q", f.Description)
	}
	if _, ok := s.Field("Skip"); ok {
		t.Error("json:\"-\" field was included")
	}

	t.Run("errors", func(t *testing.T) {
		if _, err := ShapeOf[int](); err == nil {
			t.Error("ShapeOf[int] succeeded")
		}
		if _, err := ShapeOf[struct{ x int }](); err == nil {
			t.Error("ShapeOf of struct without exported fields succeeded")
		}
		if _, err := ShapeFromType(nil); err == nil {
			t.Error("ShapeFromType(nil) succeeded")
		}
	})

	t.Run("pointer type", func(t *testing.T) {
		p, err := ShapeOf[*task]()
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(p.Header(), want) {
			t.Errorf("Header() = %v", p.Header())
		}
	})
}

func TestShape_setGet(t *testing.T) {
	s := mustShape(t)
	idx := func(name string) int {
		i, ok := s.byName[name]
		if !ok {
			t.Fatalf("no field %q", name)
		}
		return i
	}
	rec := s.New()
	r, ok := rec.(*task)
	if !ok {
		t.Fatalf("New() = %T", rec)
	}
	seen := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	sets := []struct {
		field string
		v     any
	}{
		{"id", "a"},
		{"score", int64(5)},
		{"ratio", int64(2)},
		{"done", true},
		{"due", seen},
		{"seen", &seen},
		{"extra", int64(9)},
		{"note", "hello"},
	}
	for _, x := range sets {
		if err := s.set(rec, idx(x.field), x.v); err != nil {
			t.Fatalf("set(%s, %v) failed: %v", x.field, x.v, err)
		}
	}
	if r.ID != "a" || r.Score != 5 || r.Ratio != 2 || !r.Done || !r.Due.Equal(seen) || r.Seen != &seen || r.Extra != int64(9) {
		t.Errorf("record = %+v", r)
	}
	if r.Note == nil || *r.Note != "hello" {
		t.Errorf("Note = %v", r.Note)
	}

	if got := s.get(rec, idx("note")); got != "hello" {
		t.Errorf("get(note) = %v", got)
	}
	if got, ok := s.get(rec, idx("seen")).(*time.Time); !ok || got != &seen {
		t.Errorf("get(seen) = %v", got)
	}
	if got := s.get(*r, idx("score")); got != 5 {
		t.Errorf("get(score) on value = %v", got)
	}

	if err := s.set(rec, idx("note"), nil); err != nil || r.Note != nil {
		t.Errorf("set(note, nil) = %v, Note = %v", err, r.Note)
	}
	if got := s.get(rec, idx("note")); got != nil {
		t.Errorf("get(nil note) = %v", got)
	}
	if err := s.set(rec, idx("done"), "yes"); err == nil {
		t.Error("set(done, string) succeeded")
	}
	if err := s.set(*r, idx("done"), true); err == nil {
		t.Error("set on non-pointer succeeded")
	}
}

func TestShape_Owns(t *testing.T) {
	s := mustShape(t)
	if !s.Owns(&task{}) || !s.Owns(task{}) {
		t.Error("Owns(task) = false")
	}
	if s.Owns(&Row{}) || s.Owns("x") || s.Owns(nil) {
		t.Error("Owns(other) = true")
	}
}

func TestNewShape(t *testing.T) {
	fields := []Field{
		{Name: "id", Type: Single(KindString)},
		{Name: "n", Type: ParseFieldType("int|float"), Description: "count"},
	}
	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			shape  string
			fields []Field
			pk     string
		}{
			{"empty name", "", fields, ""},
			{"no fields", "s", nil, ""},
			{"empty field name", "s", []Field{{Type: Single(KindInt)}}, ""},
			{"duplicate field", "s", []Field{{Name: "a"}, {Name: "a"}}, ""},
			{"unknown primary key", "s", fields, "nope"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := NewShape(tt.shape, tt.fields, tt.pk); err == nil {
					t.Error("NewShape succeeded")
				}
			})
		}
	})

	t.Run("Object", func(t *testing.T) {
		s, err := NewShape("item", fields, "id")
		if err != nil {
			t.Fatal(err)
		}
		o, ok := s.New().(*Object)
		if !ok {
			t.Fatalf("New() = %T", s.New())
		}
		if !s.Owns(o) {
			t.Error("Owns(own object) = false")
		}
		if err := o.Set("id", "42"); err != nil {
			t.Fatal(err)
		}
		if err := o.Set("n", int64(3)); err != nil {
			t.Fatal(err)
		}
		var unknown *UnknownFieldError
		if err := o.Set("x", 1); !errors.As(err, &unknown) || unknown.Field != "x" {
			t.Errorf("Set(x) error = %v", err)
		}
		if v, ok := o.Get("n"); !ok || v != int64(3) {
			t.Errorf("Get(n) = %v, %v", v, ok)
		}
		if !o.HasPrimaryKey() || o.PrimaryKey() != kv.IntKey(42) {
			t.Errorf("PrimaryKey() = %v", o.PrimaryKey())
		}
		if k, ok := identify(o); !ok || k != kv.IntKey(42) {
			t.Errorf("identify = %v, %v", k, ok)
		}
		b, err := o.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		if got := string(b); got != `{"id":"42","n":3}` {
			t.Errorf("MarshalJSON() = %s", got)
		}
	})

	t.Run("without primary key", func(t *testing.T) {
		s, err := NewShape("item", fields, "")
		if err != nil {
			t.Fatal(err)
		}
		o := s.New().(*Object)
		if o.HasPrimaryKey() {
			t.Error("HasPrimaryKey() = true")
		}
		if _, ok := identify(o); ok {
			t.Error("identify found a key")
		}
		other, _ := NewShape("item", fields, "")
		if other.Owns(o) {
			t.Error("other shape owns object")
		}
	})
}

func TestShape_JSONSchema(t *testing.T) {
	s, err := NewShape("item", []Field{
		{Name: "id", Type: Single(KindString), Description: "identifier"},
		{Name: "n", Type: ParseFieldType("int|float")},
		{Name: "at", Type: Single(KindDateTime)},
	}, "id")
	if err != nil {
		t.Fatal(err)
	}
	js := s.JSONSchema()
	if js.Title != "item" || js.Type != "object" {
		t.Errorf("schema = %s/%s", js.Title, js.Type)
	}
	if !slices.Equal(js.Required, []string{"id"}) {
		t.Errorf("Required = %v", js.Required)
	}
	var names []string
	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	if !slices.Equal(names, []string{"id", "n", "at"}) {
		t.Errorf("properties = %v", names)
	}
	if p, _ := js.Properties.Get("id"); p.Type != "string" || p.Description != "identifier" {
		t.Errorf("id = %+v", p)
	}
	if p, _ := js.Properties.Get("n"); len(p.AnyOf) != 2 || p.AnyOf[0].Type != "integer" || p.AnyOf[1].Type != "number" {
		t.Errorf("n = %+v", p)
	}
	if p, _ := js.Properties.Get("at"); p.Format != "date-time" {
		t.Errorf("at = %+v", p)
	}
}
