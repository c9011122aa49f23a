// Tests for shape manifest parsing.

package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/maruel/csvdb/internal/csvdb"
	"github.com/maruel/csvdb/internal/kv"
)

const taskManifest = `
version: 1
shapes:
  - name: task
    primary_key: id
    fields:
      - {name: id, type: string}
      - {name: title, type: string, description: Task title}
      - {name: done, type: bool}
      - {name: due, type: datetime_immutable}
      - {name: score, type: int|float}
      - {name: notes}
`

func TestParseManifestBytes(t *testing.T) {
	m, err := ParseManifestBytes([]byte(taskManifest))
	if err != nil {
		t.Fatalf("ParseManifestBytes failed: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("expected version 1, got %d", m.Version)
	}
	if len(m.Shapes) != 1 {
		t.Fatalf("expected 1 shape, got %d", len(m.Shapes))
	}
	s := m.Shapes[0]
	if s.Name != "task" || s.PrimaryKey != "id" || len(s.Fields) != 6 {
		t.Errorf("shape = %+v", s)
	}
	if s.Fields[1].Description != "Task title" {
		t.Errorf("description = %q", s.Fields[1].Description)
	}

	shapes, err := m.Build()
	if err != nil {
		t.Fatal(err)
	}
	task := shapes[0]
	if got := task.Header(); !slices.Equal(got, []string{"id", "title", "done", "due", "score", "notes"}) {
		t.Errorf("Header() = %v", got)
	}
	if f, _ := task.Field("score"); f.Type.String() != "int|float" || !f.Type.IsUnion() {
		t.Errorf("score type = %v", f.Type)
	}
	if f, _ := task.Field("notes"); f.Type.Kind() != csvdb.KindUntyped {
		t.Errorf("notes type = %v", f.Type)
	}
	if task.PrimaryKey() != "id" {
		t.Errorf("PrimaryKey() = %q", task.PrimaryKey())
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"wrong version", "version: 2\nshapes: []\n"},
		{"missing version", "shapes: []\n"},
		{"empty shape name", "version: 1\nshapes:\n  - fields: [{name: a}]\n"},
		{"duplicate shape", "version: 1\nshapes:\n  - {name: a, fields: [{name: x}]}\n  - {name: a, fields: [{name: x}]}\n"},
		{"no fields", "version: 1\nshapes:\n  - name: a\n"},
		{"empty field name", "version: 1\nshapes:\n  - {name: a, fields: [{type: int}]}\n"},
		{"duplicate field", "version: 1\nshapes:\n  - {name: a, fields: [{name: x}, {name: x}]}\n"},
		{"bad primary key", "version: 1\nshapes:\n  - {name: a, primary_key: y, fields: [{name: x}]}\n"},
		{"not yaml", "version: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifestBytes([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseManifest(t *testing.T) {
	if _, err := ParseManifest(""); !errors.Is(err, ErrNoManifest) {
		t.Errorf("ParseManifest(\"\") = %v, want ErrNoManifest", err)
	}
	if _, err := ParseManifest(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("ParseManifest(missing) succeeded")
	}
	path := filepath.Join(t.TempDir(), "shapes.yaml")
	if err := os.WriteFile(path, []byte(taskManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := ParseManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Shapes) != 1 {
		t.Errorf("expected 1 shape, got %d", len(m.Shapes))
	}
}

func TestManifestRegister(t *testing.T) {
	m, err := ParseManifestBytes([]byte(taskManifest))
	if err != nil {
		t.Fatal(err)
	}
	reg := csvdb.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register succeeded")
	}

	path := filepath.Join(t.TempDir(), "tasks.csv")
	content := "id,title,done,due,score\nt1,Write,yes,2024-01-02,4.5\nt2,Test,0,2024-02-03,\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := csvdb.Open(path, &csvdb.Options{Shape: "task", Registry: reg})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	rec, ok := s.Find(kv.StringKey("t1"))
	if !ok {
		t.Fatal("Find(t1) failed")
	}
	o := rec.(*csvdb.Object)
	if v, _ := o.Get("done"); v != true {
		t.Errorf("done = %v", v)
	}
	// int wins over float in a union.
	if v, _ := o.Get("score"); v != int64(4) {
		t.Errorf("score = %v (%T)", v, v)
	}
	if _, ok := s.Find(kv.StringKey("t2")); !ok {
		t.Error("Find(t2) failed")
	}
}
