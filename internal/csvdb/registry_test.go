package csvdb

import (
	"slices"
	"testing"
)

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", name)
		}
	}()
	f()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("task", func() any { return &task{Title: "untitled"} })
	item, err := NewShape("item", []Field{{Name: "a"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	r.RegisterShape(item)

	if got := r.Names(); !slices.Equal(got, []string{"item", "task"}) {
		t.Errorf("Names() = %v", got)
	}
	s, ok := r.Lookup("task")
	if !ok {
		t.Fatal("Lookup(task) failed")
	}
	if s.Name() != "task" {
		t.Errorf("Name() = %q", s.Name())
	}
	if rec := s.New().(*task); rec.Title != "untitled" {
		t.Errorf("factory not used: %+v", rec)
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup(nope) succeeded")
	}

	t.Run("duplicate", func(t *testing.T) {
		if err := r.Add(item); err == nil {
			t.Error("Add(duplicate) succeeded")
		}
		expectPanic(t, "RegisterShape(duplicate)", func() { r.RegisterShape(item) })
		expectPanic(t, "Register(duplicate)", func() { r.Register("task", func() any { return &task{} }) })
	})

	t.Run("invalid factory", func(t *testing.T) {
		expectPanic(t, "Register(value)", func() { r.Register("v", func() any { return task{} }) })
		expectPanic(t, "Register(nil factory)", func() { r.Register("n", nil) })
		expectPanic(t, "Register(empty name)", func() { r.Register("", func() any { return &task{} }) })
		if err := r.Add(nil); err == nil {
			t.Error("Add(nil) succeeded")
		}
	})

	t.Run("zero value", func(t *testing.T) {
		var z Registry
		if err := z.Add(item); err != nil {
			t.Fatal(err)
		}
		if _, ok := z.Lookup("item"); !ok {
			t.Error("Lookup after Add failed")
		}
	})
}
