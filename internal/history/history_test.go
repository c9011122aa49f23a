package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/maruel/csvdb/internal/csvdb"
)

func TestRepo(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, "Test", "test@example.com")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if n, err := r.CommitCount(); err != nil || n != 0 {
		t.Fatalf("CommitCount() = %d, %v", n, err)
	}
	path := filepath.Join(dir, "data.csv")
	write := func(s string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("a\n")
	if err := r.Snapshot(path, "first"); err != nil {
		t.Fatal(err)
	}
	if err := r.Snapshot(path, "unchanged"); err != nil {
		t.Fatal(err)
	}
	if n, _ := r.CommitCount(); n != 1 {
		t.Errorf("CommitCount() = %d, want 1", n)
	}

	write("a\nb\n")
	if err := r.Snapshot(path, "second\n\nbody"); err != nil {
		t.Fatal(err)
	}
	commits, err := r.Log(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 || commits[0].Message != "second" || commits[1].Message != "first" {
		t.Fatalf("Log() = %+v", commits)
	}
	if commits[0].Author != "Test" {
		t.Errorf("Author = %q", commits[0].Author)
	}

	got, err := r.FileAt("HEAD", path)
	if err != nil || string(got) != "a\nb\n" {
		t.Errorf("FileAt(HEAD) = %q, %v", got, err)
	}
	got, err = r.FileAt(commits[1].Hash, path)
	if err != nil || string(got) != "a\n" {
		t.Errorf("FileAt(first) = %q, %v", got, err)
	}

	t.Run("reopen", func(t *testing.T) {
		r2, err := Open(dir, "Other", "other@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if n, _ := r2.CommitCount(); n != 2 {
			t.Errorf("CommitCount() = %d, want 2", n)
		}
	})

	t.Run("outside", func(t *testing.T) {
		if err := r.Snapshot(filepath.Join(t.TempDir(), "x.csv"), "nope"); err == nil {
			t.Error("Snapshot outside the repository succeeded")
		}
	})
}

func TestRepo_Versioner(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, "Test", "test@example.com")
	if err != nil {
		t.Fatal(err)
	}
	var _ csvdb.Versioner = r

	path := filepath.Join(dir, "data.csv")
	s, err := csvdb.Open(path, &csvdb.Options{Versioner: r})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()
	for _, v := range []string{"a", "b"} {
		if _, err := s.Add(v); err != nil {
			t.Fatal(err)
		}
		if err := s.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	// Unchanged content doesn't create a commit.
	if err := s.Commit(); err != nil {
		t.Fatal(err)
	}
	if n, _ := r.CommitCount(); n != 2 {
		t.Errorf("CommitCount() = %d, want 2", n)
	}
}
