package csvdb

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/maruel/csvdb/internal/kv"
)

type spySession struct {
	calls     []string
	commitErr error
	closeErr  error
}

func (s *spySession) Load() error {
	s.calls = append(s.calls, "load")
	return nil
}

func (s *spySession) Commit() error {
	s.calls = append(s.calls, "commit")
	return s.commitErr
}

func (s *spySession) Close() error {
	s.calls = append(s.calls, "close")
	return s.closeErr
}

func TestHooks(t *testing.T) {
	t.Run("order", func(t *testing.T) {
		spy := &spySession{}
		h := NewHooks(spy)
		if err := h.OnInit(); err != nil {
			t.Fatal(err)
		}
		if err := h.OnDestroy(); err != nil {
			t.Fatal(err)
		}
		if want := []string{"load", "commit", "close"}; !slices.Equal(spy.calls, want) {
			t.Errorf("calls = %v, want %v", spy.calls, want)
		}
	})

	t.Run("close after failed commit", func(t *testing.T) {
		errCommit := errors.New("commit failed")
		errClose := errors.New("close failed")
		spy := &spySession{commitErr: errCommit, closeErr: errClose}
		err := NewHooks(spy).OnDestroy()
		if !errors.Is(err, errCommit) || !errors.Is(err, errClose) {
			t.Errorf("error = %v, want both errors", err)
		}
		if want := []string{"commit", "close"}; !slices.Equal(spy.calls, want) {
			t.Errorf("calls = %v, want %v", spy.calls, want)
		}
	})

	t.Run("store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.csv")
		s, err := New(path, nil)
		if err != nil {
			t.Fatal(err)
		}
		h := NewHooks(s)
		if err := h.OnInit(); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(kv.IntKey(0), struct{}{}); err != nil {
			t.Fatal(err)
		}
		if err := h.OnDestroy(); !errors.Is(err, ErrInvalidRecordShape) {
			t.Errorf("OnDestroy() = %v, want ErrInvalidRecordShape", err)
		}
		if err := s.Commit(); !errors.Is(err, ErrClosed) {
			t.Errorf("store not closed after failed commit: %v", err)
		}
	})
}
