package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/maruel/ksid"
	"github.com/tidwall/pretty"

	"github.com/maruel/csvdb/internal/csvdb"
	"github.com/maruel/csvdb/internal/history"
	"github.com/maruel/csvdb/internal/kv"
)

type command struct {
	help string
	run  func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"add":    {"Add a record: field=value pairs, or scalar values without -shape", cmdAdd},
	"count":  {"Print the number of records", cmdCount},
	"del":    {"Remove the record at <key>", cmdDel},
	"dump":   {"Print all records as JSON", cmdDump},
	"get":    {"Print the record at <key> as JSON", cmdGet},
	"log":    {"List snapshots of the file, most recent first: [n]", cmdLog},
	"schema": {"Print the JSON schema of -shape", cmdSchema},
	"set":    {"Update fields of the record at <key>: <key> field=value...", cmdSet},
	"stat":   {"Print file and store information", cmdStat},
	"watch":  {"Print the record count each time the file changes", cmdWatch},
}

// app holds the state shared by commands.
type app struct {
	file  string
	shape string
	reg   *csvdb.Registry
	repo  *history.Repo
	out   io.Writer
	color bool
}

func (a *app) options() *csvdb.Options {
	opts := &csvdb.Options{Shape: a.shape, Registry: a.reg}
	if a.repo != nil {
		opts.Versioner = a.repo
	}
	return opts
}

// view runs fn on a loaded store and discards changes.
func (a *app) view(fn func(s *csvdb.Store) error) error {
	s, err := csvdb.Open(a.file, a.options())
	if err != nil {
		return err
	}
	return errors.Join(fn(s), s.Close())
}

// update runs fn on a loaded store and commits when fn succeeds.
func (a *app) update(fn func(s *csvdb.Store) error) error {
	s, err := csvdb.New(a.file, a.options())
	if err != nil {
		return err
	}
	h := csvdb.NewHooks(s)
	if err := h.OnInit(); err != nil {
		return errors.Join(err, s.Close())
	}
	if err := fn(s); err != nil {
		return errors.Join(err, s.Close())
	}
	return h.OnDestroy()
}

func (a *app) printJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = pretty.Pretty(b)
	if a.color {
		b = pretty.Color(b, nil)
	}
	_, err = a.out.Write(b)
	return err
}

func (a *app) lookupShape() (*csvdb.Shape, error) {
	if a.shape == "" {
		return nil, errors.New("-shape is required")
	}
	s, ok := a.reg.Lookup(a.shape)
	if !ok {
		return nil, fmt.Errorf("%w: %q", csvdb.ErrUnknownShape, a.shape)
	}
	return s, nil
}

type entry struct {
	Key   kv.Key `json:"key"`
	Value any    `json:"value"`
}

func cmdDump(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return a.view(func(s *csvdb.Store) error {
		entries := make([]entry, 0, s.Count())
		for k, v := range s.FindAll() {
			entries = append(entries, entry{k, v})
		}
		return a.printJSON(entries)
	})
}

func cmdCount(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return a.view(func(s *csvdb.Store) error {
		_, err := fmt.Fprintln(a.out, s.Count())
		return err
	})
}

func cmdGet(_ context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <key>")
	}
	k := kv.ParseKey(args[0])
	return a.view(func(s *csvdb.Store) error {
		v, ok := s.Find(k)
		if !ok {
			return fmt.Errorf("key %s not found", k)
		}
		return a.printJSON(v)
	})
}

func cmdAdd(_ context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: add field=value... or add value...")
	}
	var rec []any
	if a.shape == "" {
		for _, arg := range args {
			rec = append(rec, arg)
		}
	} else {
		shape, err := a.lookupShape()
		if err != nil {
			return err
		}
		o, ok := shape.New().(*csvdb.Object)
		if !ok {
			return fmt.Errorf("shape %q is not declarative", shape.Name())
		}
		if err := assign(o, args); err != nil {
			return err
		}
		rec = append(rec, o)
	}
	return a.update(func(s *csvdb.Store) error {
		for _, r := range rec {
			if o, ok := r.(*csvdb.Object); ok {
				if err := generateKey(s, o); err != nil {
					return err
				}
			}
			k, err := s.Add(r)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(a.out, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// generateKey fills an unset primary key: a ksid for string and untyped keys,
// the next unused integer for int keys.
func generateKey(s *csvdb.Store, o *csvdb.Object) error {
	pk := o.Shape().PrimaryKey()
	if pk == "" {
		return nil
	}
	if v, _ := o.Get(pk); v != nil && v != "" {
		return nil
	}
	f, _ := o.Shape().Field(pk)
	switch {
	case f.Type.Contains(csvdb.KindString) || f.Type.Kind() == csvdb.KindUntyped:
		return o.Set(pk, ksid.NewID().String())
	case f.Type.Contains(csvdb.KindInt):
		next := int64(1)
		for k := range s.FindAll() {
			if i, ok := k.Int(); ok && i >= next {
				next = i + 1
			}
		}
		return o.Set(pk, next)
	default:
		return fmt.Errorf("primary key %q of type %s is required", pk, f.Type)
	}
}

func cmdSet(_ context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <key> field=value...")
	}
	k := kv.ParseKey(args[0])
	return a.update(func(s *csvdb.Store) error {
		v, ok := s.Find(k)
		if !ok {
			return fmt.Errorf("key %s not found", k)
		}
		o, ok := v.(*csvdb.Object)
		if !ok {
			return fmt.Errorf("record %s is a %T, not an object", k, v)
		}
		if pk := o.Shape().PrimaryKey(); pk != "" {
			for _, arg := range args[1:] {
				if name, _, _ := strings.Cut(arg, "="); name == pk {
					return fmt.Errorf("cannot change primary key %q", pk)
				}
			}
		}
		if err := assign(o, args[1:]); err != nil {
			return err
		}
		s.Replace(k, o)
		return nil
	})
}

func cmdDel(_ context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: del <key>")
	}
	k := kv.ParseKey(args[0])
	return a.update(func(s *csvdb.Store) error {
		if !s.Remove(k) {
			return fmt.Errorf("key %s not found", k)
		}
		return nil
	})
}

func cmdSchema(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	shape, err := a.lookupShape()
	if err != nil {
		return err
	}
	return a.printJSON(shape.JSONSchema())
}

func cmdStat(_ context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return a.view(func(s *csvdb.Store) error {
		fmt.Fprintf(a.out, "path:     %s\n", s.Path())
		fmt.Fprintf(a.out, "size:     %s\n", humanize.Bytes(uint64(max(s.Size(), 0))))
		if fi, err := os.Stat(s.Path()); err == nil {
			fmt.Fprintf(a.out, "modified: %s\n", humanize.Time(fi.ModTime()))
		}
		fmt.Fprintf(a.out, "records:  %s\n", humanize.Comma(int64(s.Count())))
		if sh := s.Shape(); sh != nil {
			fmt.Fprintf(a.out, "shape:    %s\n", sh.Name())
		}
		_, err := fmt.Fprintf(a.out, "header:   %s\n", strings.Join(s.Header(), ","))
		return err
	})
}

func cmdLog(_ context.Context, a *app, args []string) error {
	if a.repo == nil {
		return errors.New("-git is required")
	}
	n := 20
	switch len(args) {
	case 0:
	case 1:
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid count %q: %w", args[0], err)
		}
	default:
		return errors.New("usage: log [n]")
	}
	commits, err := a.repo.Log(a.file, n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if _, err := fmt.Fprintf(a.out, "%.8s  %-16s  %s\n", c.Hash, humanize.Time(c.Date), c.Message); err != nil {
			return err
		}
	}
	return nil
}

func cmdWatch(ctx context.Context, a *app, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	if a.file == csvdb.MemoryPath {
		return errors.New("cannot watch an in-memory store")
	}
	abs, err := filepath.Abs(a.file)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	// Watch the directory; editors replace files by renaming.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	report := func() error {
		return a.view(func(s *csvdb.Store) error {
			_, err := fmt.Fprintf(a.out, "%s records\n", humanize.Comma(int64(s.Count())))
			return err
		})
	}
	if err := report(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Name != abs || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := report(); err != nil {
				slog.WarnContext(ctx, "Failed to reload store", "path", abs, "err", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching file", "err", err)
		}
	}
}

// assign coerces field=value pairs according to the object's shape.
func assign(o *csvdb.Object, args []string) error {
	var c csvdb.Coercer
	shape := o.Shape()
	for _, arg := range args {
		name, val, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q, want field=value", arg)
		}
		f, ok := shape.Field(name)
		if !ok {
			return &csvdb.UnknownFieldError{Shape: shape.Name(), Field: name}
		}
		v, err := c.Coerce(&val, f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if err := o.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
