// Store session: file handles, load pass, commit pass and record operations.

package csvdb

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/maruel/csvdb/internal/kv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Container is the in-memory key/value container behind a Store.
//
// [kv.Map] is the default implementation.
type Container interface {
	Set(k kv.Key, v any)
	Replace(k kv.Key, v any) bool
	Delete(k kv.Key) bool
	Get(k kv.Key) (any, bool)
	All() iter.Seq2[kv.Key, any]
	Len() int
}

// Versioner records a snapshot of the file after each successful commit.
type Versioner interface {
	Snapshot(path, message string) error
}

// Options configures a Store. The zero value is valid.
type Options struct {
	// Shape is the name of the registered shape of object records. Empty
	// means scalars and rows.
	Shape string
	// Registry resolves Shape. Defaults to DefaultRegistry.
	Registry *Registry
	// Container holds the records. Defaults to a new kv.Map. It may be
	// pre-seeded; Load adds to it.
	Container Container
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now is the clock used for empty date-time cells. Defaults to time.Now.
	Now func() time.Time
	// Versioner, when set, is called after each successful commit to a file.
	Versioner Versioner
}

// Store is a CSV file backed record store.
//
// Store is not safe for concurrent use.
type Store struct {
	path      string
	stream    stream
	container Container
	codec     *Codec
	log       *slog.Logger
	versioner Versioner
	header    []string
	// counter is the last derived key; the first derived key is 0.
	counter int64
	loaded  bool
	closed  bool
}

// New opens the file at path for read and write, creating it when missing.
//
// path may be MemoryPath. A path ending with ".gz" is gzip compressed.
// The records are not loaded; call Load or use Open.
func New(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	var shape *Shape
	if opts.Shape != "" {
		reg := opts.Registry
		if reg == nil {
			reg = DefaultRegistry
		}
		var ok bool
		if shape, ok = reg.Lookup(opts.Shape); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownShape, opts.Shape)
		}
	}
	st, err := openStream(path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		path:      path,
		stream:    st,
		container: opts.Container,
		codec:     NewCodec(shape, &Coercer{Now: opts.Now}),
		log:       opts.Logger,
		versioner: opts.Versioner,
		counter:   -1,
	}
	if s.container == nil {
		s.container = kv.NewMap()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Open opens the file at path and loads it.
func Open(path string, opts *Options) (*Store, error) {
	s, err := New(path, opts)
	if err != nil {
		return nil, err
	}
	if err := NewHooks(s).OnInit(); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Load reads the file into the container.
//
// An empty file is a valid empty store. Without shape, the first line is
// both the header and the first record. Only the first call reads the file;
// later calls do nothing.
func (s *Store) Load() error {
	if s.closed {
		return ErrClosed
	}
	if s.loaded {
		return nil
	}
	s.loaded = true
	if s.stream.size() == 0 {
		return nil
	}
	r, err := s.stream.reader()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// Only blank lines.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}
	s.header = header
	if isEmptyHeader(header) {
		if _, err := cr.Read(); !errors.Is(err, io.EOF) {
			return malformed(1, "empty header")
		}
	}
	if s.codec.Shape() == nil {
		if err := s.store(header, header, 1); err != nil {
			return err
		}
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedFile, err)
		}
		line, _ := cr.FieldPos(0)
		if err := s.store(header, row, line); err != nil {
			return err
		}
	}
	if s.container.Len() == 0 {
		return malformed(1, "no records")
	}
	s.log.Debug("Loaded CSV store", "path", s.path, "records", s.container.Len(), "size", s.stream.size())
	return nil
}

func (s *Store) store(header, row []string, line int) error {
	rec, err := s.codec.DecodeRow(header, row)
	if err != nil {
		return fmt.Errorf("line %d: %w", line, err)
	}
	k, ok := identify(rec)
	if !ok {
		s.counter++
		k = kv.IntKey(s.counter)
	}
	s.container.Set(k, rec)
	return nil
}

func isEmptyHeader(header []string) bool {
	for _, h := range header {
		if h != "" {
			return false
		}
	}
	return true
}

// Commit replaces the file content with the records in the container.
//
// On an invalid record the rows encoded so far are written and the error is
// returned.
func (s *Store) Commit() error {
	if s.closed {
		return ErrClosed
	}
	w, err := s.stream.rewrite()
	if err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.path, err)
	}
	cw := csv.NewWriter(w)
	n := 0
	wroteHeader := false
	var encErr error
	for k, rec := range s.container.All() {
		row, err := s.codec.EncodeRecord(rec)
		if err != nil {
			var shapeErr *InvalidRecordShapeError
			if errors.As(err, &shapeErr) {
				shapeErr.Key = k
			} else {
				err = fmt.Errorf("key %s: %w", k, err)
			}
			encErr = err
			break
		}
		if !wroteHeader && isObject(rec) {
			if err := cw.Write(s.codec.Header()); err != nil {
				encErr = err
				break
			}
			wroteHeader = true
		}
		if err := cw.Write(row); err != nil {
			encErr = err
			break
		}
		n++
	}
	cw.Flush()
	if err := errors.Join(encErr, cw.Error(), w.Close()); err != nil {
		return err
	}
	if wroteHeader {
		s.header = s.codec.Header()
	}
	s.log.Debug("Committed CSV store", "path", s.path, "records", n, "size", s.stream.size())
	if s.versioner != nil && s.path != MemoryPath {
		if err := s.versioner.Snapshot(s.path, fmt.Sprintf("Commit %d records", n)); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", s.path, err)
		}
	}
	return nil
}

// Close releases the file handles. Further calls return nil.
//
// Close doesn't commit; see Hooks.OnDestroy.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.stream.close()
}

// Save stores v under k, overwriting any previous record.
func (s *Store) Save(k kv.Key, v any) error {
	if s.closed {
		return ErrClosed
	}
	s.container.Set(k, v)
	return nil
}

// Add stores v under its own key, or under the next derived key not in use.
func (s *Store) Add(v any) (kv.Key, error) {
	if s.closed {
		return kv.Key{}, ErrClosed
	}
	k, ok := identify(v)
	if !ok {
		for {
			s.counter++
			k = kv.IntKey(s.counter)
			if _, exists := s.container.Get(k); !exists {
				break
			}
		}
	}
	s.container.Set(k, v)
	return k, nil
}

// Replace overwrites the record stored under k. It returns false when k is
// absent.
func (s *Store) Replace(k kv.Key, v any) bool {
	if s.closed {
		return false
	}
	return s.container.Replace(k, v)
}

// Remove deletes the record stored under k. It returns false when k is
// absent.
func (s *Store) Remove(k kv.Key) bool {
	if s.closed {
		return false
	}
	return s.container.Delete(k)
}

// Find returns the record stored under k.
func (s *Store) Find(k kv.Key) (any, bool) {
	if s.closed {
		return nil, false
	}
	return s.container.Get(k)
}

// FindAll returns an iterator over all records in container order.
func (s *Store) FindAll() iter.Seq2[kv.Key, any] {
	if s.closed {
		return func(func(kv.Key, any) bool) {}
	}
	return s.container.All()
}

// Count returns the number of records.
func (s *Store) Count() int {
	return s.container.Len()
}

// Shape returns the shape of object records: configured, or adopted from
// the first object committed. Nil for scalar and row stores.
func (s *Store) Shape() *Shape {
	return s.codec.Shape()
}

// Header returns the header of the file: the first line read by Load, or
// the shape field names after a commit of object records.
func (s *Store) Header() []string {
	if s.header == nil {
		return s.codec.Header()
	}
	return slices.Clone(s.header)
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Size returns the size in bytes of the backing file, as of open or the
// last commit.
func (s *Store) Size() int64 {
	return s.stream.size()
}
