// Backing streams: plain file, gzip compressed file and memory.

package csvdb

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MemoryPath is the pseudo-path of a store that is never persisted to disk.
const MemoryPath = ":memory:"

// stream is the byte storage behind a Store.
type stream interface {
	// size returns the current size in bytes.
	size() int64
	// reader returns a reader positioned at the start of the content.
	reader() (io.Reader, error)
	// rewrite truncates the content and returns a writer replacing it. The
	// writer's Close flushes it and rewinds the handles.
	rewrite() (io.WriteCloser, error)
	close() error
}

// openStream opens path for read and write, creating it when missing.
func openStream(path string) (stream, error) {
	if path == MemoryPath {
		return &memStream{}, nil
	}
	// The write handle is opened first so a missing file is created.
	w, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &FileNotExistsError{Path: path, cause: err}
	}
	r, err := os.Open(path)
	if err != nil {
		_ = w.Close()
		return nil, &FileNotExistsError{Path: path, cause: err}
	}
	fi, err := w.Stat()
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, &FileNotExistsError{Path: path, cause: err}
	}
	fs := &fileStream{r: r, w: w, n: fi.Size()}
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		return &gzipStream{fileStream: fs}, nil
	}
	return fs, nil
}

type fileStream struct {
	r *os.File
	w *os.File
	n int64
}

func (f *fileStream) size() int64 {
	return f.n
}

func (f *fileStream) reader() (io.Reader, error) {
	if _, err := f.r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return bufio.NewReader(f.r), nil
}

func (f *fileStream) rewrite() (io.WriteCloser, error) {
	if err := f.w.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.w.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &fileWriter{f: f, Writer: bufio.NewWriter(f.w)}, nil
}

// sync flushes the file to disk, rewinds both handles and updates the size.
func (f *fileStream) sync() error {
	if err := f.w.Sync(); err != nil {
		return err
	}
	fi, err := f.w.Stat()
	if err != nil {
		return err
	}
	f.n = fi.Size()
	if _, err := f.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = f.r.Seek(0, io.SeekStart)
	return err
}

func (f *fileStream) close() error {
	return errors.Join(f.w.Close(), f.r.Close())
}

type fileWriter struct {
	f *fileStream
	*bufio.Writer
}

func (w *fileWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.f.sync()
}

// gzipStream compresses the content of a fileStream.
type gzipStream struct {
	*fileStream
}

func (g *gzipStream) reader() (io.Reader, error) {
	r, err := g.fileStream.reader()
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}
	return zr, nil
}

func (g *gzipStream) rewrite() (io.WriteCloser, error) {
	w, err := g.fileStream.rewrite()
	if err != nil {
		return nil, err
	}
	fw := w.(*fileWriter)
	return &gzipWriter{Writer: gzip.NewWriter(fw), fw: fw}, nil
}

type gzipWriter struct {
	*gzip.Writer
	fw *fileWriter
}

func (w *gzipWriter) Close() error {
	if err := w.Writer.Close(); err != nil {
		return err
	}
	return w.fw.Close()
}

// memStream keeps the content in memory.
type memStream struct {
	buf bytes.Buffer
}

func (m *memStream) size() int64 {
	return int64(m.buf.Len())
}

func (m *memStream) reader() (io.Reader, error) {
	return bytes.NewReader(m.buf.Bytes()), nil
}

func (m *memStream) rewrite() (io.WriteCloser, error) {
	m.buf.Reset()
	return nopCloser{&m.buf}, nil
}

func (m *memStream) close() error {
	m.buf.Reset()
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
