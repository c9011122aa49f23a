package csvdb

import (
	"errors"
	"fmt"

	"github.com/maruel/csvdb/internal/kv"
)

var (
	// ErrFileNotExists is returned when the backing file cannot be opened.
	ErrFileNotExists = errors.New("file does not exist")
	// ErrMalformedFile is returned when the file content cannot be loaded.
	ErrMalformedFile = errors.New("malformed CSV file")
	// ErrAmbiguousUnionType is returned when no candidate of a union type can
	// be selected for a token.
	ErrAmbiguousUnionType = errors.New("ambiguous union type")
	// ErrInvalidRecordShape is returned when a record is neither a scalar, a
	// row nor an object of the store's shape.
	ErrInvalidRecordShape = errors.New("invalid record: only objects, scalars and rows are allowed")
	// ErrUnknownField is returned when a header column has no matching field.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidToken is returned when a cell cannot be converted to its
	// field's type.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownShape is returned when a shape name is not registered.
	ErrUnknownShape = errors.New("unknown shape")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// FileNotExistsError reports the path that could not be opened.
type FileNotExistsError struct {
	Path  string
	cause error
}

func (e *FileNotExistsError) Error() string {
	return fmt.Sprintf("file or stream does not exist; attempted to open %s: %v", e.Path, e.cause)
}

func (e *FileNotExistsError) Unwrap() []error { return []error{ErrFileNotExists, e.cause} }

// AmbiguousUnionTypeError reports the union field that could not be resolved.
type AmbiguousUnionTypeError struct {
	Field string
	Type  FieldType
}

func (e *AmbiguousUnionTypeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrAmbiguousUnionType, e.Type)
	}
	return fmt.Sprintf("%s: field %q is %s", ErrAmbiguousUnionType, e.Field, e.Type)
}

func (e *AmbiguousUnionTypeError) Unwrap() error { return ErrAmbiguousUnionType }

// InvalidRecordShapeError reports the record that cannot be encoded.
type InvalidRecordShapeError struct {
	Key  kv.Key
	Type string
}

func (e *InvalidRecordShapeError) Error() string {
	return fmt.Sprintf("%s: key %s holds %s", ErrInvalidRecordShape, e.Key, e.Type)
}

func (e *InvalidRecordShapeError) Unwrap() error { return ErrInvalidRecordShape }

// UnknownFieldError reports a header column absent from the shape.
type UnknownFieldError struct {
	Shape string
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s %q in shape %q", ErrUnknownField, e.Field, e.Shape)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// TokenError reports a cell that could not be converted.
type TokenError struct {
	Field string
	Token string
	Kind  Kind
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("%s %q for %s", ErrInvalidToken, e.Token, e.Kind)
	if e.Field != "" {
		msg = fmt.Sprintf("field %q: %s", e.Field, msg)
	}
	return msg
}

func (e *TokenError) Unwrap() error { return ErrInvalidToken }

// malformed returns an ErrMalformedFile error annotated with the 1-based line.
func malformed(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedFile, line, fmt.Sprintf(format, args...))
}
