// Package csvdb provides a single-file, key-addressable record store persisted
// as CSV.
//
// # Overview
//
// A [Store] owns one CSV file (optionally gzip compressed, or kept in memory
// with [MemoryPath]) and an in-memory container of records indexed by
// [kv.Key]. [Store.Load] rehydrates the container from the file and
// [Store.Commit] writes the container back, replacing the file content.
//
// # Records
//
// A store holds one of three record variants:
//
//   - scalars: string, bool, integers and floats, one per line, no header;
//   - rows ([Row] or []string), where the first row doubles as the header;
//   - objects of one [Shape], written with the shape field names as header.
//
// Shapes are registered ahead of time in a [Registry], either reflected from
// a Go struct with [Register] or declared with [NewShape]. Union fields are
// declared with a `csvdb:"int|string"` struct tag.
//
// # Coercion
//
// [Coercer] converts raw cells to typed values. Union types resolve to the
// first candidate present in the order string, int, float, bool, datetime,
// datetime_immutable.
//
// # File Format
//
// Comma separated, one record per line, RFC 4180 quoting. The first line is
// the header when records are rows or objects. Time values are written as
// RFC 3339.
package csvdb

import "github.com/maruel/csvdb/internal/kv"

// Identifier is implemented by records that carry their own key.
type Identifier interface {
	PrimaryKey() kv.Key
}
