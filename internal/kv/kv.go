// Package kv provides the in-memory key/value container that backs a CSV store.
//
// Keys are either integers or strings. [Map] keeps insertion order so that a
// store writes its records back in the order they were loaded or added.
package kv

import (
	"iter"
	"slices"
	"strconv"
)

// Key identifies a record. It is either an int64 or a string.
//
// The zero Key is the integer 0.
type Key struct {
	s     string
	i     int64
	isStr bool
}

// IntKey returns an integer key.
func IntKey(i int64) Key {
	return Key{i: i}
}

// StringKey returns a string key.
func StringKey(s string) Key {
	return Key{s: s, isStr: true}
}

// ParseKey returns an integer key when s is a base-10 integer, a string key
// otherwise.
func ParseKey(s string) Key {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntKey(i)
	}
	return StringKey(s)
}

// Int returns the integer value and true for integer keys.
func (k Key) Int() (int64, bool) {
	return k.i, !k.isStr
}

// IsString returns true for string keys.
func (k Key) IsString() bool {
	return k.isStr
}

// String renders the key.
func (k Key) String() string {
	if k.isStr {
		return k.s
	}
	return strconv.FormatInt(k.i, 10)
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Map is an insertion-ordered map from Key to record.
//
// Overwriting a key keeps its original position. Map is not safe for
// concurrent use.
type Map struct {
	keys   []Key
	values map[Key]any
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[Key]any)}
}

// Set inserts or overwrites the record stored under k.
func (m *Map) Set(k Key, v any) {
	if m.values == nil {
		m.values = make(map[Key]any)
	}
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// Replace overwrites the record stored under k. It returns false and does
// nothing when k is absent.
func (m *Map) Replace(k Key, v any) bool {
	if _, ok := m.values[k]; !ok {
		return false
	}
	m.values[k] = v
	return true
}

// Delete removes k. It returns false when k was absent.
func (m *Map) Delete(k Key) bool {
	if _, ok := m.values[k]; !ok {
		return false
	}
	delete(m.values, k)
	if i := slices.Index(m.keys, k); i >= 0 {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
	return true
}

// Get returns the record stored under k.
func (m *Map) Get(k Key) (any, bool) {
	v, ok := m.values[k]
	return v, ok
}

// All returns an iterator over all records in insertion order.
func (m *Map) All() iter.Seq2[Key, any] {
	return func(yield func(Key, any) bool) {
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []Key {
	return slices.Clone(m.keys)
}

// Len returns the number of records.
func (m *Map) Len() int {
	return len(m.keys)
}
