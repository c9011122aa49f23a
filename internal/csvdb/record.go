package csvdb

import (
	"encoding/json"
	"strconv"
)

// Row is an ordered field map: the record variant used when no shape is
// configured.
type Row struct {
	// Columns are the header names. Nil when the header had no names, in
	// which case columns are addressed by their 0-based index.
	Columns []string
	Values  []string
}

// Name returns the name of column i.
func (r Row) Name(i int) string {
	if i < len(r.Columns) && r.Columns[i] != "" {
		return r.Columns[i]
	}
	return strconv.Itoa(i)
}

// Get returns the value of the named column.
func (r Row) Get(name string) (string, bool) {
	for i := range r.Values {
		if r.Name(i) == name {
			return r.Values[i], true
		}
	}
	return "", false
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	b := []byte{'{'}
	for i, v := range r.Values {
		if i != 0 {
			b = append(b, ',')
		}
		k, err := json.Marshal(r.Name(i))
		if err != nil {
			return nil, err
		}
		s, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		b = append(append(append(b, k...), ':'), s...)
	}
	return append(b, '}'), nil
}
