// Package manifest parses shape manifest YAML files.
//
// A manifest declares record shapes without Go code so the command line tool
// can open typed CSV stores.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maruel/csvdb/internal/csvdb"
)

// ErrNoManifest is returned when no manifest file is provided.
var ErrNoManifest = errors.New("no manifest file provided")

// Manifest defines the structure of a manifest file.
type Manifest struct {
	Version int           `yaml:"version"`
	Shapes  []ShapeConfig `yaml:"shapes"`
}

// ShapeConfig defines one shape.
type ShapeConfig struct {
	Name       string        `yaml:"name"`
	PrimaryKey string        `yaml:"primary_key,omitempty"`
	Fields     []FieldConfig `yaml:"fields"`
}

// FieldConfig defines one field. Type uses the "int|string" union syntax;
// empty means untyped.
type FieldConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// ParseManifest reads and parses a manifest from a file.
// The path is provided by the CLI user, so file inclusion is expected.
func ParseManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, ErrNoManifest
	}
	data, err := os.ReadFile(path) //nolint:gosec // User-specified manifest path
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifestBytes(data)
}

// ParseManifestBytes parses a manifest from bytes.
func ParseManifestBytes(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Version != 1 {
		return fmt.Errorf("unsupported manifest version: %d", m.Version)
	}
	seen := make(map[string]bool, len(m.Shapes))
	for i := range m.Shapes {
		s := &m.Shapes[i]
		if s.Name == "" {
			return fmt.Errorf("shape %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("shape %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if len(s.Fields) == 0 {
			return fmt.Errorf("shape %q: fields are required", s.Name)
		}
		fields := make(map[string]bool, len(s.Fields))
		for j := range s.Fields {
			f := &s.Fields[j]
			if f.Name == "" {
				return fmt.Errorf("shape %q, field %d: name is required", s.Name, j)
			}
			if fields[f.Name] {
				return fmt.Errorf("shape %q, field %q: duplicate name", s.Name, f.Name)
			}
			fields[f.Name] = true
		}
		if s.PrimaryKey != "" && !fields[s.PrimaryKey] {
			return fmt.Errorf("shape %q: primary key %q is not a field", s.Name, s.PrimaryKey)
		}
	}
	return nil
}

// Build converts the shape configs to csvdb shapes.
func (m *Manifest) Build() ([]*csvdb.Shape, error) {
	out := make([]*csvdb.Shape, 0, len(m.Shapes))
	for i := range m.Shapes {
		s, err := configToShape(&m.Shapes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Register adds every shape of the manifest to reg.
func (m *Manifest) Register(reg *csvdb.Registry) error {
	shapes, err := m.Build()
	if err != nil {
		return err
	}
	for _, s := range shapes {
		if err := reg.Add(s); err != nil {
			return err
		}
	}
	return nil
}

// configToShape converts a ShapeConfig to a csvdb.Shape.
func configToShape(cfg *ShapeConfig) (*csvdb.Shape, error) {
	fields := make([]csvdb.Field, 0, len(cfg.Fields))
	for i := range cfg.Fields {
		f := &cfg.Fields[i]
		fields = append(fields, csvdb.Field{
			Name:        f.Name,
			Type:        csvdb.ParseFieldType(f.Type),
			Description: f.Description,
		})
	}
	return csvdb.NewShape(cfg.Name, fields, cfg.PrimaryKey)
}
