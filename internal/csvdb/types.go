package csvdb

import (
	"slices"
	"strings"
)

// Kind is a single field type.
//
// The candidate kinds are declared in union precedence order.
type Kind int

const (
	// KindString stores the token unchanged.
	KindString Kind = iota
	// KindInt stores an int64.
	KindInt
	// KindFloat stores a float64.
	KindFloat
	// KindBool stores a bool.
	KindBool
	// KindDateTime stores a *time.Time.
	KindDateTime
	// KindDateTimeImmutable stores a time.Time.
	KindDateTimeImmutable
	// KindUntyped is a field without declared type; the token passes through.
	KindUntyped
	// KindOther is any type the coercion engine does not know about.
	KindOther
)

// unionPrecedence is the order in which union candidates are tested.
var unionPrecedence = []Kind{
	KindString,
	KindInt,
	KindFloat,
	KindBool,
	KindDateTime,
	KindDateTimeImmutable,
}

var kindNames = map[Kind]string{
	KindString:            "string",
	KindInt:               "int",
	KindFloat:             "float",
	KindBool:              "bool",
	KindDateTime:          "datetime",
	KindDateTimeImmutable: "datetime_immutable",
	KindUntyped:           "any",
	KindOther:             "other",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "other"
}

// IsTime returns true for both date-time kinds.
func (k Kind) IsTime() bool {
	return k == KindDateTime || k == KindDateTimeImmutable
}

// FieldType describes the declared type of a field: either a single kind or
// a union of candidate kinds.
type FieldType struct {
	kinds []Kind
	// names keeps the declared name of KindOther members for messages.
	names []string
}

// Single returns a FieldType of one kind.
func Single(k Kind) FieldType {
	return FieldType{kinds: []Kind{k}, names: []string{k.String()}}
}

// Union returns a FieldType accepting any of kinds. Duplicates are dropped.
func Union(kinds ...Kind) FieldType {
	var ft FieldType
	for _, k := range kinds {
		ft.add(k, k.String())
	}
	return ft
}

// ParseFieldType parses the textual form "string", "int|float", ...
//
// Unknown names become KindOther members that keep their name.
func ParseFieldType(s string) FieldType {
	var ft FieldType
	for part := range strings.SplitSeq(s, "|") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		ft.add(kindFromName(name), name)
	}
	if len(ft.kinds) == 0 {
		return Single(KindUntyped)
	}
	return ft
}

func kindFromName(name string) Kind {
	switch name {
	case "string", "text":
		return KindString
	case "int", "integer":
		return KindInt
	case "float", "number":
		return KindFloat
	case "bool", "boolean":
		return KindBool
	case "datetime", "date":
		return KindDateTime
	case "datetime_immutable":
		return KindDateTimeImmutable
	case "any", "mixed":
		return KindUntyped
	default:
		return KindOther
	}
}

func (ft *FieldType) add(k Kind, name string) {
	for i, have := range ft.kinds {
		if have == k && ft.names[i] == name {
			return
		}
	}
	ft.kinds = append(ft.kinds, k)
	ft.names = append(ft.names, name)
}

// IsUnion returns true when more than one kind is declared.
func (ft FieldType) IsUnion() bool {
	return len(ft.kinds) > 1
}

// Kind returns the kind of a single FieldType. Unions return KindUntyped.
func (ft FieldType) Kind() Kind {
	if len(ft.kinds) != 1 {
		return KindUntyped
	}
	return ft.kinds[0]
}

// Kinds returns the declared kinds in declaration order.
func (ft FieldType) Kinds() []Kind {
	return slices.Clone(ft.kinds)
}

// Contains returns true when k is one of the declared kinds.
func (ft FieldType) Contains(k Kind) bool {
	return slices.Contains(ft.kinds, k)
}

// String returns the textual form accepted by ParseFieldType.
func (ft FieldType) String() string {
	if len(ft.kinds) == 0 {
		return KindUntyped.String()
	}
	return strings.Join(ft.names, "|")
}
