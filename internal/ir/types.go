package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Type is the structural type carried by every IR node.
//
// This is a sealed interface - only the types below implement it:
//   - ProductType: ordered named fields (rows, tuples, case classes)
//   - Value: any scalar
//   - BooleanValue: a scalar known to hold a boolean (a column, a literal)
//   - BooleanExpression: a boolean produced by a predicate (a = b, x AND y)
//   - Generic, Unknown, Null: unify with anything
//
// BooleanValue and BooleanExpression are kept apart so the renderer can tell
// a boolean column from a predicate when a dialect has no boolean literals.
type Type interface {
	typeNode()
	String() string
}

// FieldType is one named field of a ProductType.
type FieldType struct {
	Name string
	Type Type
}

// ProductType is an ordered list of named fields.
type ProductType struct {
	Name   string
	Fields []FieldType
}

func (*ProductType) typeNode() {}

// String renders the product as Name(a:V,b:V).
func (p *ProductType) String() string {
	parts := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return p.Name + "(" + strings.Join(parts, ",") + ")"
}

// Field returns the type of the named field.
func (p *ProductType) Field(name string) (Type, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// FieldNames returns the field names in declaration order.
func (p *ProductType) FieldNames() []string {
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	return names
}

// Column is one scalar column of a stored row.
type Column struct {
	Name string
	Path []string
	Type Type
}

// Columns lists the scalar columns of a stored row, expanding embedded
// products in field order. A column takes the name of its last field unless
// another column of the row shares that name; then its path joined with "_"
// names it.
func (p *ProductType) Columns() []Column {
	var out []Column
	var walk func(*ProductType, []string)
	walk = func(t *ProductType, path []string) {
		for _, f := range t.Fields {
			fp := append(append([]string(nil), path...), f.Name)
			if inner, ok := f.Type.(*ProductType); ok {
				walk(inner, fp)
				continue
			}
			out = append(out, Column{Name: f.Name, Path: fp, Type: f.Type})
		}
	}
	walk(p, nil)

	seen := map[string]int{}
	for _, c := range out {
		seen[c.Name]++
	}
	for i, c := range out {
		if seen[c.Name] > 1 && len(c.Path) > 1 {
			out[i].Name = strings.Join(c.Path, "_")
		}
	}
	return out
}

// ColumnName returns the name of the column reached by path, or the last
// segment of path when no scalar column lies there.
func (p *ProductType) ColumnName(path []string) string {
	for _, c := range p.Columns() {
		if slices.Equal(c.Path, path) {
			return c.Name
		}
	}
	return path[len(path)-1]
}

// NewProductType builds a product from alternating name/type pairs.
func NewProductType(name string, fields ...FieldType) *ProductType {
	return &ProductType{Name: name, Fields: fields}
}

// F is a shorthand for FieldType.
// Example: NewProductType("Person", F("id", Value), F("name", Value))
func F(name string, t Type) FieldType {
	return FieldType{Name: name, Type: t}
}

type scalarType struct {
	name string
}

func (scalarType) typeNode() {}

func (s scalarType) String() string { return s.name }

// Scalar and wildcard structural types.
var (
	Value             Type = scalarType{"V"}
	BooleanValue      Type = scalarType{"BV"}
	BooleanExpression Type = scalarType{"BE"}
	Generic           Type = scalarType{"G"}
	Unknown           Type = scalarType{"U"}
	Null              Type = scalarType{"N"}
)

// IsProduct reports whether t is a ProductType.
func IsProduct(t Type) bool {
	_, ok := t.(*ProductType)
	return ok
}

// IsBoolean reports whether t is one of the boolean kinds.
func IsBoolean(t Type) bool {
	return t == BooleanValue || t == BooleanExpression
}

func isValueKind(t Type) bool {
	return t == Value || IsBoolean(t)
}

func isWildcard(t Type) bool {
	return t == nil || t == Generic || t == Unknown || t == Null
}

// TypeEqual compares two structural types field by field.
func TypeEqual(a, b Type) bool {
	pa, aok := a.(*ProductType)
	pb, bok := b.(*ProductType)
	if aok != bok {
		return false
	}
	if !aok {
		return a == b
	}
	if pa.Name != pb.Name || len(pa.Fields) != len(pb.Fields) {
		return false
	}
	for i := range pa.Fields {
		if pa.Fields[i].Name != pb.Fields[i].Name || !TypeEqual(pa.Fields[i].Type, pb.Fields[i].Type) {
			return false
		}
	}
	return true
}

// LeastUpperType unifies two structural types.
//
// Wildcards (Generic, Unknown, Null) yield the other side. Two value kinds
// yield BooleanValue when both are boolean and Value otherwise. Two products
// yield the fields present in both, in a's order, each unified recursively;
// fields that do not unify are dropped. A product and a value kind do not
// unify.
func LeastUpperType(a, b Type) (Type, error) {
	switch {
	case isWildcard(a):
		if b == nil {
			return Unknown, nil
		}
		return b, nil
	case isWildcard(b):
		return a, nil
	case isValueKind(a) && isValueKind(b):
		if a == b {
			return a, nil
		}
		if IsBoolean(a) && IsBoolean(b) {
			return BooleanValue, nil
		}
		return Value, nil
	}

	pa, aok := a.(*ProductType)
	pb, bok := b.(*ProductType)
	if !aok || !bok {
		return nil, fmt.Errorf("types %s and %s do not unify", a, b)
	}

	fields := make([]FieldType, 0, len(pa.Fields))
	for _, f := range pa.Fields {
		other, ok := pb.Field(f.Name)
		if !ok {
			continue
		}
		t, err := LeastUpperType(f.Type, other)
		if err != nil {
			continue
		}
		fields = append(fields, FieldType{Name: f.Name, Type: t})
	}
	return &ProductType{Name: pa.Name, Fields: fields}, nil
}

// lub is LeastUpperType for constructors: on failure it keeps a.
func lub(a, b Type) Type {
	t, err := LeastUpperType(a, b)
	if err != nil {
		return a
	}
	return t
}
