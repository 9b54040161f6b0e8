package flatten

import (
	"strings"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
)

// Leaf is one column of an expanded selection together with the field path
// that led to it from the selected value.
type Leaf struct {
	Ast    ir.Ast
	Path   []string
	Concat bool
}

// Name joins the path into the column name a subquery exposes for the leaf.
func (l Leaf) Name() string { return strings.Join(l.Path, "_") }

// ExpandSelection expands structured select values into one leaf per scalar
// field. Product literals expand field by field; identifiers and properties
// of a known row type expand into a property per field of that row. Values
// of any other shape are a single leaf with an empty path. Subquery items
// pass through as a single leaf holding no expression.
func ExpandSelection(values []queryir.SelectValue) []Leaf {
	var out []Leaf
	for _, v := range values {
		if v.Ast == nil {
			out = append(out, Leaf{Concat: v.Concat})
			continue
		}
		var path []string
		if v.Alias != "" {
			path = []string{v.Alias}
		}
		expandValue(v.Ast, path, v.Concat, &out)
	}
	return out
}

// ExpandKeys expands a grouping, ordering or distinct key into its scalar
// leaves.
func ExpandKeys(a ir.Ast) []ir.Ast {
	var leaves []Leaf
	expandValue(a, nil, false, &leaves)
	out := make([]ir.Ast, len(leaves))
	for i, l := range leaves {
		out[i] = l.Ast
	}
	return out
}

func expandValue(a ir.Ast, path []string, concat bool, out *[]Leaf) {
	switch n := a.(type) {
	case *ir.Product:
		for _, f := range n.Fields {
			expandValue(f.Value, extend(path, f.Name), concat, out)
		}
		return
	case *ir.Ident, *ir.Property:
		if pt, ok := a.Type().(*ir.ProductType); ok && len(pt.Fields) > 0 {
			for _, f := range pt.Fields {
				expandValue(ir.NewTypedProperty(a, f.Name, f.Type), extend(path, f.Name), concat, out)
			}
			return
		}
	}
	*out = append(*out, Leaf{Ast: a, Path: path, Concat: concat})
}

func extend(path []string, name string) []string {
	return append(append([]string(nil), path...), name)
}
