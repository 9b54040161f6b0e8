package transform

import (
	"fmt"

	"github.com/roach88/quarry/internal/ir"
)

// rebuild maps every child of a through f, left to right, and returns a new
// node when any child changed. When no child changed, a itself is returned so
// callers can detect "unchanged" by identity.
//
// Binders (query aliases, function parameters, block names) are not children:
// they are renamed only by the passes that own the naming scope.
func rebuild(a ir.Ast, f func(ir.Ast) ir.Ast) ir.Ast {
	switch n := a.(type) {
	case nil:
		return nil
	case *ir.Ident, *ir.Constant, *ir.ScalarTag, *ir.ExprTag, *ir.QueryTag, *ir.Entity:
		return a

	case *ir.Property:
		owner := f(n.Owner)
		if owner == n.Owner {
			return a
		}
		return keep(a, property(owner, n.Name, n.Type()))
	case *ir.BinaryOp:
		l, r := f(n.Left), f(n.Right)
		if l == n.Left && r == n.Right {
			return a
		}
		return keep(a, ir.NewBinaryOp(l, n.Op, r))
	case *ir.UnaryOp:
		o := f(n.Operand)
		if o == n.Operand {
			return a
		}
		return keep(a, ir.NewUnaryOp(n.Op, o))
	case *ir.Function:
		body := f(n.Body)
		if body == n.Body {
			return a
		}
		return keep(a, ir.NewFunction(n.Params, body))
	case *ir.FunctionApply:
		fn := f(n.Function)
		args, changed := list(n.Args, f)
		if fn == n.Function && !changed {
			return a
		}
		return keep(a, ir.NewFunctionApply(fn, args))
	case *ir.Product:
		changed := false
		fields := make([]ir.ProductField, len(n.Fields))
		for i, fl := range n.Fields {
			v := f(fl.Value)
			changed = changed || v != fl.Value
			fields[i] = ir.ProductField{Name: fl.Name, Value: v}
		}
		if !changed {
			return a
		}
		return keep(a, ir.NewProduct(n.Name, fields...))
	case *ir.Block:
		changed := false
		bindings := make([]ir.Binding, len(n.Bindings))
		for i, b := range n.Bindings {
			v := f(b.Value)
			changed = changed || v != b.Value
			bindings[i] = ir.Binding{Name: b.Name, Value: v}
		}
		result := f(n.Result)
		if !changed && result == n.Result {
			return a
		}
		return keep(a, ir.NewBlock(bindings, result))
	case *ir.When:
		changed := false
		branches := make([]ir.Branch, len(n.Branches))
		for i, b := range n.Branches {
			c, r := f(b.Cond), f(b.Result)
			changed = changed || c != b.Cond || r != b.Result
			branches[i] = ir.Branch{Cond: c, Result: r}
		}
		e := f(n.Else)
		if !changed && e == n.Else {
			return a
		}
		return keep(a, ir.NewWhen(branches, e))
	case *ir.Aggregation:
		o := f(n.Operand)
		if o == n.Operand {
			return a
		}
		return keep(a, ir.NewAggregation(n.Op, o))
	case *ir.MethodCall:
		owner := f(n.Owner)
		args, changed := list(n.Args, f)
		if owner == n.Owner && !changed {
			return a
		}
		return keep(a, ir.NewMethodCall(owner, n.Name, args, n.Type()))
	case *ir.GlobalCall:
		args, changed := list(n.Args, f)
		if !changed {
			return a
		}
		return keep(a, ir.NewGlobalCall(n.Name, args, n.Type()))
	case *ir.Infix:
		params, changed := list(n.Params, f)
		if !changed {
			return a
		}
		return keep(a, ir.NewInfix(n.Parts, params, n.Pure, n.Type()))

	case *ir.Filter:
		h, b := f(n.Head), f(n.Body)
		if h == n.Head && b == n.Body {
			return a
		}
		return keep(a, ir.NewFilter(h, n.Alias, b))
	case *ir.Map:
		h, b := f(n.Head), f(n.Body)
		if h == n.Head && b == n.Body {
			return a
		}
		return keep(a, ir.NewMap(h, n.Alias, b))
	case *ir.FlatMap:
		h, b := f(n.Head), f(n.Body)
		if h == n.Head && b == n.Body {
			return a
		}
		return keep(a, ir.NewFlatMap(h, n.Alias, b))
	case *ir.ConcatMap:
		h, b := f(n.Head), f(n.Body)
		if h == n.Head && b == n.Body {
			return a
		}
		return keep(a, ir.NewConcatMap(h, n.Alias, b, n.Type()))
	case *ir.SortBy:
		h, c := f(n.Head), f(n.Criteria)
		if h == n.Head && c == n.Criteria {
			return a
		}
		return keep(a, ir.NewSortBy(h, n.Alias, c, n.Ordering))
	case *ir.GroupByMap:
		h, by, body := f(n.Head), f(n.ByBody), f(n.MapBody)
		if h == n.Head && by == n.ByBody && body == n.MapBody {
			return a
		}
		return keep(a, ir.NewGroupByMap(h, n.ByAlias, by, n.MapAlias, body))
	case *ir.Take:
		h, c := f(n.Head), f(n.Count)
		if h == n.Head && c == n.Count {
			return a
		}
		return keep(a, ir.NewTake(h, c))
	case *ir.Drop:
		h, c := f(n.Head), f(n.Count)
		if h == n.Head && c == n.Count {
			return a
		}
		return keep(a, ir.NewDrop(h, c))
	case *ir.Union:
		x, y := f(n.A), f(n.B)
		if x == n.A && y == n.B {
			return a
		}
		return keep(a, ir.NewUnion(x, y))
	case *ir.UnionAll:
		x, y := f(n.A), f(n.B)
		if x == n.A && y == n.B {
			return a
		}
		return keep(a, ir.NewUnionAll(x, y))
	case *ir.Distinct:
		h := f(n.Head)
		if h == n.Head {
			return a
		}
		return keep(a, ir.NewDistinct(h))
	case *ir.DistinctOn:
		h, b := f(n.Head), f(n.Body)
		if h == n.Head && b == n.Body {
			return a
		}
		return keep(a, ir.NewDistinctOn(h, n.Alias, b))
	case *ir.Nested:
		h := f(n.Head)
		if h == n.Head {
			return a
		}
		return keep(a, ir.NewNested(h))
	case *ir.FlatJoin:
		h, on := f(n.Head), f(n.On)
		if h == n.Head && on == n.On {
			return a
		}
		return keep(a, ir.NewFlatJoin(n.Kind, h, n.Alias, on))
	case *ir.FlatFilter:
		b := f(n.Body)
		if b == n.Body {
			return a
		}
		return keep(a, ir.NewFlatFilter(b))
	case *ir.FlatGroupBy:
		b := f(n.Body)
		if b == n.Body {
			return a
		}
		return keep(a, ir.NewFlatGroupBy(b))
	case *ir.FlatSortBy:
		b := f(n.Body)
		if b == n.Body {
			return a
		}
		return keep(a, ir.NewFlatSortBy(b, n.Ordering))
	default:
		panic(fmt.Sprintf("transform: unknown node %T", a))
	}
}

func list(items []ir.Ast, f func(ir.Ast) ir.Ast) ([]ir.Ast, bool) {
	changed := false
	out := make([]ir.Ast, len(items))
	for i, item := range items {
		out[i] = f(item)
		changed = changed || out[i] != item
	}
	return out, changed
}

// property rebuilds a property access. The owner's product type wins; when
// the owner is not a product the previous type is kept.
func property(owner ir.Ast, name string, prev ir.Type) *ir.Property {
	p := ir.NewProperty(owner, name)
	if p.Type() == ir.Unknown && prev != ir.Unknown {
		return ir.NewTypedProperty(owner, name, prev)
	}
	return p
}

// keep carries the source position of the original node onto its rebuild.
func keep[T ir.Ast](orig ir.Ast, n T) ir.Ast {
	if pos := orig.Pos(); pos.IsValid() {
		return ir.At(n, pos)
	}
	return n
}

// Children returns the direct children of a in traversal order.
func Children(a ir.Ast) []ir.Ast {
	var out []ir.Ast
	rebuild(a, func(c ir.Ast) ir.Ast {
		if c != nil {
			out = append(out, c)
		}
		return c
	})
	return out
}
