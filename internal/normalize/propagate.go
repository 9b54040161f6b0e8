package normalize

import (
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/transform"
)

// PropagateAliases aligns binders with the alias their head introduces.
//
// Walking bottom-up, a head built from a filter, sortBy, distinctOn or flat
// join yields its binder; take, drop and distinct pass it through. When the
// operator above binds a different name and its body does not already use
// the head's name, the operator's binder is replaced by the head's (retyped
// to the head's row type) throughout the body. Map, flatMap, groupByMap,
// nested and set operations yield no binder.
//
// After this pass `query[Person].filter(p => ...).map(q => q.name)` reads
// `map(p => p.name)`, so the projection refers to the table alias the
// filter established.
func PropagateAliases(a ir.Ast) ir.Ast {
	p := &propagator{}
	p.tr.Rewrite = func(_ *transform.Stateless, a ir.Ast) (ir.Ast, bool) {
		switch a.(type) {
		case *ir.Infix:
			return nil, false
		case ir.Query:
			out, _ := p.query(a)
			return out, true
		}
		return nil, false
	}
	return p.tr.Apply(a)
}

type propagator struct {
	tr transform.Stateless
}

// query returns the rewritten query and the binder it exposes, if any.
func (p *propagator) query(a ir.Ast) (ir.Ast, *ir.Ident) {
	switch n := a.(type) {
	case *ir.Filter:
		head, free := p.query(n.Head)
		x, body := p.rebind(head, free, n.Alias, n.Body)
		return rebuilt(a, head == n.Head && x == n.Alias && body == n.Body,
			func() ir.Ast { return ir.NewFilter(head, x, body) }), x
	case *ir.SortBy:
		head, free := p.query(n.Head)
		x, crit := p.rebind(head, free, n.Alias, n.Criteria)
		return rebuilt(a, head == n.Head && x == n.Alias && crit == n.Criteria,
			func() ir.Ast { return ir.NewSortBy(head, x, crit, n.Ordering) }), x
	case *ir.DistinctOn:
		head, free := p.query(n.Head)
		x, body := p.rebind(head, free, n.Alias, n.Body)
		return rebuilt(a, head == n.Head && x == n.Alias && body == n.Body,
			func() ir.Ast { return ir.NewDistinctOn(head, x, body) }), x
	case *ir.FlatJoin:
		head, free := p.query(n.Head)
		x, on := p.rebind(head, free, n.Alias, n.On)
		return rebuilt(a, head == n.Head && x == n.Alias && on == n.On,
			func() ir.Ast { return ir.NewFlatJoin(n.Kind, head, x, on) }), x

	case *ir.Take:
		head, free := p.query(n.Head)
		count := p.tr.Apply(n.Count)
		return rebuilt(a, head == n.Head && count == n.Count,
			func() ir.Ast { return ir.NewTake(head, count) }), free
	case *ir.Drop:
		head, free := p.query(n.Head)
		count := p.tr.Apply(n.Count)
		return rebuilt(a, head == n.Head && count == n.Count,
			func() ir.Ast { return ir.NewDrop(head, count) }), free
	case *ir.Distinct:
		head, free := p.query(n.Head)
		return rebuilt(a, head == n.Head, func() ir.Ast { return ir.NewDistinct(head) }), free

	case *ir.Map:
		head, free := p.query(n.Head)
		x, body := p.rebind(head, free, n.Alias, n.Body)
		return rebuilt(a, head == n.Head && x == n.Alias && body == n.Body,
			func() ir.Ast { return ir.NewMap(head, x, body) }), nil
	case *ir.FlatMap:
		head, free := p.query(n.Head)
		x, body := p.rebind(head, free, n.Alias, n.Body)
		return rebuilt(a, head == n.Head && x == n.Alias && body == n.Body,
			func() ir.Ast { return ir.NewFlatMap(head, x, body) }), nil
	case *ir.ConcatMap:
		head, free := p.query(n.Head)
		x, body := p.rebind(head, free, n.Alias, n.Body)
		return rebuilt(a, head == n.Head && x == n.Alias && body == n.Body,
			func() ir.Ast { return ir.NewConcatMap(head, x, body, n.Type()) }), nil
	case *ir.GroupByMap:
		head, free := p.query(n.Head)
		bx, by := p.rebind(head, free, n.ByAlias, n.ByBody)
		mx, body := p.rebind(head, free, n.MapAlias, n.MapBody)
		unchanged := head == n.Head && bx == n.ByAlias && by == n.ByBody && mx == n.MapAlias && body == n.MapBody
		return rebuilt(a, unchanged, func() ir.Ast { return ir.NewGroupByMap(head, bx, by, mx, body) }), nil

	case *ir.Entity, *ir.QueryTag:
		return a, nil
	}
	// Set operations, nested, flat units and raw fragments: their children
	// are rewritten but nothing propagates out of them.
	return p.tr.Children(a), nil
}

// rebind rewrites body and, when the head exposes a binder, moves binder to
// the head's name and row type.
func (p *propagator) rebind(head ir.Ast, free, binder *ir.Ident, body ir.Ast) (*ir.Ident, ir.Ast) {
	body = p.tr.Apply(body)

	name := binder.Name
	if free != nil && free.Name != binder.Name && !transform.Names(body)[free.Name] {
		name = free.Name
	}
	typ := head.Type()
	if typ == ir.Unknown {
		typ = binder.Type()
	}
	if name == binder.Name && ir.TypeEqual(typ, binder.Type()) {
		return binder, body
	}
	x := ir.NewIdent(name, typ)
	return x, subst(body, binder, x)
}
