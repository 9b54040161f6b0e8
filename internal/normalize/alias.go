package normalize

import (
	"fmt"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/transform"
)

// names is the set of binder names seen so far on the way down. It is never
// mutated; add returns a copy.
type names map[string]bool

func (s names) add(n string) names {
	out := make(names, len(s)+1)
	for k := range s {
		out[k] = true
	}
	out[n] = true
	return out
}

// fresh returns id when its name is unused, otherwise id renamed to the
// first of name1, name2, ... that is.
func (s names) fresh(id *ir.Ident) *ir.Ident {
	if !s[id.Name] {
		return id
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", id.Name, i)
		if !s[name] {
			return ir.NewIdent(name, id.Type())
		}
	}
}

// AvoidAliasConflict renames binders that reuse a name already bound further
// out, so that flattening can place every binder in a single FROM clause.
//
// Only operators over an unaliased head (an entity or raw fragment, possibly
// under take, drop, distinct, nested or an aggregation) are renamed; their
// binder is the one that becomes the table alias. Flat joins always get a
// binder that is fresh against everything bound in their head. The branches
// of a set operation are independent scopes.
func AvoidAliasConflict(a ir.Ast) ir.Ast {
	out, _ := aliasPass().Apply(a, names{})
	return out
}

func aliasPass() *transform.Stateful[names] {
	return &transform.Stateful[names]{Rewrite: avoidConflict}
}

func avoidConflict(t *transform.Stateful[names], a ir.Ast, s names) (ir.Ast, names, bool) {
	switch n := a.(type) {
	case *ir.Filter:
		if unaliased(n.Head) {
			x, body, s := rebind(t, s, n.Alias, n.Body)
			return rebuilt(a, x == n.Alias && body == n.Body, func() ir.Ast { return ir.NewFilter(n.Head, x, body) }), s, true
		}
	case *ir.Map:
		if unaliased(n.Head) {
			x, body, s := rebind(t, s, n.Alias, n.Body)
			return rebuilt(a, x == n.Alias && body == n.Body, func() ir.Ast { return ir.NewMap(n.Head, x, body) }), s, true
		}
	case *ir.FlatMap:
		if unaliased(n.Head) {
			x, body, s := rebind(t, s, n.Alias, n.Body)
			return rebuilt(a, x == n.Alias && body == n.Body, func() ir.Ast { return ir.NewFlatMap(n.Head, x, body) }), s, true
		}
	case *ir.ConcatMap:
		if unaliased(n.Head) {
			x, body, s := rebind(t, s, n.Alias, n.Body)
			return rebuilt(a, x == n.Alias && body == n.Body, func() ir.Ast { return ir.NewConcatMap(n.Head, x, body, n.Type()) }), s, true
		}
	case *ir.SortBy:
		if unaliased(n.Head) {
			x, crit, s := rebind(t, s, n.Alias, n.Criteria)
			return rebuilt(a, x == n.Alias && crit == n.Criteria, func() ir.Ast { return ir.NewSortBy(n.Head, x, crit, n.Ordering) }), s, true
		}
	case *ir.DistinctOn:
		if unaliased(n.Head) {
			x, body, s := rebind(t, s, n.Alias, n.Body)
			return rebuilt(a, x == n.Alias && body == n.Body, func() ir.Ast { return ir.NewDistinctOn(n.Head, x, body) }), s, true
		}
	case *ir.GroupByMap:
		if unaliased(n.Head) {
			bx, by, s1 := rebind(t, s, n.ByAlias, n.ByBody)
			mx, body, s2 := rebind(t, s1, n.MapAlias, n.MapBody)
			unchanged := bx == n.ByAlias && by == n.ByBody && mx == n.MapAlias && body == n.MapBody
			return rebuilt(a, unchanged, func() ir.Ast { return ir.NewGroupByMap(n.Head, bx, by, mx, body) }), s2, true
		}
	case *ir.FlatJoin:
		head, hs := t.Apply(n.Head, s)
		x, on, s := rebind(t, hs, n.Alias, n.On)
		unchanged := head == n.Head && x == n.Alias && on == n.On
		return rebuilt(a, unchanged, func() ir.Ast { return ir.NewFlatJoin(n.Kind, head, x, on) }), s, true
	case *ir.Union:
		l, _ := t.Apply(n.A, s)
		r, _ := t.Apply(n.B, s)
		return rebuilt(a, l == n.A && r == n.B, func() ir.Ast { return ir.NewUnion(l, r) }), s, true
	case *ir.UnionAll:
		l, _ := t.Apply(n.A, s)
		r, _ := t.Apply(n.B, s)
		return rebuilt(a, l == n.A && r == n.B, func() ir.Ast { return ir.NewUnionAll(l, r) }), s, true
	}
	return nil, s, false
}

// rebind gives binder a name that is fresh in s, substitutes it through
// body and continues the pass inside body with the new name bound.
func rebind(t *transform.Stateful[names], s names, binder *ir.Ident, body ir.Ast) (*ir.Ident, ir.Ast, names) {
	x := s.fresh(binder)
	if x != binder {
		body = subst(body, binder, x)
	}
	out, s := t.Apply(body, s.add(x.Name))
	return x, out, s
}

// unaliased reports whether q is a source that introduces no binder of its
// own, so the operator above it names the table alias.
func unaliased(q ir.Ast) bool {
	switch n := q.(type) {
	case *ir.Entity, *ir.Infix:
		return true
	case *ir.Nested:
		return unaliased(n.Head)
	case *ir.Take:
		return unaliased(n.Head)
	case *ir.Drop:
		return unaliased(n.Head)
	case *ir.Distinct:
		return unaliased(n.Head)
	case *ir.Aggregation:
		return ir.IsQuery(n.Operand) && unaliased(n.Operand)
	}
	return false
}

// rebuilt returns orig when unchanged and otherwise the freshly built node at
// orig's position.
func rebuilt(orig ir.Ast, unchanged bool, build func() ir.Ast) ir.Ast {
	if unchanged {
		return orig
	}
	return keepPos(orig, build())
}
