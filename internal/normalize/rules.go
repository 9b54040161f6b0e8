package normalize

import "github.com/roach88/quarry/internal/ir"

// OrderTerms swaps adjacent operators into the order the flattener merges
// best, or returns nil.
//
//	a.sortBy(b => c).filter(d => e)       => a.filter(b => e[d := b]).sortBy(b => c)
//	a.flatMap(b => c).take(n).map(d => e) => a.flatMap(b => c).map(d => e).take(n)
//	a.flatMap(b => c).drop(n).map(d => e) => a.flatMap(b => c).map(d => e).drop(n)
func OrderTerms(q ir.Query) ir.Query {
	switch n := q.(type) {
	case *ir.Filter:
		s, ok := n.Head.(*ir.SortBy)
		if !ok || captures(n.Body, n.Alias, s.Alias) {
			return nil
		}
		cond := subst(n.Body, n.Alias, s.Alias)
		return keepPos(q, ir.NewSortBy(ir.NewFilter(s.Head, s.Alias, cond), s.Alias, s.Criteria, s.Ordering))

	case *ir.Map:
		switch h := n.Head.(type) {
		case *ir.Take:
			if _, ok := h.Head.(*ir.FlatMap); ok {
				return keepPos(q, ir.NewTake(ir.NewMap(h.Head, n.Alias, n.Body), h.Count))
			}
		case *ir.Drop:
			if _, ok := h.Head.(*ir.FlatMap); ok {
				return keepPos(q, ir.NewDrop(ir.NewMap(h.Head, n.Alias, n.Body), h.Count))
			}
		}
	}
	return nil
}

// detachable returns the map at the head of an operator when its projection
// may be moved above that operator: the body neither aggregates nor holds an
// impure raw fragment.
func detachable(a ir.Ast) (*ir.Map, bool) {
	m, ok := a.(*ir.Map)
	if !ok || hasAggregation(m.Body) || hasImpureInfix(m.Body) {
		return nil, false
	}
	return m, true
}

// ApplyMap eliminates and lifts projections, or returns nil.
//
//	a.map(b => b)                            => a
//	a.map(b => c).map(d => e)                => a.map(b => e[d := c])
//	a.map(b => c).distinct.map(d => e)       => a.map(b => c).distinct   when e[d := c] == c
//	a.map(b => c).flatMap(d => e)            => a.flatMap(b => e[d := c])
//	a.map(b => c).filter(d => e)             => a.filter(b => e[d := c]).map(b => c)
//	a.map(b => c).sortBy(d => e)             => a.sortBy(b => e[d := c]).map(b => c)
//	a.map(b => c).distinctOn(d => e)         => a.distinctOn(b => e[d := c]).map(b => c)
//	a.map(b => c).take(n)                    => a.take(n).map(b => c)
//	a.map(b => c).drop(n)                    => a.drop(n).map(b => c)
//
// Identity maps over nested queries, flat joins and groupings are kept: they
// mark a projection boundary the flattener relies on. Take and drop are not
// lifted over a map of a flatMap, which OrderTerms moves the other way.
func ApplyMap(q ir.Query) ir.Query {
	switch n := q.(type) {
	case *ir.Map:
		if n.IsIdentity() {
			switch n.Head.(type) {
			case *ir.Nested, *ir.FlatJoin, *ir.GroupByMap:
				return nil
			}
			if h, ok := n.Head.(ir.Query); ok {
				return h
			}
			return nil
		}
		if d, ok := n.Head.(*ir.Distinct); ok {
			if m, ok := detachable(d.Head); ok && ir.Equal(subst(n.Body, n.Alias, m.Body), m.Body) {
				return keepPos(q, ir.NewDistinct(m))
			}
		}
		if m, ok := detachable(n.Head); ok && !captures(n.Body, n.Alias, m.Alias) {
			return keepPos(q, ir.NewMap(m.Head, m.Alias, subst(n.Body, n.Alias, m.Body)))
		}

	case *ir.FlatMap:
		if m, ok := detachable(n.Head); ok && !captures(n.Body, n.Alias, m.Alias) {
			return keepPos(q, ir.NewFlatMap(m.Head, m.Alias, subst(n.Body, n.Alias, m.Body)))
		}

	case *ir.Filter:
		if m, ok := detachable(n.Head); ok && !captures(n.Body, n.Alias, m.Alias) {
			cond := subst(n.Body, n.Alias, m.Body)
			return keepPos(q, ir.NewMap(ir.NewFilter(m.Head, m.Alias, cond), m.Alias, m.Body))
		}

	case *ir.SortBy:
		if m, ok := detachable(n.Head); ok && !captures(n.Criteria, n.Alias, m.Alias) {
			crit := subst(n.Criteria, n.Alias, m.Body)
			return keepPos(q, ir.NewMap(ir.NewSortBy(m.Head, m.Alias, crit, n.Ordering), m.Alias, m.Body))
		}

	case *ir.DistinctOn:
		if m, ok := detachable(n.Head); ok && !captures(n.Body, n.Alias, m.Alias) {
			keys := subst(n.Body, n.Alias, m.Body)
			return keepPos(q, ir.NewMap(ir.NewDistinctOn(m.Head, m.Alias, keys), m.Alias, m.Body))
		}

	case *ir.Take:
		if m, ok := detachable(n.Head); ok && !isFlatMap(m.Head) {
			return keepPos(q, ir.NewMap(ir.NewTake(m.Head, n.Count), m.Alias, m.Body))
		}

	case *ir.Drop:
		if m, ok := detachable(n.Head); ok && !isFlatMap(m.Head) {
			return keepPos(q, ir.NewMap(ir.NewDrop(m.Head, n.Count), m.Alias, m.Body))
		}
	}
	return nil
}

func isFlatMap(a ir.Ast) bool {
	_, ok := a.(*ir.FlatMap)
	return ok
}

// AdHocReduction merges filters and moves work into flat-map bodies, or
// returns nil.
//
//	a.filter(b => c).filter(d => e)   => a.filter(b => c && e[d := b])
//	a.flatMap(b => c).map(d => e)     => a.flatMap(b => c.map(d => e))
//	a.flatMap(b => c).filter(d => e)  => a.flatMap(b => c.filter(d => e))
//	a.flatMap(b => c).flatMap(d => e) => a.flatMap(b => c.flatMap(d => e))
//	a.flatMap(b => c.union(d))        => a.flatMap(b => c).union(a.flatMap(b => d))
//	a.union(b).flatMap(c => d)        => a.flatMap(c => d).union(b.flatMap(c => d))
//
// and the same for unionAll.
func AdHocReduction(q ir.Query) ir.Query {
	switch n := q.(type) {
	case *ir.Filter:
		switch h := n.Head.(type) {
		case *ir.Filter:
			if captures(n.Body, n.Alias, h.Alias) {
				return nil
			}
			cond := ir.NewBinaryOp(h.Body, ir.OpAnd, subst(n.Body, n.Alias, h.Alias))
			return keepPos(q, ir.NewFilter(h.Head, h.Alias, cond))
		case *ir.FlatMap:
			if captures(n.Body, n.Alias, h.Alias) {
				return nil
			}
			return keepPos(q, ir.NewFlatMap(h.Head, h.Alias, ir.NewFilter(h.Body, n.Alias, n.Body)))
		}

	case *ir.Map:
		if h, ok := n.Head.(*ir.FlatMap); ok && !captures(n.Body, n.Alias, h.Alias) {
			return keepPos(q, ir.NewFlatMap(h.Head, h.Alias, ir.NewMap(h.Body, n.Alias, n.Body)))
		}

	case *ir.FlatMap:
		switch b := n.Body.(type) {
		case *ir.Union:
			return keepPos(q, ir.NewUnion(ir.NewFlatMap(n.Head, n.Alias, b.A), ir.NewFlatMap(n.Head, n.Alias, b.B)))
		case *ir.UnionAll:
			return keepPos(q, ir.NewUnionAll(ir.NewFlatMap(n.Head, n.Alias, b.A), ir.NewFlatMap(n.Head, n.Alias, b.B)))
		}
		switch h := n.Head.(type) {
		case *ir.FlatMap:
			if captures(n.Body, n.Alias, h.Alias) {
				return nil
			}
			return keepPos(q, ir.NewFlatMap(h.Head, h.Alias, ir.NewFlatMap(h.Body, n.Alias, n.Body)))
		case *ir.Union:
			return keepPos(q, ir.NewUnion(ir.NewFlatMap(h.A, n.Alias, n.Body), ir.NewFlatMap(h.B, n.Alias, n.Body)))
		case *ir.UnionAll:
			return keepPos(q, ir.NewUnionAll(ir.NewFlatMap(h.A, n.Alias, n.Body), ir.NewFlatMap(h.B, n.Alias, n.Body)))
		}
	}
	return nil
}
