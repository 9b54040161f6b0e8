// Package flatten lowers a normalized IR query into the relational clause
// model and expands structured selections into flat column lists.
//
// Flattening walks the operator chain from the innermost source outward.
// Each operator either merges into the clause set built so far, when the
// clause slot it needs is free and filling it keeps the chain's meaning, or
// wraps that clause set as a subquery and starts a fresh one.
package flatten

import (
	"github.com/roach88/quarry/internal/beta"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/trace"
	"github.com/roach88/quarry/internal/transform"
)

// RootAlias names the outermost source when the query gives it no binder.
const RootAlias = "x"

// Flatten lowers a normalized query. Function applications or blocks left in
// the tree are an internal invariant error; constructs SQL cannot express
// are a domain-misuse error.
func Flatten(a ir.Ast, tr trace.Tracer) (out queryir.SqlQuery, err error) {
	defer ir.Recover(&err)
	return MustFlatten(a, tr), nil
}

// MustFlatten is Flatten for callers that recover *ir.Error panics
// themselves.
func MustFlatten(a ir.Ast, tr trace.Tracer) queryir.SqlQuery {
	if n := transform.Collect(a, unreduced); len(n) > 0 {
		ir.Invariant(n[0], "unreduced %s reached flattening", kind(n[0]))
	}
	f := &flattener{tr: trace.OrNop(tr)}
	return f.apply(a)
}

func unreduced(a ir.Ast) bool {
	switch a.(type) {
	case *ir.FunctionApply, *ir.Block, *ir.Function:
		return true
	}
	return false
}

type flattener struct {
	tr trace.Tracer
}

func (f *flattener) event(msg, operator, alias string) {
	if f.tr.Enabled() {
		f.tr.Event("flatten", msg, trace.Fields{"operator": operator, "alias": alias})
	}
}

// apply lowers a statement: a set operation, an emptiness test, a query or a
// scalar expression.
func (f *flattener) apply(a ir.Ast) queryir.SqlQuery {
	switch n := a.(type) {
	case *ir.Union:
		t := unionType(n, n.A, n.B)
		return &queryir.SetOperationSqlQuery{A: f.apply(n.A), Op: queryir.UnionOp, B: f.apply(n.B), RowType: t}
	case *ir.UnionAll:
		t := unionType(n, n.A, n.B)
		return &queryir.SetOperationSqlQuery{A: f.apply(n.A), Op: queryir.UnionAllOp, B: f.apply(n.B), RowType: t}
	case *ir.UnaryOp:
		if (n.Op == ir.OpIsEmpty || n.Op == ir.OpNonEmpty) && queryir.IsSubquery(n.Operand) {
			return &queryir.UnaryOperationSqlQuery{Op: n.Op, Query: f.apply(n.Operand)}
		}
	case *ir.Map:
		if n.IsIdentity() {
			return f.apply(n.Head)
		}
	case *ir.Aggregation:
		if queryir.IsSubquery(n.Operand) {
			return f.lower(f.aggregation(n, RootAlias))
		}
	}
	if ir.IsQuery(a) {
		return f.lower(f.chain(a, RootAlias))
	}
	return f.lower(&queryir.FlattenSqlQuery{
		Select:  []queryir.SelectValue{{Ast: a}},
		RowType: a.Type(),
	})
}

// chain flattens a flat-map chain: the heads become FROM contexts, the flat
// units fill their clause slots and the final body is flattened over them.
func (f *flattener) chain(a ir.Ast, alias string) *queryir.FlattenSqlQuery {
	c := f.contexts(a)
	var q *queryir.FlattenSqlQuery
	if c.projection != nil {
		q = &queryir.FlattenSqlQuery{From: c.sources, Select: f.selectValues(c.projection), RowType: c.projection.Type()}
	} else {
		q = f.flatten(c.sources, c.body, alias, false)
	}
	return f.applyUnits(q, c.sources, c.units)
}

type chainParts struct {
	sources    []queryir.Context
	units      []ir.Query
	body       ir.Ast
	projection ir.Ast
}

func (f *flattener) contexts(a ir.Ast) chainParts {
	fm, ok := a.(*ir.FlatMap)
	if !ok {
		if m, ok := a.(*ir.Map); ok && isUnit(m.Head) {
			return chainParts{units: []ir.Query{m.Head.(ir.Query)}, projection: m.Body}
		}
		if isUnit(a) {
			ir.Misuse(a, "%s must be followed by a source or a projection", kind(a))
		}
		return chainParts{body: a}
	}

	if isUnit(fm.Head) {
		rest := f.contexts(fm.Body)
		rest.units = append([]ir.Query{fm.Head.(ir.Query)}, rest.units...)
		return rest
	}
	switch fm.Body.(type) {
	case *ir.Infix:
		ir.Misuse(fm, "a raw fragment cannot be the body of a flatMap")
	case ir.Query:
	default:
		ir.Misuse(fm, "flatMap body is not a query")
	}

	body := fm.Body
	if j, ok := fm.Head.(*ir.FlatJoin); ok && j.Alias.Name != fm.Alias.Name {
		body = beta.MustReduce(body, beta.Options{Types: beta.ReplaceWithReduction}, beta.P(fm.Alias, j.Alias))
	}
	src := f.source(fm.Head, fm.Alias.Name)
	rest := f.contexts(body)
	rest.sources = append([]queryir.Context{src}, rest.sources...)
	return rest
}

// applyUnits fills the clause slots named by flat units. The units refer to
// the chain's sources, so they only apply while those sources still open the
// FROM list.
func (f *flattener) applyUnits(q *queryir.FlattenSqlQuery, sources []queryir.Context, units []ir.Query) *queryir.FlattenSqlQuery {
	if len(units) == 0 {
		return q
	}
	if len(q.From) < len(sources) {
		ir.Misuse(units[0], "%s cannot apply outside its join chain", kind(units[0]))
	}
	for i, s := range sources {
		if q.From[i] != s {
			ir.Misuse(units[0], "%s cannot apply outside its join chain", kind(units[0]))
		}
	}

	c := q.Copy()
	for _, u := range units {
		switch n := u.(type) {
		case *ir.FlatFilter:
			if c.Where == nil {
				c.Where = n.Body
			} else {
				c.Where = ir.NewBinaryOp(c.Where, ir.OpAnd, n.Body)
			}
		case *ir.FlatSortBy:
			c.OrderBy = append(c.OrderBy, orderByCriteria(n, n.Body, n.Ordering)...)
		case *ir.FlatGroupBy:
			if c.GroupBy != nil {
				ir.Misuse(u, "a join chain can be grouped only once")
			}
			c.GroupBy = n.Body
		}
	}
	return c
}

// base flattens the head of an operator, deciding whether it has to become a
// subquery of its own.
func (f *flattener) base(q ir.Ast, alias string, sources []queryir.Context, nestNextMap bool) *queryir.FlattenSqlQuery {
	nest := func(ctx queryir.Context) *queryir.FlattenSqlQuery {
		f.event("nest", kind(q), alias)
		return &queryir.FlattenSqlQuery{
			From:    append(append([]queryir.Context(nil), sources...), ctx),
			Select:  selectAlias(alias, q.Type()),
			RowType: q.Type(),
		}
	}

	switch n := q.(type) {
	case *ir.GroupByMap:
		return nest(f.source(q, alias))
	case *ir.Nested:
		return nest(&queryir.QueryContext{Query: f.apply(n.Head), Alias: alias})
	case *ir.ConcatMap:
		return nest(&queryir.QueryContext{Query: f.apply(q), Alias: alias})
	case *ir.Map:
		if nestNextMap || hasAggregation(n.Body) || hasImpureInfix(n.Body) {
			return nest(f.source(q, alias))
		}
		return f.flatten(sources, q, alias, nestNextMap)
	case *ir.Filter, *ir.Entity, *ir.Infix:
		return f.flatten(sources, q, alias, nestNextMap)
	}
	if len(sources) == 0 {
		return f.flatten(sources, q, alias, nestNextMap)
	}
	return nest(f.source(q, alias))
}

// flatten builds the clause set of one operator over sources.
func (f *flattener) flatten(sources []queryir.Context, body ir.Ast, alias string, nestNextMap bool) *queryir.FlattenSqlQuery {
	switch n := body.(type) {
	case *ir.ConcatMap:
		sel := f.selectValues(n.Body)
		for i := range sel {
			sel[i].Concat = true
		}
		return &queryir.FlattenSqlQuery{
			From:    append(append([]queryir.Context(nil), sources...), f.source(n.Head, n.Alias.Name)),
			Select:  sel,
			RowType: n.Type(),
		}

	case *ir.GroupByMap:
		x := n.ByAlias.Name
		b := f.base(n.Head, x, sources, true)
		if b.GroupBy != nil || b.Limit != nil || b.Offset != nil || len(b.OrderBy) > 0 ||
			b.Distinct.IsDistinct() || selectsAggregation(b) {
			f.event("nest", "groupByMap", x)
			b = &queryir.FlattenSqlQuery{
				From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: x}},
				RowType: n.Head.Type(),
			}
		}
		mapBody := n.MapBody
		if n.MapAlias.Name != x {
			mapBody = beta.MustReduce(mapBody, beta.Options{Types: beta.ReplaceWithReduction}, beta.P(n.MapAlias, n.ByAlias))
		}
		c := b.Copy()
		c.GroupBy = n.ByBody
		c.Select = f.selectValues(mapBody)
		c.RowType = n.Type()
		return c

	case *ir.Map:
		x := n.Alias.Name
		b := f.base(n.Head, x, sources, false)
		if !b.Distinct.IsDistinct() && !selectsAggregation(b) {
			f.event("merge", "map", x)
			c := b.Copy()
			c.Select = f.selectValues(n.Body)
			c.RowType = n.Type()
			return c
		}
		f.event("nest", "map", x)
		return &queryir.FlattenSqlQuery{
			From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: x}},
			Select:  f.selectValues(n.Body),
			RowType: n.Type(),
		}

	case *ir.Filter:
		x := n.Alias.Name
		b := f.base(n.Head, x, sources, nestNextMap)
		if b.Where == nil && b.GroupBy == nil && b.Limit == nil && b.Offset == nil &&
			!b.Distinct.IsDistinct() && !selectsAggregation(b) && inScope(n.Body, x, b.From) {
			f.event("merge", "filter", x)
			c := b.Copy()
			c.Where = n.Body
			return c
		}
		f.event("nest", "filter", x)
		return &queryir.FlattenSqlQuery{
			From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: x}},
			Where:   n.Body,
			Select:  selectAlias(x, n.Type()),
			RowType: n.Type(),
		}

	case *ir.SortBy:
		x := n.Alias.Name
		b := f.base(n.Head, x, sources, nestNextMap)
		criteria := orderByCriteria(n, n.Criteria, n.Ordering)
		if len(b.OrderBy) == 0 && b.Limit == nil && b.Offset == nil && inScope(n.Criteria, x, b.From) {
			f.event("merge", "sortBy", x)
			c := b.Copy()
			c.OrderBy = criteria
			return c
		}
		f.event("nest", "sortBy", x)
		return &queryir.FlattenSqlQuery{
			From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: x}},
			OrderBy: criteria,
			Select:  selectAlias(x, n.Type()),
			RowType: n.Type(),
		}

	case *ir.Take:
		b := f.base(n.Head, alias, sources, false)
		if b.Limit == nil {
			f.event("merge", "take", alias)
			c := b.Copy()
			c.Limit = n.Count
			return c
		}
		f.event("nest", "take", alias)
		return &queryir.FlattenSqlQuery{
			From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: alias}},
			Limit:   n.Count,
			Select:  selectAlias(alias, n.Type()),
			RowType: n.Type(),
		}

	case *ir.Drop:
		b := f.base(n.Head, alias, sources, false)
		if b.Offset == nil && b.Limit == nil {
			f.event("merge", "drop", alias)
			c := b.Copy()
			c.Offset = n.Count
			return c
		}
		f.event("nest", "drop", alias)
		return &queryir.FlattenSqlQuery{
			From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: alias}},
			Offset:  n.Count,
			Select:  selectAlias(alias, n.Type()),
			RowType: n.Type(),
		}

	case *ir.Distinct:
		b := f.base(n.Head, alias, sources, nestNextMap)
		if b.Limit == nil && b.Offset == nil && b.Distinct.Mode != queryir.DistinctOnKeys {
			f.event("merge", "distinct", alias)
			c := b.Copy()
			c.Distinct = queryir.DistinctKind{Mode: queryir.DistinctRows}
			return c
		}
		f.event("nest", "distinct", alias)
		return &queryir.FlattenSqlQuery{
			From:     []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: alias}},
			Select:   selectAlias(alias, n.Type()),
			Distinct: queryir.DistinctKind{Mode: queryir.DistinctRows},
			RowType:  n.Type(),
		}

	case *ir.DistinctOn:
		x := n.Alias.Name
		keys := []ir.Ast{n.Body}
		if p, ok := n.Body.(*ir.Product); ok {
			keys = p.Values()
		}
		distinct := queryir.DistinctKind{Mode: queryir.DistinctOnKeys, Keys: keys}
		// DISTINCT ON picks from the columns of its own FROM list, which only
		// a plain table provides under the binder's alias.
		if _, ok := n.Head.(*ir.Entity); ok {
			f.event("merge", "distinctOn", x)
			c := f.base(n.Head, x, sources, nestNextMap).Copy()
			c.Distinct = distinct
			return c
		}
		f.event("nest", "distinctOn", x)
		return &queryir.FlattenSqlQuery{
			From:     []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Head), Alias: x}},
			Select:   selectAlias(x, n.Type()),
			Distinct: distinct,
			RowType:  n.Type(),
		}

	case *ir.FlatJoin:
		return &queryir.FlattenSqlQuery{
			From:    append(append([]queryir.Context(nil), sources...), f.source(n, n.Alias.Name)),
			Select:  selectAlias(n.Alias.Name, n.Type()),
			RowType: n.Type(),
		}
	}

	return &queryir.FlattenSqlQuery{
		From:    append(append([]queryir.Context(nil), sources...), f.source(body, alias)),
		Select:  selectAlias(alias, body.Type()),
		RowType: body.Type(),
	}
}

// aggregation flattens an aggregation over a whole query. A query selecting
// a single value aggregates in place; anything else is aggregated from a
// subquery.
func (f *flattener) aggregation(n *ir.Aggregation, alias string) *queryir.FlattenSqlQuery {
	b := f.chain(n.Operand, alias)
	if len(b.Select) == 1 && b.Select[0].Ast != nil && !b.Distinct.IsDistinct() &&
		b.Limit == nil && b.Offset == nil && b.GroupBy == nil && !selectsAggregation(b) {
		f.event("merge", "aggregation", alias)
		c := b.Copy()
		c.Select = []queryir.SelectValue{{Ast: ir.NewAggregation(n.Op, b.Select[0].Ast)}}
		c.RowType = n.Type()
		return c
	}
	f.event("nest", "aggregation", alias)
	return &queryir.FlattenSqlQuery{
		From:    []queryir.Context{&queryir.QueryContext{Query: f.apply(n.Operand), Alias: alias}},
		Select:  []queryir.SelectValue{{Ast: ir.NewAggregation(n.Op, ir.NewIdent(alias, n.Operand.Type()))}},
		RowType: n.Type(),
	}
}

// source turns a FROM-position node into a context.
func (f *flattener) source(a ir.Ast, alias string) queryir.Context {
	switch n := a.(type) {
	case *ir.Entity:
		return &queryir.TableContext{Entity: n, Alias: alias}
	case *ir.Infix:
		return &queryir.InfixContext{Infix: n, Alias: alias}
	case *ir.QueryTag:
		return &queryir.TagContext{Tag: n, Alias: alias}
	case *ir.FlatJoin:
		return &queryir.FlatJoinContext{Kind: n.Kind, From: f.source(n.Head, n.Alias.Name), On: n.On}
	case *ir.Nested:
		return &queryir.QueryContext{Query: f.apply(n.Head), Alias: alias}
	case *ir.FlatFilter, *ir.FlatSortBy, *ir.FlatGroupBy:
		ir.Misuse(a, "%s cannot be used as a source", kind(a))
	}
	if !ir.IsQuery(a) {
		ir.Misuse(a, "%s cannot be used as a source", kind(a))
	}
	return &queryir.QueryContext{Query: f.apply(a), Alias: alias}
}

// selectValues wraps an operator body as the select list. A query-valued
// body becomes a subquery item; structured bodies are expanded later.
func (f *flattener) selectValues(a ir.Ast) []queryir.SelectValue {
	if queryir.IsSubquery(a) {
		return []queryir.SelectValue{{Subquery: f.apply(a)}}
	}
	return []queryir.SelectValue{{Ast: a}}
}

// lower stores a lowered statement for every relation nested in the
// expressions of q, so the renderer never meets an IR query.
func (f *flattener) lower(q *queryir.FlattenSqlQuery) *queryir.FlattenSqlQuery {
	var exprs []ir.Ast
	exprs = append(exprs, q.Where, q.GroupBy, q.Limit, q.Offset)
	for _, o := range q.OrderBy {
		exprs = append(exprs, o.Ast)
	}
	for _, s := range q.Select {
		exprs = append(exprs, s.Ast)
	}
	exprs = append(exprs, q.Distinct.Keys...)
	exprs = append(exprs, contextExprs(q.From)...)

	subs := map[ir.Hash]queryir.SqlQuery{}
	for _, e := range exprs {
		transform.Walk(e, func(n ir.Ast) bool {
			if agg, ok := n.(*ir.Aggregation); ok && queryir.IsSubquery(agg.Operand) {
				subs[ir.HashOf(n)] = f.apply(n)
				return false
			}
			if queryir.IsSubquery(n) {
				subs[ir.HashOf(n)] = f.apply(n)
				return false
			}
			return true
		})
	}
	if len(subs) == 0 {
		return q
	}
	c := q.Copy()
	if c.Subqueries == nil {
		c.Subqueries = map[ir.Hash]queryir.SqlQuery{}
	}
	for h, s := range subs {
		c.Subqueries[h] = s
	}
	return c
}

// contextExprs returns the expressions held by FROM contexts: join
// conditions and the parameters of raw fragments.
func contextExprs(from []queryir.Context) []ir.Ast {
	var out []ir.Ast
	for _, c := range from {
		switch n := c.(type) {
		case *queryir.FlatJoinContext:
			out = append(out, n.On)
			out = append(out, contextExprs([]queryir.Context{n.From})...)
		case *queryir.InfixContext:
			out = append(out, n.Infix.Params...)
		}
	}
	return out
}

// orderByCriteria spreads a tuple of criteria over its orderings.
func orderByCriteria(at ir.Ast, criteria ir.Ast, ord ir.Ordering) []queryir.OrderByCriteria {
	p, isTuple := criteria.(*ir.Product)
	switch o := ord.(type) {
	case ir.PropertyOrdering:
		if isTuple {
			var out []queryir.OrderByCriteria
			for _, v := range p.Values() {
				out = append(out, orderByCriteria(at, v, o)...)
			}
			return out
		}
		return []queryir.OrderByCriteria{{Ast: criteria, Ordering: o}}
	case ir.TupleOrdering:
		if !isTuple || len(p.Fields) != len(o) {
			ir.Misuse(at, "tuple ordering of %d elements applied to %s", len(o), ir.Format(criteria))
		}
		var out []queryir.OrderByCriteria
		for i, v := range p.Values() {
			out = append(out, orderByCriteria(at, v, o[i])...)
		}
		return out
	}
	ir.Invariant(at, "invalid ordering %T", ord)
	return nil
}

func selectAlias(alias string, t ir.Type) []queryir.SelectValue {
	return []queryir.SelectValue{{Ast: ir.NewIdent(alias, t)}}
}

// inScope reports whether an operator body may be placed in the clause set
// built over from: either it does not use the operator's binder, or the
// binder names one of the clause set's sources.
func inScope(body ir.Ast, alias string, from []queryir.Context) bool {
	return !transform.IsFree(body, alias) || queryir.HasAlias(from, alias)
}

// selectsAggregation reports whether q already aggregates its rows.
func selectsAggregation(q *queryir.FlattenSqlQuery) bool {
	for _, s := range q.Select {
		if s.Ast != nil && hasAggregation(s.Ast) {
			return true
		}
	}
	return false
}

// hasAggregation reports whether a aggregates over the rows in scope. An
// aggregation over a whole query is a subquery and does not count.
func hasAggregation(a ir.Ast) bool {
	found := false
	transform.Walk(a, func(n ir.Ast) bool {
		if found || ir.IsQuery(n) {
			return false
		}
		if agg, ok := n.(*ir.Aggregation); ok && !ir.IsQuery(agg.Operand) {
			found = true
		}
		return !found
	})
	return found
}

func hasImpureInfix(a ir.Ast) bool {
	return transform.Exists(a, func(n ir.Ast) bool {
		i, ok := n.(*ir.Infix)
		return ok && !i.Pure
	})
}

func isUnit(a ir.Ast) bool {
	switch a.(type) {
	case *ir.FlatFilter, *ir.FlatSortBy, *ir.FlatGroupBy:
		return true
	}
	return false
}

// kind names a node the way error messages and trace events refer to it.
func kind(a ir.Ast) string {
	switch a.(type) {
	case *ir.Entity:
		return "entity"
	case *ir.Filter:
		return "filter"
	case *ir.Map:
		return "map"
	case *ir.FlatMap:
		return "flatMap"
	case *ir.ConcatMap:
		return "concatMap"
	case *ir.SortBy:
		return "sortBy"
	case *ir.GroupByMap:
		return "groupByMap"
	case *ir.Take:
		return "take"
	case *ir.Drop:
		return "drop"
	case *ir.Union:
		return "union"
	case *ir.UnionAll:
		return "unionAll"
	case *ir.Distinct:
		return "distinct"
	case *ir.DistinctOn:
		return "distinctOn"
	case *ir.Nested:
		return "nested"
	case *ir.FlatJoin:
		return "join"
	case *ir.FlatFilter:
		return "sql.where"
	case *ir.FlatSortBy:
		return "sql.sortBy"
	case *ir.FlatGroupBy:
		return "sql.groupBy"
	case *ir.Infix:
		return "infix"
	case *ir.QueryTag:
		return "query placeholder"
	case *ir.FunctionApply:
		return "function application"
	case *ir.Block:
		return "block"
	case *ir.Function:
		return "function"
	}
	return "expression"
}

// unionType is the row type of a set operation. Branches must unify, and two
// products must share at least one field.
func unionType(n, a, b ir.Ast) ir.Type {
	t, err := ir.LeastUpperType(a.Type(), b.Type())
	if err != nil {
		ir.Fail(ir.ErrCodeTypeMismatch, n, "%s branches do not unify: %s and %s", kind(n), a.Type(), b.Type())
	}
	if p, ok := t.(*ir.ProductType); ok && len(p.Fields) == 0 {
		ir.Fail(ir.ErrCodeTypeMismatch, n, "%s branches share no fields: %s and %s", kind(n), a.Type(), b.Type())
	}
	return t
}
