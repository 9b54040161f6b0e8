package flatten

import (
	"strings"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/transform"
)

// ExpandNested turns every select list of a flattened statement into a flat
// column list and points every reference to a FROM subquery at one of its
// columns.
//
// The outermost select list carries no column aliases. A FROM subquery names
// each column after its field path joined with "_"; a scalar column is named
// after the property it reads, or "x" when it is computed. Statements nested
// in expressions see the sources of the enclosing clause set, so correlated
// references resolve like local ones.
func ExpandNested(q queryir.SqlQuery) (out queryir.SqlQuery, err error) {
	defer ir.Recover(&err)
	return MustExpandNested(q), nil
}

// MustExpandNested is ExpandNested for callers that recover *ir.Error panics
// themselves.
func MustExpandNested(q queryir.SqlQuery) queryir.SqlQuery {
	return expandQuery(q, nil, false)
}

func expandQuery(q queryir.SqlQuery, parent *scope, nested bool) queryir.SqlQuery {
	switch n := q.(type) {
	case *queryir.FlattenSqlQuery:
		return expandFlatten(n, parent, nested)
	case *queryir.SetOperationSqlQuery:
		return &queryir.SetOperationSqlQuery{
			A:       expandQuery(n.A, parent, nested),
			Op:      n.Op,
			B:       expandQuery(n.B, parent, nested),
			RowType: n.RowType,
		}
	case *queryir.UnaryOperationSqlQuery:
		return &queryir.UnaryOperationSqlQuery{Op: n.Op, Query: expandQuery(n.Query, parent, false)}
	}
	ir.Invariant(nil, "unknown statement %T", q)
	return nil
}

func expandFlatten(q *queryir.FlattenSqlQuery, parent *scope, nested bool) *queryir.FlattenSqlQuery {
	c := q.Copy()
	for i, ctx := range c.From {
		c.From[i] = expandContext(ctx)
	}
	s := newScope(c.From, parent)
	for h, sub := range c.Subqueries {
		c.Subqueries[h] = expandQuery(sub, s, false)
	}
	for i, ctx := range c.From {
		c.From[i] = s.joinCondition(ctx)
	}

	if c.Where != nil {
		if hasAggregation(c.Where) {
			ir.Misuse(c.Where, "aggregations are not allowed in a filter")
		}
		c.Where = s.ref(c.Where)
	}
	if c.GroupBy != nil {
		keys := s.keys(c.GroupBy)
		if len(keys) == 1 {
			c.GroupBy = keys[0]
		} else {
			c.GroupBy = ir.NewTuple(keys...)
		}
	}
	c.OrderBy = nil
	for _, o := range q.OrderBy {
		for _, k := range s.keys(o.Ast) {
			c.OrderBy = append(c.OrderBy, queryir.OrderByCriteria{Ast: k, Ordering: o.Ordering})
		}
	}
	if q.Distinct.Mode == queryir.DistinctOnKeys {
		var keys []ir.Ast
		for _, k := range q.Distinct.Keys {
			keys = append(keys, s.keys(k)...)
		}
		c.Distinct = queryir.DistinctKind{Mode: queryir.DistinctOnKeys, Keys: keys}
	}
	c.Limit = s.ref(c.Limit)
	c.Offset = s.ref(c.Offset)
	c.Select = s.selectList(c, nested)
	return c
}

func expandContext(ctx queryir.Context) queryir.Context {
	switch n := ctx.(type) {
	case *queryir.QueryContext:
		return &queryir.QueryContext{Query: expandQuery(n.Query, nil, true), Alias: n.Alias}
	case *queryir.FlatJoinContext:
		return &queryir.FlatJoinContext{Kind: n.Kind, From: expandContext(n.From), On: n.On}
	}
	return ctx
}

type binding struct {
	subquery bool
	// column is the single column of a scalar subquery.
	column string
}

// scope maps the aliases of a FROM list to what they are bound to.
type scope struct {
	vars   map[string]binding
	parent *scope
}

func newScope(from []queryir.Context, parent *scope) *scope {
	s := &scope{vars: map[string]binding{}, parent: parent}
	for _, ctx := range from {
		s.bind(ctx)
	}
	return s
}

func (s *scope) bind(ctx queryir.Context) {
	switch n := ctx.(type) {
	case *queryir.QueryContext:
		s.vars[n.Alias] = binding{subquery: true, column: scalarColumn(n.Query)}
	case *queryir.FlatJoinContext:
		s.bind(n.From)
	default:
		for _, a := range ctx.Aliases() {
			s.vars[a] = binding{}
		}
	}
}

func (s *scope) lookup(name string) (binding, bool) {
	for e := s; e != nil; e = e.parent {
		if b, ok := e.vars[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

func (s *scope) joinCondition(ctx queryir.Context) queryir.Context {
	j, ok := ctx.(*queryir.FlatJoinContext)
	if !ok {
		return ctx
	}
	return &queryir.FlatJoinContext{Kind: j.Kind, From: j.From, On: s.ref(j.On)}
}

// ref rewrites the source references of an expression. Lowered subqueries
// are left intact so they can still be found by hash.
func (s *scope) ref(a ir.Ast) ir.Ast {
	if a == nil {
		return nil
	}
	t := &transform.Stateless{Rewrite: s.rewrite}
	return t.Apply(a)
}

func (s *scope) rewrite(_ *transform.Stateless, a ir.Ast) (ir.Ast, bool) {
	switch n := a.(type) {
	case *ir.Aggregation:
		if queryir.IsSubquery(n.Operand) {
			return a, true
		}
	case *ir.Property:
		root, path := propertyPath(n)
		if root == nil {
			return nil, false
		}
		b, ok := s.lookup(root.Name)
		if !ok {
			return a, true
		}
		name := path[len(path)-1]
		if b.subquery {
			name = strings.Join(path, "_")
		} else if row, ok := root.Type().(*ir.ProductType); ok {
			name = row.ColumnName(path)
		}
		if len(path) == 1 && name == n.Name {
			return a, true
		}
		return ir.NewTypedProperty(root, name, n.Type()), true
	case *ir.Ident:
		if b, ok := s.lookup(n.Name); ok && b.column != "" {
			return ir.NewTypedProperty(n, b.column, n.Type()), true
		}
		return a, true
	}
	if queryir.IsSubquery(a) {
		return a, true
	}
	return nil, false
}

// keys expands a key expression into its rewritten scalar leaves.
func (s *scope) keys(a ir.Ast) []ir.Ast {
	leaves := ExpandKeys(a)
	for i, l := range leaves {
		leaves[i] = s.ref(l)
	}
	return leaves
}

func (s *scope) selectList(q *queryir.FlattenSqlQuery, nested bool) []queryir.SelectValue {
	var out []queryir.SelectValue
	for _, v := range q.Select {
		if v.Ast == nil {
			sv := queryir.SelectValue{Subquery: expandQuery(v.Subquery, s, false), Concat: v.Concat}
			if nested {
				sv.Alias = columnAlias(nil, v.Alias)
			}
			out = append(out, sv)
			continue
		}
		for _, l := range ExpandSelection([]queryir.SelectValue{v}) {
			out = append(out, s.column(q, l, nested))
		}
	}
	return out
}

func (s *scope) column(q *queryir.FlattenSqlQuery, l Leaf, nested bool) queryir.SelectValue {
	a := s.ref(l.Ast)
	checkRowAggregation(a)

	v := queryir.SelectValue{Ast: a, Concat: l.Concat}
	if isLowered(a) {
		sub, ok := q.Subquery(a)
		if !ok {
			ir.Invariant(a, "nested query was not lowered")
		}
		v = queryir.SelectValue{Subquery: sub, Concat: l.Concat}
	}
	if nested {
		v.Alias = columnAlias(a, l.Name())
	}
	return v
}

// columnAlias names a subquery column. A property already exposes its own
// name, so it only gets an alias when its path says otherwise.
func columnAlias(a ir.Ast, name string) string {
	p, isProp := a.(*ir.Property)
	if name == "" {
		switch {
		case isProp:
			name = p.Name
		case isStar(a):
			return ""
		default:
			name = RootAlias
		}
	}
	if isProp && p.Name == name {
		return ""
	}
	return name
}

// scalarColumn returns the column a scalar subquery exposes, or "" when the
// subquery yields rows of several columns.
func scalarColumn(q queryir.SqlQuery) string {
	t := q.Type()
	if t != ir.Value && !ir.IsBoolean(t) {
		return ""
	}
	switch n := q.(type) {
	case *queryir.FlattenSqlQuery:
		if len(n.Select) == 1 {
			return columnName(n.Select[0])
		}
	case *queryir.SetOperationSqlQuery:
		return scalarColumn(n.A)
	}
	return ""
}

func columnName(v queryir.SelectValue) string {
	if v.Alias != "" {
		return v.Alias
	}
	if p, ok := v.Ast.(*ir.Property); ok {
		return p.Name
	}
	return ""
}

// propertyPath unwinds a property chain to its root identifier.
func propertyPath(p *ir.Property) (*ir.Ident, []string) {
	path := []string{p.Name}
	owner := p.Owner
	for {
		switch o := owner.(type) {
		case *ir.Property:
			path = append([]string{o.Name}, path...)
			owner = o.Owner
		case *ir.Ident:
			return o, path
		default:
			return nil, nil
		}
	}
}

// checkRowAggregation rejects aggregating a whole row, which SQL can only
// count.
func checkRowAggregation(a ir.Ast) {
	transform.Walk(a, func(n ir.Ast) bool {
		if queryir.IsSubquery(n) {
			return false
		}
		agg, ok := n.(*ir.Aggregation)
		if !ok || agg.Op == ir.AggSize {
			return true
		}
		switch agg.Operand.(type) {
		case *ir.Ident, *ir.Property:
			if ir.IsProduct(agg.Operand.Type()) {
				ir.Misuse(agg, "cannot compute %s over a whole row", agg.Op)
			}
		}
		return true
	})
}

func isLowered(a ir.Ast) bool {
	if agg, ok := a.(*ir.Aggregation); ok && queryir.IsSubquery(agg.Operand) {
		return true
	}
	return queryir.IsSubquery(a)
}

// isStar reports whether a selects a whole source row.
func isStar(a ir.Ast) bool {
	id, ok := a.(*ir.Ident)
	return ok && !ir.IsBoolean(id.Type()) && id.Type() != ir.Value
}
