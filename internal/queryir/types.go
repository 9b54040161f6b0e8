package queryir

import "github.com/roach88/quarry/internal/ir"

// SqlQuery is a compiled relational statement.
//
// This is a sealed interface - only types in this package implement it.
//
// SqlQuery types:
//   - FlattenSqlQuery: one SELECT over a list of sources
//   - SetOperationSqlQuery: UNION / UNION ALL of two statements
//   - UnaryOperationSqlQuery: EXISTS / NOT EXISTS of a statement
type SqlQuery interface {
	// Type returns the IR row type the statement produces.
	Type() ir.Type

	sqlQuery() // Marker method - seals interface to this package
}

// FlattenSqlQuery is a single SELECT.
//
// Semantics:
//
//	SELECT [DISTINCT [ON (...)]] <select> FROM <from>
//	  [WHERE <where>] [GROUP BY <groupBy>] [ORDER BY <orderBy>]
//	  [LIMIT <limit>] [OFFSET <offset>]
//
// Clause slots are filled by the flattener as long as doing so preserves the
// meaning of the operator chain; once a slot is taken, the next operator that
// needs it wraps this clause set as a subquery.
type FlattenSqlQuery struct {
	From     []Context
	Where    ir.Ast // nil = no WHERE
	GroupBy  ir.Ast // nil = no GROUP BY; a tuple groups by several keys
	OrderBy  []OrderByCriteria
	Limit    ir.Ast
	Offset   ir.Ast
	Select   []SelectValue
	Distinct DistinctKind
	RowType  ir.Type

	// Subqueries holds the queries nested in this clause set's expressions,
	// lowered to clause sets and keyed by the hash of the IR node.
	Subqueries map[ir.Hash]SqlQuery
}

func (*FlattenSqlQuery) sqlQuery() {}

// Type returns the row type of the SELECT.
func (q *FlattenSqlQuery) Type() ir.Type {
	if q.RowType == nil {
		return ir.Unknown
	}
	return q.RowType
}

// Copy returns a shallow copy whose slices and subquery table may be
// modified without affecting q.
func (q *FlattenSqlQuery) Copy() *FlattenSqlQuery {
	c := *q
	c.From = append([]Context(nil), q.From...)
	c.OrderBy = append([]OrderByCriteria(nil), q.OrderBy...)
	c.Select = append([]SelectValue(nil), q.Select...)
	if q.Subqueries != nil {
		c.Subqueries = make(map[ir.Hash]SqlQuery, len(q.Subqueries))
		for h, s := range q.Subqueries {
			c.Subqueries[h] = s
		}
	}
	return &c
}

// Subquery returns the lowered form of the IR query a, if a was lowered in
// this clause set.
func (q *FlattenSqlQuery) Subquery(a ir.Ast) (SqlQuery, bool) {
	if q.Subqueries == nil {
		return nil, false
	}
	s, ok := q.Subqueries[ir.HashOf(a)]
	return s, ok
}

// SetOperation is a binary set operator.
type SetOperation string

// Set operators.
const (
	UnionOp    SetOperation = "UNION"
	UnionAllOp SetOperation = "UNION ALL"
)

// SetOperationSqlQuery combines two statements.
//
// Semantics:
//
//	<A> UNION [ALL] <B>
//
// The row type is the least upper type of both sides.
type SetOperationSqlQuery struct {
	A       SqlQuery
	Op      SetOperation
	B       SqlQuery
	RowType ir.Type
}

func (*SetOperationSqlQuery) sqlQuery() {}

// Type returns the row type of the set operation.
func (q *SetOperationSqlQuery) Type() ir.Type {
	if q.RowType == nil {
		return ir.Unknown
	}
	return q.RowType
}

// UnaryOperationSqlQuery tests a statement for rows.
//
// Semantics:
//
//	SELECT [NOT] EXISTS (<Query>)
//
// Op is ir.OpNonEmpty or ir.OpIsEmpty.
type UnaryOperationSqlQuery struct {
	Op    ir.UnaryOperator
	Query SqlQuery
}

func (*UnaryOperationSqlQuery) sqlQuery() {}

// Type returns the boolean type of the test.
func (q *UnaryOperationSqlQuery) Type() ir.Type { return ir.BooleanExpression }

// Context is one source of a FROM list.
//
// This is a sealed interface - only types in this package implement it.
//
// Context types:
//   - TableContext: a table under an alias
//   - QueryContext: a subquery under an alias
//   - InfixContext: a raw SQL fragment under an alias
//   - TagContext: a spliced-in query placeholder under an alias
//   - FlatJoinContext: a JOIN of another context onto the sources before it
type Context interface {
	// Aliases returns the aliases the context brings into scope.
	Aliases() []string

	contextNode() // Marker method - seals interface to this package
}

// TableContext is `Table alias`.
type TableContext struct {
	Entity *ir.Entity
	Alias  string
}

func (*TableContext) contextNode() {}

// Aliases returns the table alias.
func (c *TableContext) Aliases() []string { return []string{c.Alias} }

// QueryContext is `(subquery) AS alias`.
type QueryContext struct {
	Query SqlQuery
	Alias string
}

func (*QueryContext) contextNode() {}

// Aliases returns the subquery alias.
func (c *QueryContext) Aliases() []string { return []string{c.Alias} }

// InfixContext is `(raw fragment) AS alias`.
type InfixContext struct {
	Infix *ir.Infix
	Alias string
}

func (*InfixContext) contextNode() {}

// Aliases returns the fragment alias.
func (c *InfixContext) Aliases() []string { return []string{c.Alias} }

// TagContext is a query placeholder under an alias.
type TagContext struct {
	Tag   *ir.QueryTag
	Alias string
}

func (*TagContext) contextNode() {}

// Aliases returns the placeholder alias.
func (c *TagContext) Aliases() []string { return []string{c.Alias} }

// FlatJoinContext is `<Kind> JOIN <From> ON <On>`.
type FlatJoinContext struct {
	Kind ir.JoinKind
	From Context
	On   ir.Ast
}

func (*FlatJoinContext) contextNode() {}

// Aliases returns the aliases of the joined context.
func (c *FlatJoinContext) Aliases() []string { return c.From.Aliases() }

// Aliases collects the aliases of a FROM list in order.
func Aliases(from []Context) []string {
	var out []string
	for _, c := range from {
		out = append(out, c.Aliases()...)
	}
	return out
}

// HasAlias reports whether a FROM list brings alias into scope.
func HasAlias(from []Context, alias string) bool {
	for _, a := range Aliases(from) {
		if a == alias {
			return true
		}
	}
	return false
}

// OrderByCriteria is one ORDER BY entry.
type OrderByCriteria struct {
	Ast      ir.Ast
	Ordering ir.PropertyOrdering
}

// SelectValue is one select-list item.
//
// Exactly one of Ast and Subquery is set. Alias, when set, is rendered as
// `AS alias`. Concat marks an item whose collection value is expanded into
// rows (UNNEST on dialects that support it).
type SelectValue struct {
	Ast      ir.Ast
	Subquery SqlQuery
	Alias    string
	Concat   bool
}

// DistinctMode selects the deduplication of a SELECT.
type DistinctMode int

// Distinct modes.
const (
	DistinctNone DistinctMode = iota
	DistinctRows
	DistinctOnKeys
)

// DistinctKind is the deduplication of a SELECT. Keys is set for
// DistinctOnKeys only.
type DistinctKind struct {
	Mode DistinctMode
	Keys []ir.Ast
}

// IsDistinct reports whether the SELECT deduplicates at all.
func (d DistinctKind) IsDistinct() bool { return d.Mode != DistinctNone }

// IsSubquery reports whether an IR node appearing in expression position is
// a relation that must be lowered to a nested statement. Raw fragments and
// query placeholders render inline and do not count.
func IsSubquery(a ir.Ast) bool {
	switch a.(type) {
	case *ir.Infix, *ir.QueryTag:
		return false
	case ir.Query:
		return true
	}
	return false
}
