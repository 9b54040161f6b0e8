// Package querysql renders the relational clause model as dialect SQL.
//
// Rendering produces a token Statement rather than a string: literal text,
// bound parameters and spliced quotations stay apart until the caller asks
// for the SQL of a particular dialect. Values are never interpolated; every
// runtime value is a ScalarTagToken rendered as a placeholder.
package querysql

import (
	"errors"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
)

// Render renders a relational statement for d.
func Render(q queryir.SqlQuery, d *Dialect) (out *Statement, err error) {
	if q == nil {
		return nil, errors.New("cannot render nil statement")
	}
	if d == nil {
		return nil, errors.New("cannot render without a dialect")
	}
	defer ir.Recover(&err)
	r := &renderer{d: d}
	return Merge(r.statement(q)), nil
}

type renderer struct {
	d *Dialect
}

func (r *renderer) statement(q queryir.SqlQuery) *Statement {
	switch n := q.(type) {
	case *queryir.FlattenSqlQuery:
		return r.flatten(n)
	case *queryir.SetOperationSqlQuery:
		return Stmt(r.setOperand(n.A), StringToken(" "+string(n.Op)+" "), r.setOperand(n.B))
	case *queryir.UnaryOperationSqlQuery:
		return Stmt(StringToken("SELECT "), r.exists(n.Op, r.statement(n.Query)))
	}
	ir.Invariant(nil, "cannot render statement %T", q)
	return nil
}

// setOperand renders one side of a set operation. Without parentheses an
// operand carrying its own ordering, limit or set operation would change
// meaning, so it is wrapped as a derived table instead.
func (r *renderer) setOperand(q queryir.SqlQuery) *Statement {
	s := r.statement(q)
	if r.d.ParenthesizeSetOperands {
		return Stmt(StringToken("("), s, StringToken(")"))
	}
	switch n := q.(type) {
	case *queryir.FlattenSqlQuery:
		if len(n.OrderBy) == 0 && n.Limit == nil && n.Offset == nil {
			return s
		}
	case *queryir.UnaryOperationSqlQuery:
		return s
	}
	return Stmt(StringToken("SELECT * FROM ("), s, StringToken(")"))
}

func (r *renderer) exists(op ir.UnaryOperator, sub *Statement) *Statement {
	kw := "EXISTS ("
	if op == ir.OpIsEmpty {
		kw = "NOT EXISTS ("
	}
	return Stmt(StringToken(kw), sub, StringToken(")"))
}

// flatten renders one SELECT.
func (r *renderer) flatten(q *queryir.FlattenSqlQuery) *Statement {
	s := Stmt(StringToken("SELECT "))
	switch q.Distinct.Mode {
	case queryir.DistinctRows:
		s.add(StringToken("DISTINCT "))
	case queryir.DistinctOnKeys:
		s.add(StringToken("DISTINCT ON ("), r.list(q.Distinct.Keys, q), StringToken(") "))
	}
	s.add(r.selectList(q))

	if len(q.From) > 0 {
		s.add(StringToken(" FROM "), r.from(q))
	}
	if q.Where != nil {
		s.add(StringToken(" WHERE "), r.cond(q.Where, q))
	}
	if q.GroupBy != nil {
		keys := []ir.Ast{q.GroupBy}
		if t, ok := q.GroupBy.(*ir.Product); ok {
			keys = t.Values()
		}
		s.add(StringToken(" GROUP BY "), r.list(keys, q))
	}
	if len(q.OrderBy) > 0 {
		s.add(StringToken(" ORDER BY "), r.orderBy(q))
	}
	s.add(r.limitOffset(q))
	return s
}

func (r *renderer) selectList(q *queryir.FlattenSqlQuery) *Statement {
	if len(q.Select) == 0 {
		return Stmt(StringToken("*"))
	}
	s := Stmt()
	for i, v := range q.Select {
		if i > 0 {
			s.add(StringToken(", "))
		}
		switch {
		case v.Subquery != nil:
			s.add(StringToken("("), r.statement(v.Subquery), StringToken(")"))
		case isStar(v.Ast):
			s.add(StringToken(r.d.Quote(v.Ast.(*ir.Ident).Name) + ".*"))
		case v.Concat:
			s.add(StringToken("UNNEST("), r.value(v.Ast, q), StringToken(")"))
		default:
			s.add(r.value(v.Ast, q))
		}
		if v.Alias != "" {
			s.add(StringToken(" AS " + r.d.Quote(v.Alias)))
		}
	}
	return s
}

func (r *renderer) from(q *queryir.FlattenSqlQuery) *Statement {
	s := Stmt()
	for i, ctx := range q.From {
		if j, ok := ctx.(*queryir.FlatJoinContext); ok {
			s.add(StringToken(" "+joinKeyword(j.Kind)+" "), r.source(j.From, q),
				StringToken(" ON "), r.cond(j.On, q))
			continue
		}
		if i > 0 {
			s.add(StringToken(", "))
		}
		s.add(r.source(ctx, q))
	}
	return s
}

func (r *renderer) source(ctx queryir.Context, q *queryir.FlattenSqlQuery) *Statement {
	switch n := ctx.(type) {
	case *queryir.TableContext:
		return Stmt(StringToken(r.d.Quote(n.Entity.Name) + " " + r.d.Quote(n.Alias)))
	case *queryir.QueryContext:
		return Stmt(StringToken("("), r.statement(n.Query), StringToken(") AS "+r.d.Quote(n.Alias)))
	case *queryir.InfixContext:
		return Stmt(StringToken("("), r.infix(n.Infix, q), StringToken(") AS "+r.d.Quote(n.Alias)))
	case *queryir.TagContext:
		return Stmt(StringToken("("), QuotationTagToken{UID: n.Tag.UID}, StringToken(") AS "+r.d.Quote(n.Alias)))
	}
	ir.Invariant(nil, "cannot render source %T", ctx)
	return nil
}

func joinKeyword(k ir.JoinKind) string {
	switch k {
	case ir.LeftJoin:
		return "LEFT JOIN"
	case ir.RightJoin:
		return "RIGHT JOIN"
	case ir.FullJoin:
		return "FULL JOIN"
	}
	return "INNER JOIN"
}

func (r *renderer) orderBy(q *queryir.FlattenSqlQuery) *Statement {
	s := Stmt()
	for i, o := range q.OrderBy {
		if i > 0 {
			s.add(StringToken(", "))
		}
		v := r.value(o.Ast, q)
		dir, nulls := orderingParts(o.Ordering)
		switch {
		case nulls == "":
			s.add(v, StringToken(" "+dir))
		case r.d.NullsOrdering:
			s.add(v, StringToken(" "+dir+" NULLS "+nulls))
		default:
			// NULLS FIRST sorts a 0 flag ahead of the value, NULLS LAST a 1.
			first, rest := "0", "1"
			if nulls == "LAST" {
				first, rest = "1", "0"
			}
			s.add(StringToken("CASE WHEN "), v, StringToken(" IS NULL THEN "+first+" ELSE "+rest+" END, "),
				v, StringToken(" "+dir))
		}
	}
	return s
}

func orderingParts(o ir.PropertyOrdering) (dir, nulls string) {
	switch o {
	case ir.Desc:
		return "DESC", ""
	case ir.AscNullsFirst:
		return "ASC", "FIRST"
	case ir.DescNullsFirst:
		return "DESC", "FIRST"
	case ir.AscNullsLast:
		return "ASC", "LAST"
	case ir.DescNullsLast:
		return "DESC", "LAST"
	}
	return "ASC", ""
}

func (r *renderer) limitOffset(q *queryir.FlattenSqlQuery) *Statement {
	s := Stmt()
	switch r.d.Limit {
	case LimitOffset:
		if q.Limit != nil {
			s.add(StringToken(" LIMIT "), r.value(q.Limit, q))
		}
		if q.Offset != nil {
			s.add(StringToken(" OFFSET "), r.value(q.Offset, q))
		}
	case LimitOffsetRequiresLimit:
		switch {
		case q.Limit != nil:
			s.add(StringToken(" LIMIT "), r.value(q.Limit, q))
		case q.Offset != nil:
			s.add(StringToken(" LIMIT " + r.d.UnboundedLimit))
		}
		if q.Offset != nil {
			s.add(StringToken(" OFFSET "), r.value(q.Offset, q))
		}
	case OffsetFetch:
		if q.Limit == nil && q.Offset == nil {
			break
		}
		if len(q.OrderBy) == 0 {
			s.add(StringToken(" ORDER BY (SELECT NULL)"))
		}
		s.add(StringToken(" OFFSET "))
		if q.Offset != nil {
			s.add(r.value(q.Offset, q))
		} else {
			s.add(StringToken("0"))
		}
		s.add(StringToken(" ROWS"))
		if q.Limit != nil {
			s.add(StringToken(" FETCH FIRST "), r.value(q.Limit, q), StringToken(" ROWS ONLY"))
		}
	}
	return s
}

func (r *renderer) list(items []ir.Ast, q *queryir.FlattenSqlQuery) *Statement {
	s := Stmt()
	for i, a := range items {
		if i > 0 {
			s.add(StringToken(", "))
		}
		s.add(r.value(a, q))
	}
	return s
}

func (s *Statement) add(tokens ...Token) {
	s.Tokens = append(s.Tokens, tokens...)
}

// isStar reports whether a select value stands for a whole source row.
func isStar(a ir.Ast) bool {
	id, ok := a.(*ir.Ident)
	if !ok {
		return false
	}
	t := id.Type()
	return t != ir.Value && !ir.IsBoolean(t)
}
