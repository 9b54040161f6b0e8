package querysql

import (
	"strconv"
	"strings"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
)

// position tells an expression whether it is read as a value or tested as a
// condition. Dialects without boolean literals spell the two differently.
type position int

const (
	valuePos position = iota
	condPos
)

func (r *renderer) value(a ir.Ast, q *queryir.FlattenSqlQuery) Token {
	return r.expr(a, q, valuePos)
}

func (r *renderer) cond(a ir.Ast, q *queryir.FlattenSqlQuery) Token {
	return r.expr(a, q, condPos)
}

func (r *renderer) expr(a ir.Ast, q *queryir.FlattenSqlQuery, pos position) Token {
	if lowered(a) {
		return Stmt(StringToken("("), r.lowered(a, q), StringToken(")"))
	}

	switch n := a.(type) {
	case *ir.Ident:
		return r.booleanColumn(StringToken(r.d.Quote(n.Name)), n, pos)
	case *ir.Property:
		return r.booleanColumn(r.property(n, q), n, pos)
	case *ir.ScalarTag:
		return r.booleanColumn(ScalarTagToken{UID: n.UID, RuntimeType: n.RuntimeType}, n, pos)
	case *ir.Constant:
		return StringToken(r.constant(n.Value, pos))
	case *ir.BinaryOp:
		return r.binary(n, q, pos)
	case *ir.UnaryOp:
		return r.unary(n, q, pos)
	case *ir.When:
		s := Stmt(StringToken("CASE"))
		for _, b := range n.Branches {
			s.add(StringToken(" WHEN "), r.cond(b.Cond, q), StringToken(" THEN "), r.value(b.Result, q))
		}
		s.add(StringToken(" ELSE "), r.value(n.Else, q), StringToken(" END"))
		return s
	case *ir.Aggregation:
		return r.aggregation(n, q)
	case *ir.Product:
		return Stmt(StringToken("("), r.list(n.Values(), q), StringToken(")"))
	case *ir.MethodCall:
		return r.method(n, q)
	case *ir.GlobalCall:
		return Stmt(StringToken(n.Name+"("), r.list(n.Args, q), StringToken(")"))
	case *ir.ExprTag:
		return QuotationTagToken{UID: n.UID}
	case *ir.QueryTag:
		return Stmt(StringToken("("), QuotationTagToken{UID: n.UID}, StringToken(")"))
	case *ir.Infix:
		return r.infix(n, q)
	case *ir.Function, *ir.FunctionApply, *ir.Block:
		ir.Invariant(a, "unreduced expression reached rendering")
	}
	ir.Invariant(a, "cannot render %T", a)
	return nil
}

// booleanColumn tests a boolean-valued column against 1 when the dialect
// cannot use it as a condition directly.
func (r *renderer) booleanColumn(t Token, a ir.Ast, pos position) Token {
	if pos == condPos && !r.d.BooleanLiterals && a.Type() == ir.BooleanValue {
		return Stmt(t, StringToken(" = 1"))
	}
	return t
}

func (r *renderer) property(p *ir.Property, q *queryir.FlattenSqlQuery) Token {
	if id, ok := p.Owner.(*ir.Ident); ok {
		return StringToken(r.d.Quote(id.Name) + "." + r.d.Quote(p.Name))
	}
	return Stmt(r.value(p.Owner, q), StringToken("."+r.d.Quote(p.Name)))
}

func (r *renderer) constant(v ir.IRValue, pos position) string {
	switch val := v.(type) {
	case ir.IRString:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	case ir.IRInt:
		return strconv.FormatInt(int64(val), 10)
	case ir.IRBool:
		switch {
		case r.d.BooleanLiterals && bool(val):
			return "TRUE"
		case r.d.BooleanLiterals:
			return "FALSE"
		case pos == condPos && bool(val):
			return "1 = 1"
		case pos == condPos:
			return "1 = 0"
		case bool(val):
			return "1"
		default:
			return "0"
		}
	}
	return "NULL"
}

// Operator precedence, loosest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCompare
	precAdd
	precMul
)

var binaryOps = map[ir.BinaryOperator]struct {
	text string
	prec int
}{
	ir.OpOr:   {"OR", precOr},
	ir.OpAnd:  {"AND", precAnd},
	ir.OpEq:   {"=", precCompare},
	ir.OpNeq:  {"<>", precCompare},
	ir.OpLt:   {"<", precCompare},
	ir.OpLte:  {"<=", precCompare},
	ir.OpGt:   {">", precCompare},
	ir.OpGte:  {">=", precCompare},
	ir.OpLike: {"LIKE", precCompare},
	ir.OpAdd:  {"+", precAdd},
	ir.OpSub:  {"-", precAdd},
	ir.OpMul:  {"*", precMul},
	ir.OpDiv:  {"/", precMul},
	ir.OpMod:  {"%", precMul},
}

func precedence(a ir.Ast) (int, bool) {
	switch n := a.(type) {
	case *ir.BinaryOp:
		switch n.Op {
		case ir.OpContains:
			return precCompare, true
		case ir.OpConcat:
			return precAdd, true
		}
		if isNullTest(n) {
			return precCompare, true
		}
		return binaryOps[n.Op].prec, true
	case *ir.UnaryOp:
		if n.Op == ir.OpNot {
			return precNot, true
		}
	}
	return 0, false
}

func associative(op ir.BinaryOperator) bool {
	switch op {
	case ir.OpAnd, ir.OpOr, ir.OpAdd, ir.OpMul, ir.OpConcat:
		return true
	}
	return false
}

func (r *renderer) binary(n *ir.BinaryOp, q *queryir.FlattenSqlQuery, pos position) Token {
	if pos == valuePos && !r.d.BooleanLiterals && n.Op.IsPredicate() {
		return r.caseOf(n, q)
	}

	switch {
	case isNullTest(n):
		operand, kw := n.Left, " IS NULL"
		if isNull(n.Left) {
			operand = n.Right
		}
		if n.Op == ir.OpNeq {
			kw = " IS NOT NULL"
		}
		return Stmt(r.operand(operand, q, precCompare, false, valuePos), StringToken(kw))
	case n.Op == ir.OpContains:
		return Stmt(r.operand(n.Right, q, precCompare, false, valuePos), StringToken(" IN "), r.inList(n.Left, q))
	case n.Op == ir.OpConcat && r.d.ConcatFunc:
		return Stmt(StringToken("CONCAT("), r.value(n.Left, q), StringToken(", "), r.value(n.Right, q), StringToken(")"))
	}

	text, prec := binaryOps[n.Op].text, binaryOps[n.Op].prec
	if n.Op == ir.OpConcat {
		text, prec = r.d.Concat, precAdd
	}
	if text == "" {
		ir.Invariant(n, "no SQL form for operator %s", n.Op)
	}
	operands := valuePos
	if n.Op == ir.OpAnd || n.Op == ir.OpOr {
		operands = condPos
	}
	return Stmt(
		r.operand(n.Left, q, prec, false, operands),
		StringToken(" "+text+" "),
		r.operand(n.Right, q, prec, !associative(n.Op), operands))
}

// operand renders a child expression, parenthesized when its operator binds
// looser than the parent's. strict also parenthesizes an equal binding, for
// right operands of non-associative operators and for comparisons.
func (r *renderer) operand(a ir.Ast, q *queryir.FlattenSqlQuery, parent int, strict bool, pos position) Token {
	t := r.expr(a, q, pos)
	p, ok := precedence(a)
	if !ok {
		return t
	}
	if p < parent || (p == parent && (strict || parent == precCompare)) {
		return Stmt(StringToken("("), t, StringToken(")"))
	}
	return t
}

func (r *renderer) unary(n *ir.UnaryOp, q *queryir.FlattenSqlQuery, pos position) Token {
	switch n.Op {
	case ir.OpNeg:
		return Stmt(StringToken("-"), r.operand(n.Operand, q, precMul+1, false, valuePos))
	case ir.OpNot:
		if pos == valuePos && !r.d.BooleanLiterals {
			return r.caseOf(n, q)
		}
		return Stmt(StringToken("NOT "), r.operand(n.Operand, q, precNot, false, condPos))
	case ir.OpIsEmpty, ir.OpNonEmpty:
		if pos == valuePos && !r.d.BooleanLiterals {
			return r.caseOf(n, q)
		}
		if !lowered(n.Operand) {
			ir.Misuse(n, "%s applies to queries only", n.Op)
		}
		return r.exists(n.Op, r.lowered(n.Operand, q))
	}
	ir.Invariant(n, "no SQL form for operator %s", n.Op)
	return nil
}

// caseOf turns a condition into a 1/0 value.
func (r *renderer) caseOf(a ir.Ast, q *queryir.FlattenSqlQuery) Token {
	return Stmt(StringToken("CASE WHEN "), r.cond(a, q), StringToken(" THEN 1 ELSE 0 END"))
}

func (r *renderer) inList(a ir.Ast, q *queryir.FlattenSqlQuery) Token {
	if lowered(a) {
		return r.value(a, q)
	}
	return Stmt(StringToken("("), r.value(a, q), StringToken(")"))
}

var aggregations = map[ir.AggregationOperator]string{
	ir.AggMin:  "MIN",
	ir.AggMax:  "MAX",
	ir.AggAvg:  "AVG",
	ir.AggSum:  "SUM",
	ir.AggSize: "COUNT",
}

func (r *renderer) aggregation(n *ir.Aggregation, q *queryir.FlattenSqlQuery) Token {
	fn, ok := aggregations[n.Op]
	if !ok {
		ir.Invariant(n, "unknown aggregation %s", n.Op)
	}
	if n.Op == ir.AggSize && isStar(n.Operand) {
		return StringToken("COUNT(*)")
	}
	return Stmt(StringToken(fn+"("), r.value(n.Operand, q), StringToken(")"))
}

// methods maps the string methods with a direct SQL function.
var methods = map[string]string{
	"toUpperCase": "UPPER",
	"toLowerCase": "LOWER",
	"trim":        "TRIM",
	"length":      "LENGTH",
}

func (r *renderer) method(n *ir.MethodCall, q *queryir.FlattenSqlQuery) Token {
	switch n.Name {
	case "startsWith", "endsWith", "contains":
		if len(n.Args) != 1 {
			ir.Misuse(n, "%s takes one argument", n.Name)
		}
		return Stmt(r.operand(n.Owner, q, precCompare, false, valuePos), StringToken(" LIKE "), r.pattern(n.Name, n.Args[0], q))
	}
	fn, ok := methods[n.Name]
	if !ok {
		ir.Misuse(n, "method %s has no SQL form", n.Name)
	}
	if len(n.Args) > 0 {
		ir.Misuse(n, "%s takes no arguments", n.Name)
	}
	return Stmt(StringToken(fn+"("), r.value(n.Owner, q), StringToken(")"))
}

// pattern builds the LIKE pattern of a string test. Wildcards inside the
// argument are not escaped.
func (r *renderer) pattern(method string, arg ir.Ast, q *queryir.FlattenSqlQuery) Token {
	if c, ok := arg.(*ir.Constant); ok {
		if s, ok := c.Value.(ir.IRString); ok {
			p := string(s)
			switch method {
			case "startsWith":
				p += "%"
			case "endsWith":
				p = "%" + p
			default:
				p = "%" + p + "%"
			}
			return StringToken(r.constant(ir.IRString(p), valuePos))
		}
	}
	concat := func(parts ...Token) Token {
		if r.d.ConcatFunc {
			s := Stmt(StringToken("CONCAT("))
			for i, p := range parts {
				if i > 0 {
					s.add(StringToken(", "))
				}
				s.add(p)
			}
			s.add(StringToken(")"))
			return s
		}
		s := Stmt()
		for i, p := range parts {
			if i > 0 {
				s.add(StringToken(" " + r.d.Concat + " "))
			}
			s.add(p)
		}
		return Stmt(StringToken("("), s, StringToken(")"))
	}
	v := r.operand(arg, q, precAdd, true, valuePos)
	switch method {
	case "startsWith":
		return concat(v, StringToken("'%'"))
	case "endsWith":
		return concat(StringToken("'%'"), v)
	}
	return concat(StringToken("'%'"), v, StringToken("'%'"))
}

func (r *renderer) infix(n *ir.Infix, q *queryir.FlattenSqlQuery) Token {
	s := Stmt()
	for i, part := range n.Parts {
		s.add(StringToken(part))
		if i < len(n.Params) {
			s.add(r.value(n.Params[i], q))
		}
	}
	return s
}

// lowered returns the statement flattening produced for a query nested in an
// expression of q.
func (r *renderer) lowered(a ir.Ast, q *queryir.FlattenSqlQuery) *Statement {
	if q != nil {
		if sub, ok := q.Subquery(a); ok {
			return r.statement(sub)
		}
	}
	ir.Invariant(a, "nested query was not lowered")
	return nil
}

func lowered(a ir.Ast) bool {
	if agg, ok := a.(*ir.Aggregation); ok && queryir.IsSubquery(agg.Operand) {
		return true
	}
	return queryir.IsSubquery(a)
}

func isNull(a ir.Ast) bool {
	c, ok := a.(*ir.Constant)
	if !ok {
		return false
	}
	_, null := c.Value.(ir.IRNull)
	return null || c.Value == nil
}

func isNullTest(n *ir.BinaryOp) bool {
	return (n.Op == ir.OpEq || n.Op == ir.OpNeq) && (isNull(n.Left) || isNull(n.Right))
}
