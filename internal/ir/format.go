package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a node as a single-line method-chain expression, the same
// way a frontend user would have written the query:
//
//	query[Person].filter(p => p.age > 18).map(p => p.name)
//
// The output is for diagnostics and golden files only. It is not parsed back.
func Format(a Ast) string {
	var b strings.Builder
	format(&b, a)
	return b.String()
}

func format(b *strings.Builder, a Ast) {
	switch n := a.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Ident:
		b.WriteString(n.Name)
	case *Constant:
		b.WriteString(FormatValue(n.Value))
	case *Property:
		format(b, n.Owner)
		b.WriteString(".")
		b.WriteString(n.Name)
	case *BinaryOp:
		operand(b, n.Left)
		fmt.Fprintf(b, " %s ", n.Op)
		operand(b, n.Right)
	case *UnaryOp:
		switch n.Op {
		case OpIsEmpty, OpNonEmpty:
			format(b, n.Operand)
			b.WriteString(".")
			b.WriteString(string(n.Op))
		default:
			b.WriteString(string(n.Op))
			operand(b, n.Operand)
		}
	case *Function:
		b.WriteString("(")
		for i, p := range n.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
		}
		b.WriteString(") => ")
		format(b, n.Body)
	case *FunctionApply:
		b.WriteString("(")
		format(b, n.Function)
		b.WriteString(").apply")
		list(b, n.Args)
	case *Product:
		if n.Name == "Tuple" {
			list(b, n.Values())
			return
		}
		b.WriteString(n.Name)
		b.WriteString("(")
		for i, f := range n.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			format(b, f.Value)
		}
		b.WriteString(")")
	case *Block:
		b.WriteString("{ ")
		for _, bind := range n.Bindings {
			b.WriteString("val ")
			b.WriteString(bind.Name.Name)
			b.WriteString(" = ")
			format(b, bind.Value)
			b.WriteString("; ")
		}
		format(b, n.Result)
		b.WriteString(" }")
	case *When:
		for _, br := range n.Branches {
			b.WriteString("if (")
			format(b, br.Cond)
			b.WriteString(") ")
			format(b, br.Result)
			b.WriteString(" else ")
		}
		format(b, n.Else)
	case *Aggregation:
		format(b, n.Operand)
		b.WriteString(".")
		b.WriteString(string(n.Op))
	case *MethodCall:
		format(b, n.Owner)
		b.WriteString(".")
		b.WriteString(n.Name)
		list(b, n.Args)
	case *GlobalCall:
		b.WriteString(n.Name)
		list(b, n.Args)
	case *ScalarTag:
		fmt.Fprintf(b, "lift(%s)", n.UID)
	case *ExprTag:
		fmt.Fprintf(b, "tag(%s)", n.UID)
	case *QueryTag:
		fmt.Fprintf(b, "liftQuery(%s)", n.UID)
	case *Entity:
		fmt.Fprintf(b, "query[%s]", n.Name)
	case *Filter:
		lambda(b, n.Head, "filter", n.Alias, n.Body)
	case *Map:
		lambda(b, n.Head, "map", n.Alias, n.Body)
	case *FlatMap:
		lambda(b, n.Head, "flatMap", n.Alias, n.Body)
	case *ConcatMap:
		lambda(b, n.Head, "concatMap", n.Alias, n.Body)
	case *SortBy:
		lambda(b, n.Head, "sortBy", n.Alias, n.Criteria)
		b.WriteString("(")
		b.WriteString(FormatOrdering(n.Ordering))
		b.WriteString(")")
	case *GroupByMap:
		lambda(b, n.Head, "groupByMap", n.ByAlias, n.ByBody)
		fmt.Fprintf(b, "(%s => ", n.MapAlias.Name)
		format(b, n.MapBody)
		b.WriteString(")")
	case *Take:
		format(b, n.Head)
		b.WriteString(".take(")
		format(b, n.Count)
		b.WriteString(")")
	case *Drop:
		format(b, n.Head)
		b.WriteString(".drop(")
		format(b, n.Count)
		b.WriteString(")")
	case *Union:
		format(b, n.A)
		b.WriteString(".union(")
		format(b, n.B)
		b.WriteString(")")
	case *UnionAll:
		format(b, n.A)
		b.WriteString(".unionAll(")
		format(b, n.B)
		b.WriteString(")")
	case *Distinct:
		format(b, n.Head)
		b.WriteString(".distinct")
	case *DistinctOn:
		lambda(b, n.Head, "distinctOn", n.Alias, n.Body)
	case *Nested:
		format(b, n.Head)
		b.WriteString(".nested")
	case *FlatJoin:
		method := "join"
		if n.Kind != InnerJoin {
			method = string(n.Kind) + "Join"
		}
		lambda(b, n.Head, method, n.Alias, n.On)
	case *FlatFilter:
		b.WriteString("sql.where(")
		format(b, n.Body)
		b.WriteString(")")
	case *FlatGroupBy:
		b.WriteString("sql.groupBy(")
		format(b, n.Body)
		b.WriteString(")")
	case *FlatSortBy:
		b.WriteString("sql.sortBy(")
		format(b, n.Body)
		b.WriteString(")(")
		b.WriteString(FormatOrdering(n.Ordering))
		b.WriteString(")")
	case *Infix:
		b.WriteString(`infix"`)
		for i, part := range n.Parts {
			b.WriteString(part)
			if i < len(n.Params) {
				b.WriteString("${")
				format(b, n.Params[i])
				b.WriteString("}")
			}
		}
		b.WriteString(`"`)
		if !n.Pure {
			b.WriteString(".impure")
		}
	default:
		fmt.Fprintf(b, "<%T>", a)
	}
}

func lambda(b *strings.Builder, head Ast, method string, alias *Ident, body Ast) {
	format(b, head)
	fmt.Fprintf(b, ".%s(%s => ", method, alias.Name)
	format(b, body)
	b.WriteString(")")
}

func list(b *strings.Builder, args []Ast) {
	b.WriteString("(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, a)
	}
	b.WriteString(")")
}

// operand wraps compound operands in parentheses so precedence survives.
func operand(b *strings.Builder, a Ast) {
	switch a.(type) {
	case *BinaryOp, *When:
		b.WriteString("(")
		format(b, a)
		b.WriteString(")")
	default:
		format(b, a)
	}
}

// FormatValue renders a literal.
func FormatValue(v IRValue) string {
	switch val := v.(type) {
	case IRString:
		return strconv.Quote(string(val))
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRBool:
		return strconv.FormatBool(bool(val))
	default:
		return "null"
	}
}

// FormatOrdering renders an ordering.
func FormatOrdering(o Ordering) string {
	switch val := o.(type) {
	case PropertyOrdering:
		return string(val)
	case TupleOrdering:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = FormatOrdering(elem)
		}
		return "Ord(" + strings.Join(parts, ", ") + ")"
	default:
		return string(Asc)
	}
}
