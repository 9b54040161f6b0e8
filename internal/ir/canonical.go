package ir

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// encoder produces the canonical byte encoding of a single node for hashing.
//
// Every field is length- or tag-prefixed so distinct trees never share an
// encoding. Children are written as their 32-byte hashes. Strings are NFC
// normalized at this boundary, so identifiers that differ only in Unicode
// composition are the same identifier.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) str(s string) {
	s = norm.NFC.String(s)
	e.int(int64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) int(n int64) {
	var tmp [binary.MaxVarintLen64]byte
	e.buf.Write(tmp[:binary.PutVarint(tmp[:], n)])
}

func (e *encoder) bool(b bool) {
	if b {
		e.buf.WriteByte(1)
		return
	}
	e.buf.WriteByte(0)
}

func (e *encoder) node(a Ast) {
	h := HashOf(a)
	e.buf.Write(h[:])
}

func (e *encoder) ident(id *Ident) {
	if id == nil {
		e.buf.WriteByte(0)
		return
	}
	e.buf.WriteByte(1)
	e.str(id.Name)
}

func (e *encoder) nodes(list []Ast) {
	e.int(int64(len(list)))
	for _, a := range list {
		e.node(a)
	}
}

func (e *encoder) value(v IRValue) {
	switch val := v.(type) {
	case IRNull, nil:
		e.buf.WriteByte('n')
	case IRString:
		e.buf.WriteByte('s')
		e.str(string(val))
	case IRInt:
		e.buf.WriteByte('i')
		e.int(int64(val))
	case IRBool:
		e.buf.WriteByte('b')
		e.bool(bool(val))
	default:
		panic(fmt.Sprintf("ir: unsupported literal %T", v))
	}
}

func (e *encoder) ordering(o Ordering) {
	switch val := o.(type) {
	case nil:
		e.buf.WriteByte(0)
	case PropertyOrdering:
		e.buf.WriteByte('p')
		e.str(string(val))
	case TupleOrdering:
		e.buf.WriteByte('t')
		e.int(int64(len(val)))
		for _, elem := range val {
			e.ordering(elem)
		}
	default:
		panic(fmt.Sprintf("ir: unsupported ordering %T", o))
	}
}

// encode writes the node kind followed by its fields.
func (e *encoder) encode(a Ast) {
	switch n := a.(type) {
	case *Ident:
		e.str("ident")
		e.str(n.Name)
	case *Constant:
		e.str("constant")
		e.value(n.Value)
	case *Property:
		e.str("property")
		e.node(n.Owner)
		e.str(n.Name)
	case *BinaryOp:
		e.str("binary")
		e.node(n.Left)
		e.str(string(n.Op))
		e.node(n.Right)
	case *UnaryOp:
		e.str("unary")
		e.str(string(n.Op))
		e.node(n.Operand)
	case *Function:
		e.str("function")
		e.int(int64(len(n.Params)))
		for _, p := range n.Params {
			e.ident(p)
		}
		e.node(n.Body)
	case *FunctionApply:
		e.str("apply")
		e.node(n.Function)
		e.nodes(n.Args)
	case *Product:
		e.str("product")
		e.str(n.Name)
		e.int(int64(len(n.Fields)))
		for _, f := range n.Fields {
			e.str(f.Name)
			e.node(f.Value)
		}
	case *Block:
		e.str("block")
		e.int(int64(len(n.Bindings)))
		for _, b := range n.Bindings {
			e.ident(b.Name)
			e.node(b.Value)
		}
		e.node(n.Result)
	case *When:
		e.str("when")
		e.int(int64(len(n.Branches)))
		for _, b := range n.Branches {
			e.node(b.Cond)
			e.node(b.Result)
		}
		e.node(n.Else)
	case *Aggregation:
		e.str("aggregation")
		e.str(string(n.Op))
		e.node(n.Operand)
	case *MethodCall:
		e.str("method")
		e.node(n.Owner)
		e.str(n.Name)
		e.nodes(n.Args)
	case *GlobalCall:
		e.str("global")
		e.str(n.Name)
		e.nodes(n.Args)
	case *ScalarTag:
		e.str("scalarTag")
		e.str(n.UID)
	case *ExprTag:
		e.str("exprTag")
		e.str(n.UID)
	case *QueryTag:
		e.str("queryTag")
		e.str(n.UID)
	case *Entity:
		e.str("entity")
		e.str(n.Name)
	case *Filter:
		e.str("filter")
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.Body)
	case *Map:
		e.str("map")
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.Body)
	case *FlatMap:
		e.str("flatMap")
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.Body)
	case *ConcatMap:
		e.str("concatMap")
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.Body)
	case *SortBy:
		e.str("sortBy")
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.Criteria)
		e.ordering(n.Ordering)
	case *GroupByMap:
		e.str("groupByMap")
		e.node(n.Head)
		e.ident(n.ByAlias)
		e.node(n.ByBody)
		e.ident(n.MapAlias)
		e.node(n.MapBody)
	case *Take:
		e.str("take")
		e.node(n.Head)
		e.node(n.Count)
	case *Drop:
		e.str("drop")
		e.node(n.Head)
		e.node(n.Count)
	case *Union:
		e.str("union")
		e.node(n.A)
		e.node(n.B)
	case *UnionAll:
		e.str("unionAll")
		e.node(n.A)
		e.node(n.B)
	case *Distinct:
		e.str("distinct")
		e.node(n.Head)
	case *DistinctOn:
		e.str("distinctOn")
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.Body)
	case *Nested:
		e.str("nested")
		e.node(n.Head)
	case *FlatJoin:
		e.str("flatJoin")
		e.str(string(n.Kind))
		e.node(n.Head)
		e.ident(n.Alias)
		e.node(n.On)
	case *FlatFilter:
		e.str("flatFilter")
		e.node(n.Body)
	case *FlatGroupBy:
		e.str("flatGroupBy")
		e.node(n.Body)
	case *FlatSortBy:
		e.str("flatSortBy")
		e.node(n.Body)
		e.ordering(n.Ordering)
	case *Infix:
		e.str("infix")
		e.int(int64(len(n.Parts)))
		for _, p := range n.Parts {
			e.str(p)
		}
		e.nodes(n.Params)
		e.bool(n.Pure)
	default:
		panic(fmt.Sprintf("ir: cannot encode %T", a))
	}
}
