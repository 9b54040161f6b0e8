package transform

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/ir"
)

var personType = ir.NewProductType("Person", ir.F("id", ir.Value), ir.F("name", ir.Value), ir.F("age", ir.Value))

func adults() ir.Query {
	p := ir.NewIdent("p", personType)
	return ir.NewMap(
		ir.NewFilter(ir.NewEntity("Person", personType), p,
			ir.NewBinaryOp(ir.NewProperty(p, "age"), ir.OpGt, ir.NewConstant(ir.IRInt(18)))),
		p, ir.NewProperty(p, "name"))
}

func TestStatelessIdentitySharing(t *testing.T) {
	q := adults()
	tr := &Stateless{}

	assert.Same(t, q, tr.Apply(q), "a traversal that changes nothing returns the same instance")
}

func TestStatelessRewriteRebuildsOnlyChangedPath(t *testing.T) {
	q := adults().(*ir.Map)
	tr := &Stateless{Rewrite: func(t *Stateless, a ir.Ast) (ir.Ast, bool) {
		if c, ok := a.(*ir.Constant); ok && c.Value == ir.IRInt(18) {
			return ir.NewConstant(ir.IRInt(21)), true
		}
		return nil, false
	}}

	out := tr.Apply(q).(*ir.Map)
	require.NotSame(t, q, out)
	assert.Equal(t, "query[Person].filter(p => p.age > 21).map(p => p.name)", ir.Format(out))
	assert.Same(t, q.Body, out.Body, "untouched siblings are shared")
	assert.Same(t, q.Head.(*ir.Filter).Head, out.Head.(*ir.Filter).Head)
}

func TestStatelessKeepsPositions(t *testing.T) {
	p := ir.NewIdent("p", personType)
	f := ir.At(ir.NewFilter(ir.NewEntity("Person", personType), p, ir.NewConstant(ir.IRBool(true))),
		ir.Pos{Line: 4, Col: 2})
	tr := &Stateless{Rewrite: func(t *Stateless, a ir.Ast) (ir.Ast, bool) {
		if _, ok := a.(*ir.Constant); ok {
			return ir.NewConstant(ir.IRBool(false)), true
		}
		return nil, false
	}}

	out := tr.Apply(f)
	assert.Equal(t, 4, out.Pos().Line)
}

func TestStatefulThreadsLeftToRight(t *testing.T) {
	q := adults()
	tr := &Stateful[[]string]{Rewrite: func(t *Stateful[[]string], a ir.Ast, s []string) (ir.Ast, []string, bool) {
		if p, ok := a.(*ir.Property); ok {
			return a, append(s, p.Name), true
		}
		return nil, s, false
	}}

	out, seen := tr.Apply(q, nil)
	assert.Same(t, q, out)
	assert.Equal(t, []string{"age", "name"}, seen)
}

func TestCollectAndExists(t *testing.T) {
	q := adults()

	props := Collect(q, func(a ir.Ast) bool { _, ok := a.(*ir.Property); return ok })
	assert.Len(t, props, 2)

	assert.True(t, Exists(q, func(a ir.Ast) bool { _, ok := a.(*ir.Entity); return ok }))
	assert.False(t, Exists(q, func(a ir.Ast) bool { _, ok := a.(*ir.Aggregation); return ok }))
	assert.Equal(t, []string{"p"}, CollectIdents(q))
}

func TestFreeIdents(t *testing.T) {
	p := ir.NewIdent("p", personType)
	outer := ir.NewIdent("outer", ir.Value)

	f := ir.NewFilter(ir.NewEntity("Person", personType), p,
		ir.NewBinaryOp(ir.NewProperty(p, "age"), ir.OpGt, outer))

	free := FreeIdents(f)
	names := make([]string, 0, len(free))
	for n := range free {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"outer"}, names)
	assert.True(t, IsFree(f, "outer"))
	assert.False(t, IsFree(f, "p"))
}

func TestFreeIdentsBlockScoping(t *testing.T) {
	a := ir.NewIdent("a", ir.Value)
	b := ir.NewIdent("b", ir.Value)
	blk := ir.NewBlock([]ir.Binding{
		{Name: a, Value: b},
		{Name: b, Value: a},
	}, b)

	assert.True(t, IsFree(blk, "b"), "b is free in the first binding")
	assert.False(t, IsFree(blk, "a"))
}

func TestFreeIdentsFunction(t *testing.T) {
	x := ir.NewIdent("x", ir.Value)
	y := ir.NewIdent("y", ir.Value)
	fn := ir.NewFunction([]*ir.Ident{x}, ir.NewBinaryOp(x, ir.OpAdd, y))

	assert.Equal(t, map[string]bool{"y": true}, FreeIdents(fn))
}

func TestNamesIncludesBinders(t *testing.T) {
	p := ir.NewIdent("p", personType)
	q := ir.NewFilter(ir.NewEntity("Person", personType), p, ir.NewConstant(ir.IRBool(true)))

	names := Names(q)
	assert.True(t, names["p"], "binder names count even when unused")
	assert.False(t, names["Person"])
	assert.Len(t, Binders(q), 1)
}
