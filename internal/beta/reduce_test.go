package beta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/ir"
)

var personType = ir.NewProductType("Person", ir.F("id", ir.Value), ir.F("name", ir.Value), ir.F("age", ir.Value))

func ident(name string) *ir.Ident { return ir.NewIdent(name, ir.Value) }

func lit(n int64) *ir.Constant { return ir.NewConstant(ir.IRInt(n)) }

func TestReduceDirectMatch(t *testing.T) {
	x, y := ident("x"), ident("y")
	body := ir.NewBinaryOp(x, ir.OpAdd, y)

	out, err := Reduce(body, P(x, lit(1)))
	require.NoError(t, err)
	assert.Equal(t, "1 + y", ir.Format(out))
}

func TestReduceReplacementIsReResolvedWithoutItsOwnPair(t *testing.T) {
	x, y := ident("x"), ident("y")

	// x -> y + x must not loop: the x inside the replacement is not
	// substituted again, but y still is.
	out, err := Reduce(x,
		P(x, ir.NewBinaryOp(y, ir.OpAdd, x)),
		P(y, lit(2)))
	require.NoError(t, err)
	assert.Equal(t, "2 + x", ir.Format(out))
}

func TestReduceSwapDoesNotLoop(t *testing.T) {
	x, y := ident("x"), ident("y")

	out, err := Reduce(ir.NewTuple(x, y), P(x, y), P(y, x))
	require.NoError(t, err)
	assert.Equal(t, "(y, x)", ir.Format(out))
}

func TestReduceProjectsProductFields(t *testing.T) {
	p := ir.NewProduct("Point",
		ir.ProductField{Name: "a", Value: lit(1)},
		ir.ProductField{Name: "b", Value: lit(2)})
	out, err := Reduce(ir.NewProperty(p, "b"))
	require.NoError(t, err)
	assert.Equal(t, "2", ir.Format(out))

	tuple := ir.NewTuple(ident("u"), ident("v"))
	out, err = Reduce(ir.NewProperty(tuple, "_2"))
	require.NoError(t, err)
	assert.Equal(t, "v", ir.Format(out))
}

func TestReduceProjectsThroughSubstitutedOwner(t *testing.T) {
	r := ident("r")
	out, err := ReduceWith(ir.NewProperty(r, "_1"), Options{Types: ReplaceWithReduction},
		P(r, ir.NewTuple(lit(7), lit(8))))
	require.NoError(t, err)
	assert.Equal(t, "7", ir.Format(out))
}

func TestReduceFunctionApplyAvoidsCapture(t *testing.T) {
	x, y := ident("x"), ident("y")
	fn := ir.NewFunction([]*ir.Ident{x, y}, ir.NewBinaryOp(x, ir.OpSub, y))

	// (x, y) => x - y applied to (y, x): a naive substitution would produce
	// x - x or y - y.
	out, err := Reduce(ir.NewFunctionApply(fn, []ir.Ast{y, x}))
	require.NoError(t, err)
	assert.Equal(t, "y - x", ir.Format(out))
}

func TestReduceFunctionApplyFreshNamesAvoidExistingTmp(t *testing.T) {
	x, tmp := ident("x"), ident("tmp_x")
	fn := ir.NewFunction([]*ir.Ident{x}, ir.NewBinaryOp(x, ir.OpAdd, tmp))

	out, err := Reduce(ir.NewFunctionApply(fn, []ir.Ast{ir.NewBinaryOp(x, ir.OpMul, lit(2))}))
	require.NoError(t, err)
	assert.Equal(t, "(x * 2) + tmp_x", ir.Format(out))
}

func TestReduceFunctionApplyArityMismatch(t *testing.T) {
	x := ident("x")
	fn := ir.NewFunction([]*ir.Ident{x}, x)

	_, err := Reduce(ir.NewFunctionApply(fn, []ir.Ast{lit(1), lit(2)}))
	require.Error(t, err)
	assert.True(t, ir.IsInvariantError(err))
}

func TestReduceNestedApplicationToFixedPoint(t *testing.T) {
	x, f := ident("x"), ident("f")
	double := ir.NewFunction([]*ir.Ident{x}, ir.NewBinaryOp(x, ir.OpAdd, x))
	callF := ir.NewFunction([]*ir.Ident{f}, ir.NewFunctionApply(f, []ir.Ast{lit(3)}))

	out, err := Reduce(ir.NewFunctionApply(callF, []ir.Ast{double}))
	require.NoError(t, err)
	assert.Equal(t, "3 + 3", ir.Format(out))
}

func TestReduceFunctionParamRename(t *testing.T) {
	a, b := ident("a"), ident("b")
	fn := ir.NewFunction([]*ir.Ident{a}, ir.NewBinaryOp(a, ir.OpGt, lit(1)))

	out, err := Reduce(fn, P(a, b))
	require.NoError(t, err)
	assert.Equal(t, "(b) => b > 1", ir.Format(out))

	// A non-identifier replacement leaves the parameter alone and is shadowed
	// inside the body.
	out, err = Reduce(fn, P(a, lit(5)))
	require.NoError(t, err)
	assert.Same(t, fn, out)
}

func TestReduceBlockLastToFirst(t *testing.T) {
	a, b, c := ident("a"), ident("b"), ident("c")
	blk := ir.NewBlock([]ir.Binding{
		{Name: a, Value: lit(1)},
		{Name: b, Value: ir.NewBinaryOp(a, ir.OpAdd, lit(1))},
		{Name: c, Value: ir.NewBinaryOp(b, ir.OpMul, a)},
	}, ir.NewBinaryOp(c, ir.OpSub, b))

	out, err := Reduce(blk)
	require.NoError(t, err)
	assert.Equal(t, "(((1 + 1) * 1) - (1 + 1))", "("+ir.Format(out)+")")
}

func TestReduceBlockScoping(t *testing.T) {
	a, b := ident("a"), ident("b")

	tests := []struct {
		name  string
		block *ir.Block
		pairs []Pair
		want  string
	}{
		{
			name: "later rebinding is not seen by an earlier value",
			block: ir.NewBlock([]ir.Binding{
				{Name: b, Value: a},
				{Name: a, Value: lit(2)},
			}, ir.NewBinaryOp(a, ir.OpAdd, b)),
			want: "2 + a",
		},
		{
			name: "rebinding refers to the previous value",
			block: ir.NewBlock([]ir.Binding{
				{Name: a, Value: lit(1)},
				{Name: a, Value: ir.NewBinaryOp(a, ir.OpAdd, lit(1))},
			}, ir.NewBinaryOp(a, ir.OpMul, lit(3))),
			want: "(1 + 1) * 3",
		},
		{
			name: "free names take the outer replacement",
			block: ir.NewBlock([]ir.Binding{
				{Name: b, Value: a},
				{Name: a, Value: lit(2)},
			}, ir.NewBinaryOp(a, ir.OpAdd, b)),
			pairs: []Pair{P(a, lit(5))},
			want:  "2 + 5",
		},
		{
			name: "bound names shadow the outer replacement",
			block: ir.NewBlock([]ir.Binding{
				{Name: a, Value: lit(7)},
			}, ir.NewBinaryOp(a, ir.OpSub, b)),
			pairs: []Pair{P(a, lit(5)), P(b, lit(1))},
			want:  "7 - 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Reduce(tt.block, tt.pairs...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ir.Format(out))
		})
	}
}

func TestReduceQueryBindersShadow(t *testing.T) {
	p := ir.NewIdent("p", personType)
	outer := ir.NewIdent("p", personType)
	q := ir.NewFilter(ir.NewEntity("Person", personType), p,
		ir.NewBinaryOp(ir.NewProperty(p, "age"), ir.OpGt, lit(18)))

	out, err := Reduce(q, P(outer, ir.NewIdent("z", personType)))
	require.NoError(t, err)
	assert.Same(t, q, out, "the filter's own p is not the outer p")
}

func TestReduceKeepsIdentityWhenNothingApplies(t *testing.T) {
	p := ir.NewIdent("p", personType)
	q := ir.NewMap(ir.NewEntity("Person", personType), p, ir.NewProperty(p, "name"))

	out, err := Reduce(q)
	require.NoError(t, err)
	assert.Same(t, q, out)
}

func TestTypeReconciliationPolicies(t *testing.T) {
	x := ident("x")
	body := ir.NewBinaryOp(x, ir.OpEq, lit(1))
	row := ir.NewIdent("row", personType)

	_, err := ReduceWith(body, Options{Types: SubstituteSubtypes}, P(x, row))
	require.Error(t, err)
	assert.True(t, ir.IsTypeError(err))
	assert.Contains(t, err.Error(), "V does not unify with Person(")

	out, err := ReduceWith(body, Options{Types: ReplaceWithReduction}, P(x, row))
	require.NoError(t, err)
	assert.Equal(t, "row == 1", ir.Format(out))
}

func TestTypeReconciliationProductExpression(t *testing.T) {
	x := ident("x")
	tuple := ir.NewTuple(lit(1), lit(2))

	_, err := ReduceWith(x, Options{Types: SubstituteSubtypes}, P(x, tuple))
	require.Error(t, err)
	assert.True(t, ir.IsTypeError(err))

	out, err := ReduceWith(x, Options{Types: ReplaceWithReduction}, P(x, tuple))
	require.NoError(t, err)
	assert.Same(t, tuple, out)
}

func TestTypeReconciliationRetypesTerminal(t *testing.T) {
	p := ir.NewIdent("p", personType)
	narrow := ir.NewIdent("q", ir.NewProductType("Named", ir.F("name", ir.Value), ir.F("id", ir.Value)))

	out, err := Reduce(p, P(p, narrow))
	require.NoError(t, err)
	assert.Equal(t, "Person(id:V,name:V)", out.Type().String())
	assert.Equal(t, "q", ir.Format(out))
}

func TestTypeReconciliationEmptyProduct(t *testing.T) {
	p := ir.NewIdent("p", personType)
	other := ir.NewIdent("o", ir.NewProductType("Other", ir.F("zip", ir.Value)))

	out, err := ReduceWith(p, Options{Empty: AllowEmpty}, P(p, other))
	require.NoError(t, err)
	assert.Equal(t, "Person()", out.Type().String())

	_, err = ReduceWith(p, Options{Empty: FailOnEmpty}, P(p, other))
	require.Error(t, err)
	assert.True(t, ir.IsTypeError(err))
	assert.Contains(t, err.Error(), "share no fields")
}

func TestMustReducePanicsWithIRError(t *testing.T) {
	x := ident("x")
	defer func() {
		r := recover()
		e, ok := r.(*ir.Error)
		require.True(t, ok, "expected *ir.Error, got %T", r)
		assert.Equal(t, ir.ErrCodeTypeMismatch, e.Code)
	}()
	MustReduce(x, DefaultOptions, P(x, ir.NewIdent("row", personType)))
}
