package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/ir"
	tu "github.com/roach88/quarry/internal/testutil"
)

func TestAvoidAliasConflictRenamesReusedBinder(t *testing.T) {
	x := tu.Row("x", tu.Person())
	inner := tu.Row("x", tu.Address())
	y := tu.Row("y", tu.Person())

	q := ir.NewFlatMap(
		ir.NewFlatMap(tu.Person(), x, ir.NewMap(tu.Address(), inner, inner)),
		y, tu.Address())

	out := AvoidAliasConflict(q)
	assert.Equal(t,
		"query[Person].flatMap(x => query[Address].map(x1 => x1)).flatMap(y => query[Address])",
		ir.Format(out))
}

func TestAvoidAliasConflictUnionBranchesAreIndependent(t *testing.T) {
	x := tu.Row("x", tu.Person())
	q := ir.NewUnion(
		ir.NewFilter(tu.Person(), x, tu.Bin(tu.Prop(x, "age"), ir.OpGt, tu.Int(1))),
		ir.NewFilter(tu.Person(), x, tu.Bin(tu.Prop(x, "age"), ir.OpLt, tu.Int(1))))

	assert.Same(t, q, AvoidAliasConflict(q))
}

func TestAvoidAliasConflictFlatJoinGetsFreshBinder(t *testing.T) {
	a := tu.Row("a", tu.Address())
	outer := tu.Row("a", tu.Person())
	join := ir.NewFlatJoin(ir.InnerJoin, tu.Address(), a, tu.Bin(tu.Prop(a, "ownerId"), ir.OpEq, tu.Int(1)))
	q := ir.NewFlatMap(tu.Person(), outer, join)

	out := AvoidAliasConflict(q)
	assert.Equal(t, "query[Person].flatMap(a => query[Address].join(a1 => a1.ownerId == 1))", ir.Format(out))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	q := tu.Adults()

	out, err := Normalize(q)
	require.NoError(t, err)
	assert.Same(t, q, out, "an already normal tree comes back untouched")
}

func TestNormalizeMergesFiltersAndPropagatesAlias(t *testing.T) {
	p, q, r := tu.Row("p", tu.Person()), tu.Row("q", tu.Person()), tu.Row("r", tu.Person())
	tree := ir.NewMap(
		ir.NewFilter(
			ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(18))),
			q, tu.Bin(tu.Prop(q, "name"), ir.OpEq, tu.Str("Ann"))),
		r, tu.Prop(r, "name"))

	out, err := Normalize(tree)
	require.NoError(t, err)
	assert.Equal(t,
		`query[Person].filter(p => (p.age > 18) && (p.name == "Ann")).map(p => p.name)`,
		ir.Format(out))

	again, err := Normalize(out)
	require.NoError(t, err)
	assert.Same(t, out, again)
}

func TestNormalizeInlinesFunctionApplication(t *testing.T) {
	p, n := tu.Row("p", tu.Person()), tu.Val("n")
	older := ir.NewFunction([]*ir.Ident{n}, ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, n)))

	out, err := Normalize(ir.NewFunctionApply(older, []ir.Ast{tu.Int(30)}))
	require.NoError(t, err)
	assert.Equal(t, "query[Person].filter(p => p.age > 30)", ir.Format(out))
}

func TestNormalizeReportsArityMismatch(t *testing.T) {
	n := tu.Val("n")
	fn := ir.NewFunction([]*ir.Ident{n}, tu.Person())

	_, err := Normalize(ir.NewFunctionApply(fn, nil))
	require.Error(t, err)
	assert.True(t, ir.IsInvariantError(err))
}

func TestOrderTermsMovesFilterBelowSort(t *testing.T) {
	p, q := tu.Row("p", tu.Person()), tu.Row("q", tu.Person())
	tree := ir.NewFilter(
		ir.NewSortBy(tu.Person(), p, tu.Prop(p, "age"), ir.Asc),
		q, tu.Bin(tu.Prop(q, "age"), ir.OpGt, tu.Int(1)))

	out := OrderTerms(tree)
	require.NotNil(t, out)
	assert.Equal(t, "query[Person].filter(p => p.age > 1).sortBy(p => p.age)(asc)", ir.Format(out))
}

func TestOrderTermsMovesTakeAboveMapOfFlatMap(t *testing.T) {
	p, a := tu.Row("p", tu.Person()), tu.Row("a", tu.Address())
	tree := ir.NewMap(ir.NewTake(ir.NewFlatMap(tu.Person(), p, tu.Address()), tu.Int(3)), a, tu.Prop(a, "street"))

	out := OrderTerms(tree)
	require.NotNil(t, out)
	assert.Equal(t, "query[Person].flatMap(p => query[Address]).map(a => a.street).take(3)", ir.Format(out))
	assert.Nil(t, ApplyMap(out), "take is not lifted back over a map of a flatMap")
}

func TestApplyMapFusesMaps(t *testing.T) {
	p := tu.Row("p", tu.Person())
	pair := ir.NewTuple(tu.Prop(p, "name"), tu.Prop(p, "age"))
	tup := ir.NewIdent("t", pair.Type())
	tree := ir.NewMap(ir.NewMap(tu.Person(), p, pair), tup, tu.Prop(tup, "_1"))

	out := ApplyMap(tree)
	require.NotNil(t, out)
	assert.Equal(t, "query[Person].map(p => p.name)", ir.Format(out))
}

func TestApplyMapLiftsMapOverFilter(t *testing.T) {
	p, age := tu.Row("p", tu.Person()), tu.Val("age")
	tree := ir.NewFilter(ir.NewMap(tu.Person(), p, tu.Prop(p, "age")), age, tu.Bin(age, ir.OpGt, tu.Int(18)))

	out := ApplyMap(tree)
	require.NotNil(t, out)
	assert.Equal(t, "query[Person].filter(p => p.age > 18).map(p => p.age)", ir.Format(out))
}

func TestApplyMapKeepsImpureProjection(t *testing.T) {
	p, r := tu.Row("p", tu.Person()), tu.Val("r")
	random := ir.NewInfix([]string{"random()"}, nil, false, ir.Value)
	tree := ir.NewFilter(ir.NewMap(tu.Person(), p, random), r, tu.Bin(r, ir.OpGt, tu.Int(1)))

	assert.Nil(t, ApplyMap(tree))
}

func TestApplyMapIdentity(t *testing.T) {
	p := tu.Row("p", tu.Person())
	filtered := ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(1)))

	assert.Same(t, filtered, ApplyMap(ir.NewMap(filtered, p, p)))
	assert.Nil(t, ApplyMap(ir.NewMap(ir.NewNested(filtered), p, p)), "nested marks a boundary")
}

func TestAdHocReductionPushesMapIntoFlatMap(t *testing.T) {
	p, a := tu.Row("p", tu.Person()), tu.Row("a", tu.Address())
	tree := ir.NewMap(
		ir.NewFlatMap(tu.Person(), p,
			ir.NewFilter(tu.Address(), a, tu.Bin(tu.Prop(a, "ownerId"), ir.OpEq, tu.Prop(p, "id")))),
		a, tu.Prop(a, "street"))

	out := AdHocReduction(tree)
	require.NotNil(t, out)
	assert.Equal(t,
		"query[Person].flatMap(p => query[Address].filter(a => a.ownerId == p.id).map(a => a.street))",
		ir.Format(out))
}

func TestAdHocReductionDistributesFlatMapOverUnion(t *testing.T) {
	p := tu.Row("p", tu.Person())
	tree := ir.NewFlatMap(tu.Person(), p, ir.NewUnion(tu.Address(), tu.Address()))

	out := AdHocReduction(tree)
	require.NotNil(t, out)
	assert.Equal(t,
		"query[Person].flatMap(p => query[Address]).union(query[Person].flatMap(p => query[Address]))",
		ir.Format(out))
}

func TestPropagateAliasesKeepsBinderWhenNameIsTaken(t *testing.T) {
	p, q := tu.Row("p", tu.Person()), tu.Row("q", tu.Person())
	tree := ir.NewMap(
		ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(1))),
		q, ir.NewTuple(tu.Prop(q, "name"), tu.Val("p")))

	assert.Same(t, tree, PropagateAliases(tree))
}

func TestNormalizeNestedReportsNoChange(t *testing.T) {
	assert.Nil(t, NormalizeNested(tu.Adults()))
}
