package flatten

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/trace"
	tu "github.com/roach88/quarry/internal/testutil"
)

type recorder struct {
	events []string
}

func (r *recorder) Enabled() bool { return true }

func (r *recorder) Event(stage, msg string, f trace.Fields) {
	r.events = append(r.events, fmt.Sprintf("%s %s %v", msg, f["operator"], f["alias"]))
}

func flat(t *testing.T, a ir.Ast) *queryir.FlattenSqlQuery {
	t.Helper()
	out, err := Flatten(a, nil)
	require.NoError(t, err)
	q, ok := out.(*queryir.FlattenSqlQuery)
	require.True(t, ok, "got %T", out)
	return q
}

func subquery(t *testing.T, ctx queryir.Context) *queryir.FlattenSqlQuery {
	t.Helper()
	qc, ok := ctx.(*queryir.QueryContext)
	require.True(t, ok, "got %T", ctx)
	q, ok := qc.Query.(*queryir.FlattenSqlQuery)
	require.True(t, ok, "got %T", qc.Query)
	return q
}

func TestFlattenEntitySelectsRootAlias(t *testing.T) {
	q := flat(t, tu.Person())

	require.Len(t, q.From, 1)
	assert.Equal(t, &queryir.TableContext{Entity: tu.Person(), Alias: RootAlias}, q.From[0])
	require.Len(t, q.Select, 1)
	assert.Equal(t, "x", ir.Format(q.Select[0].Ast))
}

func TestFlattenIdentityMapCollapses(t *testing.T) {
	x := tu.Row("x", tu.Person())

	withMap, err := Flatten(ir.NewMap(tu.Person(), x, x), nil)
	require.NoError(t, err)
	plain, err := Flatten(tu.Person(), nil)
	require.NoError(t, err)

	assert.Equal(t, plain, withMap)
}

func TestFlattenMergesFilterAndMap(t *testing.T) {
	rec := &recorder{}
	out, err := Flatten(tu.Adults(), rec)
	require.NoError(t, err)
	q := out.(*queryir.FlattenSqlQuery)

	require.Len(t, q.From, 1)
	assert.Equal(t, []string{"p"}, queryir.Aliases(q.From))
	assert.Equal(t, "p.age > 18", ir.Format(q.Where))
	assert.Equal(t, "p.name", ir.Format(q.Select[0].Ast))
	assert.Equal(t, []string{"merge filter p", "merge map p"}, rec.events)
}

func TestFlattenSecondFilterNests(t *testing.T) {
	p := tu.Row("p", tu.Person())
	inner := ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(18)))
	outer := ir.NewFilter(inner, p, tu.Bin(tu.Prop(p, "name"), ir.OpEq, tu.Str("Ann")))

	q := flat(t, outer)
	require.Len(t, q.From, 1)
	assert.Equal(t, `p.name == "Ann"`, ir.Format(q.Where))

	sub := subquery(t, q.From[0])
	assert.Equal(t, "p.age > 18", ir.Format(sub.Where))
	assert.Equal(t, []string{"p"}, queryir.Aliases(sub.From))
}

func TestFlattenTakeOfTakeNests(t *testing.T) {
	q := flat(t, ir.NewTake(ir.NewTake(tu.Person(), tu.Int(5)), tu.Int(5)))

	assert.Equal(t, "5", ir.Format(q.Limit))
	sub := subquery(t, q.From[0])
	assert.Equal(t, "5", ir.Format(sub.Limit))
	assert.Nil(t, sub.Offset)
}

func TestFlattenTakeAfterDropMerges(t *testing.T) {
	q := flat(t, ir.NewTake(ir.NewDrop(tu.Person(), tu.Int(10)), tu.Int(5)))

	assert.Equal(t, "5", ir.Format(q.Limit))
	assert.Equal(t, "10", ir.Format(q.Offset))
	_, isTable := q.From[0].(*queryir.TableContext)
	assert.True(t, isTable)
}

func TestFlattenDropAfterTakeNests(t *testing.T) {
	q := flat(t, ir.NewDrop(ir.NewTake(tu.Person(), tu.Int(5)), tu.Int(2)))

	assert.Nil(t, q.Limit)
	assert.Equal(t, "2", ir.Format(q.Offset))
	assert.Equal(t, "5", ir.Format(subquery(t, q.From[0]).Limit))
}

func TestFlattenFilterAfterTakeNests(t *testing.T) {
	p := tu.Row("p", tu.Person())
	tree := ir.NewFilter(ir.NewTake(tu.Person(), tu.Int(5)), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(1)))

	q := flat(t, tree)
	assert.Nil(t, q.Limit)
	assert.NotNil(t, q.Where)
	assert.Equal(t, "5", ir.Format(subquery(t, q.From[0]).Limit))
}

func TestFlattenFlatMapChainBuildsSources(t *testing.T) {
	p, a := tu.Row("p", tu.Person()), tu.Row("a", tu.Address())
	tree := ir.NewFlatMap(tu.Person(), p,
		ir.NewMap(
			ir.NewFilter(tu.Address(), a, tu.Bin(tu.Prop(a, "ownerId"), ir.OpEq, tu.Prop(p, "id"))),
			a, ir.NewTuple(tu.Prop(p, "name"), tu.Prop(a, "street"))))

	q := flat(t, tree)
	assert.Equal(t, []string{"p", "a"}, queryir.Aliases(q.From))
	assert.Equal(t, "a.ownerId == p.id", ir.Format(q.Where))
	assert.Equal(t, "(p.name, a.street)", ir.Format(q.Select[0].Ast))
}

func TestFlattenJoinAndFlatUnits(t *testing.T) {
	p, a := tu.Row("p", tu.Person()), tu.Row("a", tu.Address())
	join := ir.NewFlatJoin(ir.LeftJoin, tu.Address(), a, tu.Bin(tu.Prop(a, "ownerId"), ir.OpEq, tu.Prop(p, "id")))
	tree := ir.NewFlatMap(tu.Person(), p,
		ir.NewFlatMap(join, a,
			ir.NewMap(ir.NewFlatFilter(tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(18))), tu.Val("u"),
				ir.NewTuple(tu.Prop(p, "name"), tu.Prop(a, "street")))))

	q := flat(t, tree)
	require.Len(t, q.From, 2)
	j, ok := q.From[1].(*queryir.FlatJoinContext)
	require.True(t, ok)
	assert.Equal(t, ir.LeftJoin, j.Kind)
	assert.Equal(t, []string{"a"}, j.Aliases())
	assert.Equal(t, "p.age > 18", ir.Format(q.Where))
	assert.Equal(t, "(p.name, a.street)", ir.Format(q.Select[0].Ast))
}

func TestFlattenAggregationInPlace(t *testing.T) {
	p := tu.Row("p", tu.Person())
	tree := ir.NewAggregation(ir.AggMax, ir.NewMap(tu.Person(), p, tu.Prop(p, "age")))

	q := flat(t, tree)
	assert.Equal(t, "p.age.max", ir.Format(q.Select[0].Ast))
	assert.Equal(t, []string{"p"}, queryir.Aliases(q.From))
}

func TestFlattenAggregationOverDistinctNests(t *testing.T) {
	p := tu.Row("p", tu.Person())
	tree := ir.NewAggregation(ir.AggMax, ir.NewDistinct(ir.NewMap(tu.Person(), p, tu.Prop(p, "age"))))

	q := flat(t, tree)
	sub := subquery(t, q.From[0])
	assert.Equal(t, queryir.DistinctRows, sub.Distinct.Mode)

	expanded, err := ExpandNested(q)
	require.NoError(t, err)
	e := expanded.(*queryir.FlattenSqlQuery)
	assert.Equal(t, "x.age.max", ir.Format(e.Select[0].Ast))
	inner := subquery(t, e.From[0])
	assert.Empty(t, inner.Select[0].Alias, "a property keeps its own column name")
}

func TestFlattenSetOperationRowType(t *testing.T) {
	employee := ir.NewEntity("Employee", ir.NewProductType("Employee", ir.F("name", ir.Value), ir.F("id", ir.Value)))

	u, err := Flatten(ir.NewUnion(tu.Person(), employee), nil)
	require.NoError(t, err)
	set := u.(*queryir.SetOperationSqlQuery)
	assert.Equal(t, []string{"id", "name"}, set.RowType.(*ir.ProductType).FieldNames())

	_, err = Flatten(ir.NewUnion(tu.Person(), tu.Adults()), nil)
	require.Error(t, err)
	assert.True(t, ir.IsTypeError(err))

	_, err = Flatten(ir.NewUnionAll(tu.Address(), tu.Person()), nil)
	require.Error(t, err)
	assert.True(t, ir.IsTypeError(err))
	assert.Contains(t, err.Error(), "share no fields")
}

func TestFlattenSetAndEmptinessStatements(t *testing.T) {
	u, err := Flatten(ir.NewUnionAll(tu.Person(), tu.Person()), nil)
	require.NoError(t, err)
	set, ok := u.(*queryir.SetOperationSqlQuery)
	require.True(t, ok)
	assert.Equal(t, queryir.UnionAllOp, set.Op)

	e, err := Flatten(ir.NewUnaryOp(ir.OpNonEmpty, tu.Person()), nil)
	require.NoError(t, err)
	un, ok := e.(*queryir.UnaryOperationSqlQuery)
	require.True(t, ok)
	assert.Equal(t, ir.OpNonEmpty, un.Op)
}

func TestFlattenLowersEmbeddedQueries(t *testing.T) {
	p, o := tu.Row("p", tu.Person()), tu.Row("o", tu.Person())
	oldest := ir.NewAggregation(ir.AggMax, ir.NewMap(tu.Person(), o, tu.Prop(o, "age")))
	tree := ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpEq, oldest))

	q := flat(t, tree)
	sub, ok := q.Subquery(oldest)
	require.True(t, ok)
	assert.Equal(t, "o.age.max", ir.Format(sub.(*queryir.FlattenSqlQuery).Select[0].Ast))
}

func TestFlattenRejectsUnreducedTrees(t *testing.T) {
	x := tu.Val("x")
	tree := ir.NewFunctionApply(ir.NewFunction([]*ir.Ident{x}, x), []ir.Ast{tu.Int(1)})

	_, err := Flatten(tree, nil)
	require.Error(t, err)
	assert.True(t, ir.IsInvariantError(err))
}

func TestFlattenRejectsInfixFlatMapBody(t *testing.T) {
	p := tu.Row("p", tu.Person())
	raw := ir.NewInfix([]string{"SELECT 1"}, nil, true, ir.Value)

	_, err := Flatten(ir.NewFlatMap(tu.Person(), p, raw), nil)
	require.Error(t, err)
	assert.True(t, ir.IsMisuseError(err))
}

func TestFlattenTupleOrderingMismatch(t *testing.T) {
	p := tu.Row("p", tu.Person())
	tree := ir.NewSortBy(tu.Person(), p, ir.NewTuple(tu.Prop(p, "name"), tu.Prop(p, "age")),
		ir.TupleOrdering{ir.Asc})

	_, err := Flatten(tree, nil)
	require.Error(t, err)
	assert.True(t, ir.IsMisuseError(err))
}

func TestFlattenSortByTupleSplitsCriteria(t *testing.T) {
	p := tu.Row("p", tu.Person())
	tree := ir.NewSortBy(tu.Person(), p, ir.NewTuple(tu.Prop(p, "name"), tu.Prop(p, "age")),
		ir.TupleOrdering{ir.Asc, ir.Desc})

	q := flat(t, tree)
	require.Len(t, q.OrderBy, 2)
	assert.Equal(t, ir.Asc, q.OrderBy[0].Ordering)
	assert.Equal(t, ir.Desc, q.OrderBy[1].Ordering)
}

func TestFlattenGroupByMap(t *testing.T) {
	p, g := tu.Row("p", tu.Person()), tu.Row("g", tu.Person())
	tree := ir.NewGroupByMap(tu.Person(), p, tu.Prop(p, "name"),
		g, ir.NewTuple(tu.Prop(g, "name"), ir.NewAggregation(ir.AggMax, tu.Prop(g, "age"))))

	q := flat(t, tree)
	assert.Equal(t, "p.name", ir.Format(q.GroupBy))
	assert.Equal(t, "(p.name, p.age.max)", ir.Format(q.Select[0].Ast))
}
