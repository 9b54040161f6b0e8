package sqlcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/querysql"
	tu "github.com/roach88/quarry/internal/testutil"
)

func open(t *testing.T) *Checker {
	t.Helper()
	c, err := Open([]*ir.Entity{tu.Person(), tu.Address()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Seed(ctx, "Person", []map[string]any{
		{"id": 1, "name": "Ann", "age": 30},
		{"id": 2, "name": "Bob", "age": 12},
	}))
	require.NoError(t, c.Seed(ctx, "Address", []map[string]any{
		{"ownerId": 1, "street": "Main St"},
	}))
	return c
}

func sqlite(t *testing.T, q ir.Ast) *compiler.Result {
	t.Helper()
	res, err := compiler.Compile(q, compiler.Options{Dialect: querysql.SQLite})
	require.NoError(t, err)
	return res
}

func TestOpenCreatesTables(t *testing.T) {
	c := open(t)
	assert.Equal(t, []string{"Address", "Person"}, c.Tables())
}

func TestCheckAcceptsCompiledStatements(t *testing.T) {
	c := open(t)
	ctx := context.Background()

	for _, q := range []ir.Ast{
		tu.Person(),
		tu.Adults(),
		ir.NewDrop(tu.Person(), tu.Int(1)),
		ir.NewUnionAll(tu.Adults(), ir.NewTake(tu.Adults(), tu.Int(1))),
	} {
		res := sqlite(t, q)
		assert.NoError(t, c.Check(ctx, res.SQL), res.SQL)
	}
}

func TestCheckRejectsUnknownColumns(t *testing.T) {
	c := open(t)

	err := c.Check(context.Background(), "SELECT x.nope FROM Person x")
	require.Error(t, err)
	var ce *CheckError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, "SELECT x.nope FROM Person x", ce.SQL)
}

func TestQueryRunsCompiledStatement(t *testing.T) {
	c := open(t)

	rows, err := c.Query(context.Background(), sqlite(t, tu.Adults()).SQL)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Ann"}}, rows)
}

func TestQueryBindsParameters(t *testing.T) {
	c := open(t)
	p := tu.Row("p", tu.Person())
	q := ir.NewMap(
		ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpLt, ir.NewScalarTag("max", "int", ir.Value))),
		p, tu.Prop(p, "id"))

	res := sqlite(t, q)
	require.Len(t, res.Params, 1)
	rows, err := c.Query(context.Background(), res.SQL, 18)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(2)}}, rows)
}

func TestQueryOffsetWithoutLimit(t *testing.T) {
	c := open(t)
	x := tu.Row("x", tu.Person())
	q := ir.NewMap(
		ir.NewDrop(ir.NewSortBy(tu.Person(), x, tu.Prop(x, "id"), ir.Asc), tu.Int(1)),
		x, tu.Prop(x, "name"))

	rows, err := c.Query(context.Background(), sqlite(t, q).SQL)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Bob"}}, rows)
}

func TestSeedRejectsUnknownNames(t *testing.T) {
	c := open(t)
	ctx := context.Background()

	assert.Error(t, c.Seed(ctx, "Nope", []map[string]any{{"id": 1}}))
	assert.Error(t, c.Seed(ctx, "Person", []map[string]any{{"height": 1}}))
	assert.NoError(t, c.Seed(ctx, "Person", nil))
}

func TestOpenRequiresSchema(t *testing.T) {
	_, err := Open([]*ir.Entity{ir.NewEntity("Loose", nil)})
	assert.Error(t, err)
}

func TestOpenPrefixesRepeatedEmbeddedColumns(t *testing.T) {
	place := ir.NewProductType("Place", ir.F("city", ir.Value))
	trip := ir.NewEntity("Trip", ir.NewProductType("Trip",
		ir.F("id", ir.Value), ir.F("from", place), ir.F("to", place)))

	c, err := Open([]*ir.Entity{trip})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Seed(ctx, "Trip", []map[string]any{
		{"id": 1, "from_city": "Oslo", "to_city": "Rome"},
	}))
	assert.Error(t, c.Seed(ctx, "Trip", []map[string]any{{"city": "Oslo"}}))

	x := tu.Row("x", trip)
	res := sqlite(t, ir.NewMap(trip, x, tu.Prop(tu.Prop(x, "to"), "city")))
	assert.Equal(t, "SELECT x.to_city FROM Trip x", res.SQL)

	rows, err := c.Query(ctx, res.SQL)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Rome"}}, rows)
}
