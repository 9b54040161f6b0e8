package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/ir"
	tu "github.com/roach88/quarry/internal/testutil"
)

var people = []*ir.Entity{tu.Person(), tu.Address()}

func parse(t *testing.T, src string) ir.Ast {
	t.Helper()
	q, err := ParseQuery([]byte(src), people)
	require.NoError(t, err)
	return q
}

func TestParseQueryBuildsSameTreeAsConstructors(t *testing.T) {
	q := parse(t, `
map:
  from:
    filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 18]}}
  as: p
  to: p.name
`)
	assert.Equal(t, ir.HashOf(tu.Adults()), ir.HashOf(q), "got %s", ir.Format(q))
}

func TestParseQueryExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"path", `p.name`, "p.name"},
		{"int", `3`, "3"},
		{"bool", `true`, "true"},
		{"string", `{str: Ann}`, `"Ann"`},
		{"binary", `{and: [{gte: [p.age, 1]}, {neq: [p.id, 2]}]}`, "(p.age >= 1) && (p.id != 2)"},
		{"unary", `{not: {like: [p.name, {str: "A%"}]}}`, `!(p.name like "A%")`},
		{"aggregate", `{max: p.age}`, "p.age.max"},
		{"tuple", `{tuple: [p.id, p.name]}`, "(p.id, p.name)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := parse(t, "map: {from: {entity: Person}, as: p, to: "+tt.expr+"}")
			m, ok := q.(*ir.Map)
			require.True(t, ok)
			assert.Equal(t, tt.want, ir.Format(m.Body))
		})
	}
}

func TestParseQueryTypesParamsAndMethods(t *testing.T) {
	q := parse(t, `
filter:
  from: {entity: Person}
  as: p
  where:
    and:
      - {call: {on: p.name, method: startsWith, args: [{param: {uid: prefix, type: string}}]}}
      - {param: {uid: flag, type: bool}}
`)
	f := q.(*ir.Filter)
	and := f.Body.(*ir.BinaryOp)

	call := and.Left.(*ir.MethodCall)
	assert.Equal(t, "startsWith", call.Name)
	assert.Equal(t, ir.BooleanExpression, call.Type())
	tag := call.Args[0].(*ir.ScalarTag)
	assert.Equal(t, "prefix", tag.UID)
	assert.Equal(t, ir.Value, tag.Type())

	assert.Equal(t, ir.BooleanValue, and.Right.Type())
}

func TestParseQueryPropertyTypesFollowSchema(t *testing.T) {
	q := parse(t, `map: {from: {entity: Person}, as: p, to: p.age}`)
	m := q.(*ir.Map)
	p := m.Body.(*ir.Property)
	assert.Equal(t, "age", p.Name)
	assert.True(t, ir.TypeEqual(tu.PersonType, m.Alias.Type()))
}

func TestParseQueryJoinChain(t *testing.T) {
	q := parse(t, `
flatMap:
  from: {entity: Person}
  as: p
  to:
    flatMap:
      from: {join: {kind: left, from: {entity: Address}, as: a, on: {eq: [a.ownerId, p.id]}}}
      as: a
      to:
        map:
          from: {where: {gt: [p.age, 18]}}
          as: u
          to: {tuple: [p.name, a.street]}
`)
	outer := q.(*ir.FlatMap)
	inner := outer.Body.(*ir.FlatMap)
	join := inner.Head.(*ir.FlatJoin)
	assert.Equal(t, ir.LeftJoin, join.Kind)
	assert.Equal(t, "a.ownerId == p.id", ir.Format(join.On))

	unit := inner.Body.(*ir.Map)
	_, ok := unit.Head.(*ir.FlatFilter)
	assert.True(t, ok)
}

func TestParseQueryOrderings(t *testing.T) {
	q := parse(t, `
sortBy:
  from: {entity: Person}
  as: p
  by: {tuple: [p.name, p.age]}
  order: [ascNullsFirst, desc]
`)
	s := q.(*ir.SortBy)
	assert.Equal(t, ir.TupleOrdering{ir.AscNullsFirst, ir.Desc}, s.Ordering)

	q = parse(t, `sortBy: {from: {entity: Person}, as: p, by: p.name}`)
	assert.Equal(t, ir.Asc, q.(*ir.SortBy).Ordering)
}

func TestParseQueryWhenAndSubqueries(t *testing.T) {
	q := parse(t, `
map:
  from: {entity: Person}
  as: p
  to:
    when:
      - if: {nonEmpty: {filter: {from: {entity: Address}, as: a, where: {eq: [a.ownerId, p.id]}}}}
        then: {str: owner}
    else: {str: tenant}
`)
	w := q.(*ir.Map).Body.(*ir.When)
	require.Len(t, w.Branches, 1)
	cond := w.Branches[0].Cond.(*ir.UnaryOp)
	assert.Equal(t, ir.OpNonEmpty, cond.Op)
	assert.True(t, ir.IsQuery(cond.Operand))
}

func TestParseQuerySetOperationsAndPaging(t *testing.T) {
	q := parse(t, `
unionAll:
  - {take: {from: {entity: Person}, count: 1}}
  - {distinct: {drop: {from: {entity: Person}, count: 2}}}
`)
	u := q.(*ir.UnionAll)
	_, ok := u.A.(*ir.Take)
	assert.True(t, ok)
	_, ok = u.B.(*ir.Distinct)
	assert.True(t, ok)
}

func TestParseQueryInfixSource(t *testing.T) {
	q := parse(t, `
map:
  from: {sql: {parts: ["SELECT * FROM people WHERE age > ", ""], params: [18], as: Person}}
  as: p
  to: p.name
`)
	inf := q.(*ir.Map).Head.(*ir.Infix)
	assert.Len(t, inf.Params, 1)
	assert.True(t, ir.TypeEqual(tu.PersonType, inf.Type()))
}

func TestParseQueryTopLevelStatements(t *testing.T) {
	p := tu.Row("p", tu.Person())
	adults := ir.NewFilter(tu.Person(), p, tu.Bin(tu.Prop(p, "age"), ir.OpGt, tu.Int(18)))

	tests := []struct {
		name string
		src  string
		want ir.Ast
	}{
		{"size", `size: {entity: Person}`, ir.NewAggregation(ir.AggSize, tu.Person())},
		{"max over a projection", `max: {map: {from: {entity: Person}, as: p, to: p.age}}`,
			ir.NewAggregation(ir.AggMax, ir.NewMap(tu.Person(), p, tu.Prop(p, "age")))},
		{"nonEmpty", `nonEmpty: {filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 18]}}}`,
			ir.NewUnaryOp(ir.OpNonEmpty, adults)},
		{"isEmpty", `isEmpty: {entity: Address}`, ir.NewUnaryOp(ir.OpIsEmpty, tu.Address())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := parse(t, tt.src)
			assert.Equal(t, ir.HashOf(tt.want), ir.HashOf(q), "got %s", ir.Format(q))
		})
	}
}

func TestParseQueryErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		path string
		msg  string
	}{
		{"unknown entity", `entity: Nobody`, "query.entity", `unknown entity "Nobody"`},
		{"not a query", `gt: [1, 2]`, "query", "expected a query"},
		{"aggregation over an expression", `size: {gt: [1, 2]}`, "query.size", "expected a query"},
		{"negation statement", `not: {entity: Person}`, "query", "an emptiness test"},
		{"unbound alias", `filter: {from: {entity: Person}, as: p, where: {gt: [q.age, 1]}}`,
			"query.filter.where.gt[0]", `identifier "q" is not bound`},
		{"float", `filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 1.5]}}`,
			"query.filter.where.gt[1]", "floats are forbidden"},
		{"arity", `filter: {from: {entity: Person}, as: p, where: {gt: [p.age]}}`,
			"query.filter.where.gt", "expected a list of 2"},
		{"missing body", `map: {from: {entity: Person}, as: p}`, "query.map", "to is required"},
		{"bad ordering", `sortBy: {from: {entity: Person}, as: p, by: p.id, order: up}`,
			"query.sortBy.order", `unknown ordering "up"`},
		{"bad join", `join: {kind: cross, from: {entity: Person}, as: p, on: true}`,
			"query.join.kind", `unknown join kind "cross"`},
		{"unknown operator", `map: {from: {entity: Person}, as: p, to: {pow: [p.age, 2]}}`,
			"query.map.to.pow", `unknown operator "pow"`},
		{"list expression", `map: {from: {entity: Person}, as: p, to: [p.age]}`,
			"query.map.to", "use tuple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery([]byte(tt.src), people)
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.path, de.Path)
			assert.Contains(t, de.Message, tt.msg)
		})
	}
}
