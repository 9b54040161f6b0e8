package ir

// Entity is a table reference. Its type is the table's row schema.
type Entity struct {
	meta
	Name string
}

func (*Entity) queryNode() {}

// NewEntity creates a table reference with the given row schema.
func NewEntity(name string, schema *ProductType) *Entity {
	n := &Entity{Name: name}
	n.typ = schema
	if schema == nil {
		n.typ = Unknown
	}
	n.hash = computeHash(n)
	return n
}

// Schema returns the row schema of the entity, or nil when it is unknown.
func (e *Entity) Schema() *ProductType {
	p, _ := e.typ.(*ProductType)
	return p
}

// Filter keeps the rows of Head for which Body holds.
type Filter struct {
	meta
	Head  Ast
	Alias *Ident
	Body  Ast
}

func (*Filter) queryNode() {}

// NewFilter creates a filter.
func NewFilter(head Ast, alias *Ident, body Ast) *Filter {
	n := &Filter{Head: head, Alias: alias, Body: body}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// Map projects every row of Head through Body.
type Map struct {
	meta
	Head  Ast
	Alias *Ident
	Body  Ast
}

func (*Map) queryNode() {}

// NewMap creates a projection.
func NewMap(head Ast, alias *Ident, body Ast) *Map {
	n := &Map{Head: head, Alias: alias, Body: body}
	n.typ = body.Type()
	n.hash = computeHash(n)
	return n
}

// IsIdentity reports whether the map returns its own binder unchanged.
func (m *Map) IsIdentity() bool {
	id, ok := m.Body.(*Ident)
	return ok && id.Name == m.Alias.Name
}

// FlatMap binds each row of Head and concatenates the queries Body yields.
type FlatMap struct {
	meta
	Head  Ast
	Alias *Ident
	Body  Ast
}

func (*FlatMap) queryNode() {}

// NewFlatMap creates a flat-map.
func NewFlatMap(head Ast, alias *Ident, body Ast) *FlatMap {
	n := &FlatMap{Head: head, Alias: alias, Body: body}
	n.typ = body.Type()
	n.hash = computeHash(n)
	return n
}

// ConcatMap expands every row of Head into the collection Body yields.
type ConcatMap struct {
	meta
	Head  Ast
	Alias *Ident
	Body  Ast
}

func (*ConcatMap) queryNode() {}

// NewConcatMap creates a concat-map. The element type is given explicitly
// since the body is a collection-valued expression.
func NewConcatMap(head Ast, alias *Ident, body Ast, elem Type) *ConcatMap {
	n := &ConcatMap{Head: head, Alias: alias, Body: body}
	n.typ = elem
	n.hash = computeHash(n)
	return n
}

// SortBy orders the rows of Head by Criteria.
type SortBy struct {
	meta
	Head     Ast
	Alias    *Ident
	Criteria Ast
	Ordering Ordering
}

func (*SortBy) queryNode() {}

// NewSortBy creates an ordering step.
func NewSortBy(head Ast, alias *Ident, criteria Ast, ordering Ordering) *SortBy {
	n := &SortBy{Head: head, Alias: alias, Criteria: criteria, Ordering: ordering}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// GroupByMap groups the rows of Head by ByBody and projects every group
// through MapBody. Both aliases range over the rows of Head; MapBody may
// aggregate over them.
type GroupByMap struct {
	meta
	Head     Ast
	ByAlias  *Ident
	ByBody   Ast
	MapAlias *Ident
	MapBody  Ast
}

func (*GroupByMap) queryNode() {}

// NewGroupByMap creates a grouping step.
func NewGroupByMap(head Ast, byAlias *Ident, byBody Ast, mapAlias *Ident, mapBody Ast) *GroupByMap {
	n := &GroupByMap{Head: head, ByAlias: byAlias, ByBody: byBody, MapAlias: mapAlias, MapBody: mapBody}
	n.typ = mapBody.Type()
	n.hash = computeHash(n)
	return n
}

// Take keeps the first Count rows of Head.
type Take struct {
	meta
	Head  Ast
	Count Ast
}

func (*Take) queryNode() {}

// NewTake creates a limit.
func NewTake(head, count Ast) *Take {
	n := &Take{Head: head, Count: count}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// Drop skips the first Count rows of Head.
type Drop struct {
	meta
	Head  Ast
	Count Ast
}

func (*Drop) queryNode() {}

// NewDrop creates an offset.
func NewDrop(head, count Ast) *Drop {
	n := &Drop{Head: head, Count: count}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// Union is the set union of two queries.
type Union struct {
	meta
	A Ast
	B Ast
}

func (*Union) queryNode() {}

// NewUnion creates a union typed with the least upper type of both sides.
func NewUnion(a, b Ast) *Union {
	n := &Union{A: a, B: b}
	n.typ = lub(a.Type(), b.Type())
	n.hash = computeHash(n)
	return n
}

// UnionAll is the bag union of two queries.
type UnionAll struct {
	meta
	A Ast
	B Ast
}

func (*UnionAll) queryNode() {}

// NewUnionAll creates a bag union typed with the least upper type of both sides.
func NewUnionAll(a, b Ast) *UnionAll {
	n := &UnionAll{A: a, B: b}
	n.typ = lub(a.Type(), b.Type())
	n.hash = computeHash(n)
	return n
}

// Distinct removes duplicate rows.
type Distinct struct {
	meta
	Head Ast
}

func (*Distinct) queryNode() {}

// NewDistinct creates a deduplication step.
func NewDistinct(head Ast) *Distinct {
	n := &Distinct{Head: head}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// DistinctOn keeps one row per distinct value of Body.
type DistinctOn struct {
	meta
	Head  Ast
	Alias *Ident
	Body  Ast
}

func (*DistinctOn) queryNode() {}

// NewDistinctOn creates a keyed deduplication step.
func NewDistinctOn(head Ast, alias *Ident, body Ast) *DistinctOn {
	n := &DistinctOn{Head: head, Alias: alias, Body: body}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// Nested forces a subquery boundary around Head.
type Nested struct {
	meta
	Head Ast
}

func (*Nested) queryNode() {}

// NewNested creates a subquery boundary.
func NewNested(head Ast) *Nested {
	n := &Nested{Head: head}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// FlatJoin joins Head into the enclosing flat-map chain under On.
type FlatJoin struct {
	meta
	Kind  JoinKind
	Head  Ast
	Alias *Ident
	On    Ast
}

func (*FlatJoin) queryNode() {}

// NewFlatJoin creates a join step of a flat-map chain.
func NewFlatJoin(kind JoinKind, head Ast, alias *Ident, on Ast) *FlatJoin {
	n := &FlatJoin{Kind: kind, Head: head, Alias: alias, On: on}
	n.typ = head.Type()
	n.hash = computeHash(n)
	return n
}

// FlatFilter is a WHERE step inside a flat-map chain.
type FlatFilter struct {
	meta
	Body Ast
}

func (*FlatFilter) queryNode() {}

// NewFlatFilter creates a filter unit.
func NewFlatFilter(body Ast) *FlatFilter {
	n := &FlatFilter{Body: body}
	n.typ = Unknown
	n.hash = computeHash(n)
	return n
}

// FlatGroupBy is a GROUP BY step inside a flat-map chain.
type FlatGroupBy struct {
	meta
	Body Ast
}

func (*FlatGroupBy) queryNode() {}

// NewFlatGroupBy creates a grouping unit.
func NewFlatGroupBy(body Ast) *FlatGroupBy {
	n := &FlatGroupBy{Body: body}
	n.typ = Unknown
	n.hash = computeHash(n)
	return n
}

// FlatSortBy is an ORDER BY step inside a flat-map chain.
type FlatSortBy struct {
	meta
	Body     Ast
	Ordering Ordering
}

func (*FlatSortBy) queryNode() {}

// NewFlatSortBy creates an ordering unit.
func NewFlatSortBy(body Ast, ordering Ordering) *FlatSortBy {
	n := &FlatSortBy{Body: body, Ordering: ordering}
	n.typ = Unknown
	n.hash = computeHash(n)
	return n
}

// Infix is a raw SQL fragment: Parts interleaved with Params, so
// len(Parts) == len(Params)+1. Pure fragments may be duplicated or moved by
// the normalizer; impure ones pin their enclosing map to a subquery.
type Infix struct {
	meta
	Parts  []string
	Params []Ast
	Pure   bool
}

func (*Infix) queryNode() {}

// NewInfix creates a raw fragment with an explicit result type.
func NewInfix(parts []string, params []Ast, pure bool, t Type) *Infix {
	n := &Infix{Parts: parts, Params: params, Pure: pure}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// QueryTag stands for a query the frontend splices in later.
type QueryTag struct {
	meta
	UID string
}

func (*QueryTag) queryNode()    {}
func (*QueryTag) terminalNode() {}

// NewQueryTag creates a query placeholder.
func NewQueryTag(uid string, t Type) *QueryTag {
	n := &QueryTag{UID: uid}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// IsQuery reports whether a is a query node.
func IsQuery(a Ast) bool {
	_, ok := a.(Query)
	return ok
}
