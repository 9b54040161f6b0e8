package ir

import "fmt"

// Ast is any node of the IR tree.
//
// This is a sealed interface - only types in this package implement it. The
// marker method (base) exposes the shared node metadata and prevents external
// implementations, so traversals can be exhaustive type switches.
type Ast interface {
	// Type returns the structural type of the node.
	Type() Type
	// Pos returns the source location the frontend recorded for the node.
	Pos() Pos

	base() *meta
}

// Query is an Ast producing rows.
//
// Query types: Entity, Filter, Map, FlatMap, ConcatMap, SortBy, GroupByMap,
// Take, Drop, Union, UnionAll, Distinct, DistinctOn, Nested, FlatJoin,
// FlatFilter, FlatGroupBy, FlatSortBy, Infix and QueryTag.
type Query interface {
	Ast
	queryNode() // Marker method - seals interface to this package
}

// Terminal is implemented by nodes whose type can be corrected in place when
// they are substituted: identifiers, properties and tags.
type Terminal interface {
	Ast
	terminalNode()
}

// Pos is a source location recorded by the frontend.
// The zero Pos means "unknown".
type Pos struct {
	File string
	Line int
	Col  int
}

// IsValid reports whether the position carries a line number.
func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// meta is embedded in every node.
type meta struct {
	typ  Type
	pos  Pos
	hash Hash
}

func (m *meta) base() *meta { return m }

// Type returns the structural type of the node.
func (m *meta) Type() Type {
	if m.typ == nil {
		return Unknown
	}
	return m.typ
}

// Pos returns the source location of the node.
func (m *meta) Pos() Pos { return m.pos }

// At returns a copy of the node carrying the given source position.
func At[T Ast](n T, pos Pos) T {
	c := clone(n).(T)
	c.base().pos = pos
	return c
}

// WithType returns a copy of a terminal node with a corrected type.
// The structural hash is unchanged since types do not take part in equality.
func WithType(t Terminal, typ Type) Terminal {
	c := clone(t).(Terminal)
	c.base().typ = typ
	return c
}

func clone(a Ast) Ast {
	switch n := a.(type) {
	case *Ident:
		c := *n
		return &c
	case *Property:
		c := *n
		return &c
	case *ScalarTag:
		c := *n
		return &c
	case *ExprTag:
		c := *n
		return &c
	case *QueryTag:
		c := *n
		return &c
	case *Constant:
		c := *n
		return &c
	case *Entity:
		c := *n
		return &c
	case *Filter:
		c := *n
		return &c
	case *Map:
		c := *n
		return &c
	case *FlatMap:
		c := *n
		return &c
	case *ConcatMap:
		c := *n
		return &c
	case *SortBy:
		c := *n
		return &c
	case *GroupByMap:
		c := *n
		return &c
	case *Take:
		c := *n
		return &c
	case *Drop:
		c := *n
		return &c
	case *Union:
		c := *n
		return &c
	case *UnionAll:
		c := *n
		return &c
	case *Distinct:
		c := *n
		return &c
	case *DistinctOn:
		c := *n
		return &c
	case *Nested:
		c := *n
		return &c
	case *FlatJoin:
		c := *n
		return &c
	case *FlatFilter:
		c := *n
		return &c
	case *FlatGroupBy:
		c := *n
		return &c
	case *FlatSortBy:
		c := *n
		return &c
	case *Infix:
		c := *n
		return &c
	case *BinaryOp:
		c := *n
		return &c
	case *UnaryOp:
		c := *n
		return &c
	case *Function:
		c := *n
		return &c
	case *FunctionApply:
		c := *n
		return &c
	case *Product:
		c := *n
		return &c
	case *Block:
		c := *n
		return &c
	case *When:
		c := *n
		return &c
	case *Aggregation:
		c := *n
		return &c
	case *MethodCall:
		c := *n
		return &c
	case *GlobalCall:
		c := *n
		return &c
	default:
		panic(fmt.Sprintf("ir: clone of unknown node %T", a))
	}
}

// Ident is a bound or free identifier.
type Ident struct {
	meta
	Name string
}

func (*Ident) terminalNode() {}

// NewIdent creates an identifier of the given type.
func NewIdent(name string, t Type) *Ident {
	n := &Ident{Name: name}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// Constant is a literal value.
type Constant struct {
	meta
	Value IRValue
}

// NewConstant creates a literal node.
func NewConstant(v IRValue) *Constant {
	if v == nil {
		v = IRNull{}
	}
	n := &Constant{Value: v}
	n.typ = typeOfValue(v)
	n.hash = computeHash(n)
	return n
}

// Property selects a field of a structured value.
type Property struct {
	meta
	Owner Ast
	Name  string
}

func (*Property) terminalNode() {}

// NewProperty creates a property access. The type is looked up in the
// owner's product type and is Unknown when the owner is not a product.
func NewProperty(owner Ast, name string) *Property {
	n := &Property{Owner: owner, Name: name}
	n.typ = Unknown
	if p, ok := owner.Type().(*ProductType); ok {
		if t, ok := p.Field(name); ok {
			n.typ = t
		}
	}
	n.hash = computeHash(n)
	return n
}

// NewTypedProperty creates a property access with an explicit type.
func NewTypedProperty(owner Ast, name string, t Type) *Property {
	n := &Property{Owner: owner, Name: name}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// BinaryOp applies a binary operator.
type BinaryOp struct {
	meta
	Left  Ast
	Op    BinaryOperator
	Right Ast
}

// NewBinaryOp creates a binary operation.
func NewBinaryOp(left Ast, op BinaryOperator, right Ast) *BinaryOp {
	n := &BinaryOp{Left: left, Op: op, Right: right}
	n.typ = Value
	if op.IsPredicate() {
		n.typ = BooleanExpression
	}
	n.hash = computeHash(n)
	return n
}

// UnaryOp applies a unary operator.
type UnaryOp struct {
	meta
	Op      UnaryOperator
	Operand Ast
}

// NewUnaryOp creates a unary operation.
func NewUnaryOp(op UnaryOperator, operand Ast) *UnaryOp {
	n := &UnaryOp{Op: op, Operand: operand}
	n.typ = BooleanExpression
	if op == OpNeg {
		n.typ = Value
	}
	n.hash = computeHash(n)
	return n
}

// Function is a lambda that can be stored and applied later.
type Function struct {
	meta
	Params []*Ident
	Body   Ast
}

// NewFunction creates a lambda.
func NewFunction(params []*Ident, body Ast) *Function {
	n := &Function{Params: params, Body: body}
	n.typ = body.Type()
	n.hash = computeHash(n)
	return n
}

// FunctionApply applies a function to arguments.
type FunctionApply struct {
	meta
	Function Ast
	Args     []Ast
}

// NewFunctionApply creates a function application.
func NewFunctionApply(fn Ast, args []Ast) *FunctionApply {
	n := &FunctionApply{Function: fn, Args: args}
	n.typ = fn.Type()
	n.hash = computeHash(n)
	return n
}

// ProductField is one named field of a Product.
type ProductField struct {
	Name  string
	Value Ast
}

// Product builds a structured value (tuple, row, case class).
type Product struct {
	meta
	Name   string
	Fields []ProductField
}

// NewProduct creates a named structured value.
func NewProduct(name string, fields ...ProductField) *Product {
	n := &Product{Name: name, Fields: fields}
	types := make([]FieldType, len(fields))
	for i, f := range fields {
		types[i] = FieldType{Name: f.Name, Type: f.Value.Type()}
	}
	n.typ = &ProductType{Name: name, Fields: types}
	n.hash = computeHash(n)
	return n
}

// NewTuple creates a product whose fields are named _1, _2, ...
func NewTuple(values ...Ast) *Product {
	fields := make([]ProductField, len(values))
	for i, v := range values {
		fields[i] = ProductField{Name: TupleField(i), Value: v}
	}
	return NewProduct("Tuple", fields...)
}

// TupleField returns the field name of the i-th (zero based) tuple element.
func TupleField(i int) string {
	return fmt.Sprintf("_%d", i+1)
}

// Field returns the value bound to the named field.
func (p *Product) Field(name string) (Ast, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Values returns the field values in order.
func (p *Product) Values() []Ast {
	out := make([]Ast, len(p.Fields))
	for i, f := range p.Fields {
		out[i] = f.Value
	}
	return out
}

// Binding is one local binding of a Block.
type Binding struct {
	Name  *Ident
	Value Ast
}

// Block is an ordered list of local bindings followed by a result.
type Block struct {
	meta
	Bindings []Binding
	Result   Ast
}

// NewBlock creates a block.
func NewBlock(bindings []Binding, result Ast) *Block {
	n := &Block{Bindings: bindings, Result: result}
	n.typ = result.Type()
	n.hash = computeHash(n)
	return n
}

// Branch is one condition/result pair of a When.
type Branch struct {
	Cond   Ast
	Result Ast
}

// When is a conditional with a default.
type When struct {
	meta
	Branches []Branch
	Else     Ast
}

// NewWhen creates a conditional.
func NewWhen(branches []Branch, otherwise Ast) *When {
	n := &When{Branches: branches, Else: otherwise}
	t := otherwise.Type()
	for _, b := range branches {
		t = lub(t, b.Result.Type())
	}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// Aggregation applies an aggregate operator. The operand is either an
// expression (inside a grouped map) or a whole query.
type Aggregation struct {
	meta
	Op      AggregationOperator
	Operand Ast
}

// NewAggregation creates an aggregation.
func NewAggregation(op AggregationOperator, operand Ast) *Aggregation {
	n := &Aggregation{Op: op, Operand: operand}
	n.typ = Value
	n.hash = computeHash(n)
	return n
}

// MethodCall invokes a named method on an owner value.
type MethodCall struct {
	meta
	Owner Ast
	Name  string
	Args  []Ast
}

// NewMethodCall creates a method invocation with an explicit result type.
func NewMethodCall(owner Ast, name string, args []Ast, t Type) *MethodCall {
	n := &MethodCall{Owner: owner, Name: name, Args: args}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// GlobalCall invokes a named global function.
type GlobalCall struct {
	meta
	Name string
	Args []Ast
}

// NewGlobalCall creates a global invocation with an explicit result type.
func NewGlobalCall(name string, args []Ast, t Type) *GlobalCall {
	n := &GlobalCall{Name: name, Args: args}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// ScalarTag stands for a runtime value bound as a statement parameter.
// RuntimeType names the type the executor needs to bind it.
type ScalarTag struct {
	meta
	UID         string
	RuntimeType string
}

func (*ScalarTag) terminalNode() {}

// NewScalarTag creates a parameter placeholder.
func NewScalarTag(uid, runtimeType string, t Type) *ScalarTag {
	n := &ScalarTag{UID: uid, RuntimeType: runtimeType}
	n.typ = t
	n.hash = computeHash(n)
	return n
}

// ExprTag stands for an expression the frontend splices in later.
type ExprTag struct {
	meta
	UID string
}

func (*ExprTag) terminalNode() {}

// NewExprTag creates an expression placeholder.
func NewExprTag(uid string, t Type) *ExprTag {
	n := &ExprTag{UID: uid}
	n.typ = t
	n.hash = computeHash(n)
	return n
}
