// Package testutil holds IR fixtures and deterministic generators shared by
// the tests of the compiler passes.
package testutil

import "github.com/roach88/quarry/internal/ir"

// Schemas used across the pass tests.
var (
	PersonType  = ir.NewProductType("Person", ir.F("id", ir.Value), ir.F("name", ir.Value), ir.F("age", ir.Value))
	AddressType = ir.NewProductType("Address", ir.F("ownerId", ir.Value), ir.F("street", ir.Value))
)

// Person is the Person table.
func Person() *ir.Entity { return ir.NewEntity("Person", PersonType) }

// Address is the Address table.
func Address() *ir.Entity { return ir.NewEntity("Address", AddressType) }

// Row returns an identifier typed as a row of the entity e.
func Row(name string, e *ir.Entity) *ir.Ident { return ir.NewIdent(name, e.Type()) }

// Val returns a scalar identifier.
func Val(name string) *ir.Ident { return ir.NewIdent(name, ir.Value) }

// Int returns an integer literal.
func Int(n int64) *ir.Constant { return ir.NewConstant(ir.IRInt(n)) }

// Str returns a string literal.
func Str(s string) *ir.Constant { return ir.NewConstant(ir.IRString(s)) }

// Prop is ir.NewProperty.
func Prop(owner ir.Ast, name string) *ir.Property { return ir.NewProperty(owner, name) }

// Bin is ir.NewBinaryOp.
func Bin(l ir.Ast, op ir.BinaryOperator, r ir.Ast) *ir.BinaryOp { return ir.NewBinaryOp(l, op, r) }

// Adults is query[Person].filter(p => p.age > 18).map(p => p.name).
func Adults() *ir.Map {
	p := Row("p", Person())
	return ir.NewMap(
		ir.NewFilter(Person(), p, Bin(Prop(p, "age"), ir.OpGt, Int(18))),
		p, Prop(p, "name"))
}
