package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/quarry/internal/ir"
)

// CompileEntity parses a CUE struct into a table reference whose row type
// lists the struct's fields in declaration order.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Person: { id: int, name: string }`)
//	e, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Person")))
//
// Field kinds map to column types: string and int are values, bool is a
// boolean value, a nested struct is an embedded product. Floats are
// rejected because IR literals are integral.
func CompileEntity(v cue.Value) (*ir.Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	if name == "" {
		return nil, &CompileError{Field: "entity", Message: "entity name is required", Pos: v.Pos()}
	}

	schema, err := compileProduct(name, v)
	if err != nil {
		return nil, err
	}
	return ir.NewEntity(name, schema), nil
}

// CompileEntities parses every entity under the `entity` field of v, in
// declaration order.
func CompileEntities(v cue.Value) ([]*ir.Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entity definitions", Pos: v.Pos()}
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*ir.Entity
	for iter.Next() {
		e, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ParseEntities compiles CUE source and returns its entities.
func ParseEntities(filename string, src []byte) ([]*ir.Entity, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileEntities(v)
}

func compileProduct(name string, v cue.Value) (*ir.ProductType, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []ir.FieldType
	for iter.Next() {
		label := iter.Label()
		t, err := extractType(label, iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, ir.F(label, t))
	}
	if len(fields) == 0 {
		return nil, &CompileError{
			Field:   name,
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}
	return ir.NewProductType(name, fields...), nil
}

// extractType converts a CUE field kind to a column type.
func extractType(field string, v cue.Value) (ir.Type, error) {
	switch v.IncompleteKind() {
	case cue.StringKind, cue.IntKind:
		return ir.Value, nil
	case cue.BoolKind:
		return ir.BooleanValue, nil
	case cue.StructKind:
		return compileProduct(field, v)
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a schema error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
