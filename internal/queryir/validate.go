package queryir

import (
	"fmt"

	"github.com/roach88/quarry/internal/ir"
)

// ValidationResult contains the structural check and portability analysis
// of a compiled statement.
//
// Errors are invariant violations: the flattener produced a shape the
// renderer cannot express. Warnings name features some dialects lack; the
// statement is still rendered, and the target database has the final word.
type ValidationResult struct {
	// Errors lists invariant violations. Empty for a well-formed statement.
	Errors []string

	// IsPortable indicates if the statement uses only features every
	// built-in dialect can render.
	IsPortable bool

	// Warnings lists non-portable features used in the statement.
	Warnings []string
}

// Err returns the first invariant violation as an *ir.Error, or nil.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &ir.Error{Code: ir.ErrCodeInvariant, Message: r.Errors[0]}
}

// Validate checks a statement against the clause-model invariants and
// collects portability warnings.
//
// Invariants:
//  1. Every SELECT has a non-empty select list
//  2. A select item has exactly one of Ast and Subquery, and its Ast is
//     never a relation
//  3. Every non-join context has an alias, unique within its FROM list
//  4. A FROM list does not open with a join
//
// Portability warnings:
//   - DISTINCT ON (PostgreSQL and H2 only)
//   - concatenating select items (UNNEST)
//   - FULL joins (not in MySQL)
//   - impure raw fragments used as sources
//
// Validate is a pure function with no side effects.
func Validate(q SqlQuery) ValidationResult {
	v := &validator{}
	v.validateQuery(q)

	return ValidationResult{
		Errors:     v.errors,
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates findings during traversal.
type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q SqlQuery) {
	switch query := q.(type) {
	case nil:
		v.addError("nil statement")
	case *FlattenSqlQuery:
		v.validateFlatten(query)
	case *SetOperationSqlQuery:
		v.validateQuery(query.A)
		v.validateQuery(query.B)
	case *UnaryOperationSqlQuery:
		if query.Op != ir.OpIsEmpty && query.Op != ir.OpNonEmpty {
			v.addError("unary statement with operator %q, want isEmpty or nonEmpty", query.Op)
		}
		v.validateQuery(query.Query)
	default:
		v.addError("unknown statement type %T", q)
	}
}

func (v *validator) validateFlatten(q *FlattenSqlQuery) {
	if len(q.Select) == 0 {
		v.addError("SELECT with an empty select list")
	}
	for i, s := range q.Select {
		v.validateSelectValue(i, s)
	}

	seen := map[string]bool{}
	for i, c := range q.From {
		if _, ok := c.(*FlatJoinContext); ok && i == 0 {
			v.addError("FROM list opens with a join")
		}
		v.validateContext(c, seen)
	}

	if q.Distinct.Mode == DistinctOnKeys {
		if len(q.Distinct.Keys) == 0 {
			v.addError("DISTINCT ON without keys")
		}
		v.addWarning("DISTINCT ON is only supported by PostgreSQL and H2")
	}

	for _, s := range q.Subqueries {
		v.validateQuery(s)
	}
}

func (v *validator) validateSelectValue(i int, s SelectValue) {
	switch {
	case s.Ast == nil && s.Subquery == nil:
		v.addError("select item %d is empty", i+1)
	case s.Ast != nil && s.Subquery != nil:
		v.addError("select item %d has both an expression and a subquery", i+1)
	case s.Ast != nil && IsSubquery(s.Ast):
		v.addError("select item %d is an unlowered query: %s", i+1, ir.Format(s.Ast))
	case s.Subquery != nil:
		v.validateQuery(s.Subquery)
	}
	if s.Concat {
		v.addWarning("select item %d concatenates a collection (UNNEST), not supported by every dialect", i+1)
	}
}

func (v *validator) validateContext(c Context, seen map[string]bool) {
	alias := func(a string) {
		if a == "" {
			v.addError("source without an alias")
			return
		}
		if seen[a] {
			v.addError("alias %q is bound twice in one FROM list", a)
		}
		seen[a] = true
	}

	switch ctx := c.(type) {
	case *TableContext:
		alias(ctx.Alias)
	case *QueryContext:
		alias(ctx.Alias)
		v.validateQuery(ctx.Query)
	case *InfixContext:
		alias(ctx.Alias)
		if !ctx.Infix.Pure {
			v.addWarning("impure raw fragment used as source %q", ctx.Alias)
		}
	case *TagContext:
		alias(ctx.Alias)
	case *FlatJoinContext:
		if _, ok := ctx.From.(*FlatJoinContext); ok {
			v.addError("join of a join")
		}
		if ctx.Kind == ir.FullJoin {
			v.addWarning("FULL JOIN is not supported by MySQL")
		}
		v.validateContext(ctx.From, seen)
	default:
		v.addError("unknown source type %T", c)
	}
}
