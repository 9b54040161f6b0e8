package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/transform"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedNode = "E100" // node kind the pipeline does not know
	ErrEmptyEntityName = "E101" // entity without a table name
	ErrUnknownOperator = "E102" // binary, unary or aggregation operator
	ErrUnboundIdent    = "E103" // identifier not bound by any enclosing binder
	ErrNegativeCount   = "E104" // take/drop with a negative literal
	ErrArityMismatch   = "E105" // lambda applied to the wrong number of args
	ErrInfixShape      = "E106" // infix parts do not surround its params
	ErrEmptyWhen       = "E107" // conditional without branches
)

// ValidationError is one problem found in an input query before
// compilation starts.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the input IR for mistakes a frontend can make and the
// passes would otherwise report deep inside the pipeline. It returns every
// problem found (does not fail-fast), in traversal order.
func Validate(a ir.Ast) []ValidationError {
	var errs []ValidationError
	add := func(n ir.Ast, field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    n.Pos().Line,
		})
	}

	transform.Walk(a, func(n ir.Ast) bool {
		switch node := n.(type) {
		case *ir.Entity:
			if node.Name == "" {
				add(n, "entity", ErrEmptyEntityName, "entity name is required")
			}
		case *ir.BinaryOp:
			if !ir.ValidBinaryOperators[node.Op] {
				add(n, "binary", ErrUnknownOperator, "unknown binary operator %q", node.Op)
			}
		case *ir.UnaryOp:
			if !ir.ValidUnaryOperators[node.Op] {
				add(n, "unary", ErrUnknownOperator, "unknown unary operator %q", node.Op)
			}
		case *ir.Aggregation:
			if !ir.ValidAggregationOperators[node.Op] {
				add(n, "aggregation", ErrUnknownOperator, "unknown aggregation %q", node.Op)
			}
		case *ir.Take:
			checkCount(node.Count, "take.count", add)
		case *ir.Drop:
			checkCount(node.Count, "drop.count", add)
		case *ir.FunctionApply:
			if fn, ok := node.Function.(*ir.Function); ok && len(fn.Params) != len(node.Args) {
				add(n, "apply", ErrArityMismatch, "function of %d parameters applied to %d arguments",
					len(fn.Params), len(node.Args))
			}
		case *ir.Infix:
			if len(node.Parts) != len(node.Params)+1 {
				add(n, "infix", ErrInfixShape, "%d parts cannot surround %d params",
					len(node.Parts), len(node.Params))
			}
		case *ir.When:
			if len(node.Branches) == 0 {
				add(n, "when", ErrEmptyWhen, "conditional has no branches")
			}
		}
		return true
	})

	free := transform.FreeIdents(a)
	names := make([]string, 0, len(free))
	for name := range free {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		add(a, "ident", ErrUnboundIdent, "identifier %q is not bound", name)
	}

	return errs
}

func checkCount(count ir.Ast, field string, add func(ir.Ast, string, string, string, ...any)) {
	c, ok := count.(*ir.Constant)
	if !ok {
		return
	}
	if n, ok := c.Value.(ir.IRInt); ok && n < 0 {
		add(count, field, ErrNegativeCount, "count must not be negative, got %d", n)
	}
}
