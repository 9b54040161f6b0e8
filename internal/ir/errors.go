package ir

import (
	"errors"
	"fmt"
)

// Error is a compilation failure.
//
// Compilation errors fall into three categories:
//   - Internal invariant: a pass received a tree an earlier pass should have
//     ruled out (an unreduced application reaching flattening)
//   - Type mismatch: a substitution produced types that do not unify
//   - Domain misuse: a construct SQL cannot express (an infix as a flat-map body)
//
// All three are fail-fast. There is no partial output.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the offending subtree, if known.
	Node Ast
}

// ErrorCode categorizes compilation errors.
type ErrorCode string

const (
	// ErrCodeInvariant indicates a violated internal precondition.
	ErrCodeInvariant ErrorCode = "INTERNAL_INVARIANT"

	// ErrCodeTypeMismatch indicates a substitution broke type unification.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeMisuse indicates a construct with no SQL rendering.
	ErrCodeMisuse ErrorCode = "DOMAIN_MISUSE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Node != nil {
		if pos := e.Node.Pos(); pos.IsValid() {
			return fmt.Sprintf("%s: %s (at %s): %s", e.Code, e.Message, pos, Format(e.Node))
		}
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, Format(e.Node))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvariantError returns true if the error is an internal invariant violation.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	return hasCode(err, ErrCodeInvariant)
}

// IsTypeError returns true if the error is a type mismatch.
func IsTypeError(err error) bool {
	return hasCode(err, ErrCodeTypeMismatch)
}

// IsMisuseError returns true if the error is a domain misuse.
func IsMisuseError(err error) bool {
	return hasCode(err, ErrCodeMisuse)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Fail aborts the current pass by panicking with an *Error. Public entry
// points convert it back to an error with Recover.
func Fail(code ErrorCode, node Ast, format string, args ...any) {
	panic(&Error{Code: code, Message: fmt.Sprintf(format, args...), Node: node})
}

// Invariant aborts with an internal invariant error.
func Invariant(node Ast, format string, args ...any) {
	Fail(ErrCodeInvariant, node, format, args...)
}

// Misuse aborts with a domain misuse error.
func Misuse(node Ast, format string, args ...any) {
	Fail(ErrCodeMisuse, node, format, args...)
}

// TypeMismatch aborts with a type mismatch error naming both types.
func TypeMismatch(node Ast, a, b Type) {
	Fail(ErrCodeTypeMismatch, node, "cannot unify %s with %s", a, b)
}

// Recover converts a panic raised by Fail into an error stored in *err.
// Any other panic is re-raised. Use it deferred at public entry points:
//
//	func Flatten(q ir.Ast) (_ queryir.SqlQuery, err error) {
//	    defer ir.Recover(&err)
//	    ...
//	}
func Recover(err *error) {
	if r := recover(); r != nil {
		e, ok := r.(*Error)
		if !ok {
			panic(r)
		}
		*err = e
	}
}
