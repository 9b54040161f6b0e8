package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/ir"
)

// Assertion kinds, used to categorize failures.
const (
	AssertSQL    = "sql"
	AssertError  = "error"
	AssertParams = "params"
	AssertRows   = "rows"
	AssertSyntax = "syntax"
)

// AssertionError is returned when an expectation fails.
// It includes enough context to debug the failure without rerunning.
type AssertionError struct {
	Type     string // assertion kind
	Query    string
	Dialect  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s (%s [%s])\n", e.Type, e.Query, e.Dialect)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// Error code for failures that carry no code of their own.
const codeUnclassified = "ERROR"

// ErrorCode classifies a compilation error: the ir error code for failures
// raised by the passes, the E1xx code for input validation failures and
// ERROR for anything else.
func ErrorCode(err error) string {
	var irErr *ir.Error
	if errors.As(err, &irErr) {
		return string(irErr.Code)
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	return codeUnclassified
}

// assertOutcome checks the compile-time expectations of one outcome.
func assertOutcome(o *Outcome, e *Expect) []error {
	var errs []error
	fail := func(kind, expected, actual string) {
		errs = append(errs, &AssertionError{
			Type: kind, Query: o.Query, Dialect: o.Dialect,
			Expected: expected, Actual: actual,
		})
	}

	if e.Error != "" {
		if o.ErrorCode != e.Error {
			fail(AssertError, "error "+e.Error, describeOutcome(o))
		}
		return errs
	}
	if o.ErrorCode != "" {
		fail(AssertError, "successful compilation", describeOutcome(o))
		return errs
	}

	if want, ok := e.SQL[o.Dialect]; ok && want != o.SQL {
		fail(AssertSQL, want, o.SQL)
	}

	if e.Params != nil {
		got := make([]string, len(o.Params))
		for i, p := range o.Params {
			got[i] = p.UID
		}
		if !cmp.Equal(e.Params, got) {
			fail(AssertParams, fmt.Sprint(e.Params), fmt.Sprint(got))
		}
	}

	return errs
}

// assertRows compares executed rows against the expected ones.
// Values are compared after normalization, so YAML ints match SQLite
// int64s and YAML booleans match SQLite's 0/1.
func assertRows(o *Outcome, want [][]any) error {
	w, g := normalizeRows(want), normalizeRows(o.Rows)
	if diff := cmp.Diff(w, g); diff != "" {
		return &AssertionError{
			Type: AssertRows, Query: o.Query, Dialect: o.Dialect,
			Expected: fmt.Sprint(w),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", g, diff),
		}
	}
	return nil
}

func normalizeRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = make([]any, len(row))
		for j, v := range row {
			out[i][j] = normalizeValue(v)
		}
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return string(val)
	}
	return v
}

func describeOutcome(o *Outcome) string {
	if o.ErrorCode != "" {
		return fmt.Sprintf("error %s: %s", o.ErrorCode, o.Error)
	}
	return o.SQL
}
