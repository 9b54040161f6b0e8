package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/querysql"
)

func TestErrorCode(t *testing.T) {
	irErr := &ir.Error{Code: ir.ErrCodeMisuse, Message: "nope"}
	assert.Equal(t, "DOMAIN_MISUSE", ErrorCode(fmt.Errorf("render: %w", irErr)))

	verr := compiler.ValidationError{Code: compiler.ErrUnboundIdent, Field: "ident"}
	assert.Equal(t, "E103", ErrorCode(fmt.Errorf("validate query: %w", verr)))

	assert.Equal(t, "ERROR", ErrorCode(errors.New("boom")))
}

func TestAssertOutcome(t *testing.T) {
	ok := Outcome{
		Query: "q", Dialect: "postgres", SQL: "SELECT 1",
		Params: []querysql.Param{{UID: "a", RuntimeType: "int"}, {UID: "b", RuntimeType: "int"}},
	}
	failed := Outcome{Query: "q", Dialect: "postgres", ErrorCode: "E104", Error: "[E104] take.count: negative"}

	tests := []struct {
		name    string
		outcome Outcome
		expect  Expect
		kinds   []string
	}{
		{"matching sql", ok, Expect{SQL: map[string]string{"postgres": "SELECT 1"}}, nil},
		{"other dialect only", ok, Expect{SQL: map[string]string{"mysql": "SELECT 2"}}, nil},
		{"wrong sql", ok, Expect{SQL: map[string]string{"postgres": "SELECT 2"}}, []string{AssertSQL}},
		{"param order", ok, Expect{Params: []string{"b", "a"}}, []string{AssertParams}},
		{"expected error", failed, Expect{Error: "E104"}, nil},
		{"wrong error", failed, Expect{Error: "E103"}, []string{AssertError}},
		{"unexpected error", failed, Expect{}, []string{AssertError}},
		{"missing error", ok, Expect{Error: "E104"}, []string{AssertError}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kinds []string
			for _, err := range assertOutcome(&tt.outcome, &tt.expect) {
				var ae *AssertionError
				require.ErrorAs(t, err, &ae)
				kinds = append(kinds, ae.Type)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestAssertRowsNormalizesValues(t *testing.T) {
	o := &Outcome{Query: "q", Dialect: "sqlite", Rows: [][]any{{int64(1), "Ann", int64(1)}}}

	assert.NoError(t, assertRows(o, [][]any{{1, "Ann", true}}))
	assert.NoError(t, assertRows(&Outcome{}, [][]any{}))

	err := assertRows(o, [][]any{{2, "Ann", true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Assertion failed: rows (q [sqlite])")
	assert.Contains(t, err.Error(), "-want +got")
}

func TestSnapshot(t *testing.T) {
	r := NewResult()
	r.AddOutcome(Outcome{Query: "a", Dialect: "postgres", SQL: "SELECT p.name FROM Person p WHERE p.age > $1",
		Params: []querysql.Param{{UID: "min", RuntimeType: "int"}}})
	r.AddOutcome(Outcome{Query: "b", Dialect: "mysql", ErrorCode: "DOMAIN_MISUSE"})

	want := "# s\n" +
		"a [postgres]: SELECT p.name FROM Person p WHERE p.age > $1 -- params: min:int\n" +
		"b [mysql]: error DOMAIN_MISUSE\n"
	assert.Equal(t, want, string(Snapshot("s", r)))
}
