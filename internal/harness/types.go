package harness

import (
	"github.com/roach88/quarry/internal/querysql"
)

// Outcome is what one query compiled to on one dialect.
type Outcome struct {
	Query   string           `json:"query"`
	Dialect string           `json:"dialect"`
	SQL     string           `json:"sql,omitempty"`
	Params  []querysql.Param `json:"params,omitempty"`

	// ErrorCode classifies a failed compilation. See ErrorCode.
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	// Rows holds the rows returned by the sqlite statement, when executed.
	Rows [][]any `json:"rows,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation held.
	Pass bool `json:"pass"`

	// Outcomes lists each query per dialect, in scenario order.
	Outcomes []Outcome `json:"outcomes"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutcome records a compilation outcome.
func (r *Result) AddOutcome(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}
