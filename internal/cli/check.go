package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/harness"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/sqlcheck"
)

// QueryCheck holds the findings for one query.
type QueryCheck struct {
	Name   string                     `json:"name" yaml:"name"`
	Valid  bool                       `json:"valid" yaml:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty" yaml:"errors,omitempty"`
	SQL    string                     `json:"sql,omitempty" yaml:"sql,omitempty"`
}

// CheckResult holds the findings for a query file.
type CheckResult struct {
	Valid   bool         `json:"valid" yaml:"valid"`
	Queries []QueryCheck `json:"queries" yaml:"queries"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var specs string

	cmd := &cobra.Command{
		Use:   "check <query-file>",
		Short: "Check queries against a scratch SQLite database",
		Long: `Check the queries of a YAML query file without printing SQL.

Every query is validated, reporting all problems rather than the first,
then compiled for sqlite and prepared against an in-memory database whose
tables are created from the CUE specs. A query passes when SQLite accepts
its statement.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, specs, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&specs, "specs", "s", ".", "CUE spec file or directory")

	return cmd
}

func runCheck(opts *RootOptions, specs, queryFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := LoadSpecs(specs, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, loadErrors)
	}
	queries, err := ReadQueries(queryFile, loadResult.Entities)
	if err != nil {
		_ = formatter.Error(ErrCodeBadQuery, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeBadQuery, err)
	}

	checker, err := sqlcheck.Open(loadResult.Entities)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening scratch database", err)
	}
	defer checker.Close()
	formatter.VerboseLog("Created tables: %v", checker.Tables())

	result := CheckResult{Valid: true}
	c := compiler.New(compiler.Options{Dialect: querysql.SQLite, Tracer: opts.Tracer})
	for _, q := range queries {
		qc := QueryCheck{Name: q.Name, Errors: compiler.Validate(q.Query)}
		if len(qc.Errors) == 0 {
			compiled, err := c.Compile(q.Query)
			switch {
			case err != nil:
				qc.Errors = append(qc.Errors, compiler.ValidationError{
					Field: "compile", Code: harness.ErrorCode(err), Message: err.Error(),
				})
			default:
				qc.SQL = compiled.SQL
				if err := checker.Check(cmd.Context(), compiled.SQL); err != nil {
					qc.Errors = append(qc.Errors, compiler.ValidationError{
						Field: "sqlite", Code: ErrCodeRejected, Message: err.Error(),
					})
				}
			}
		}
		qc.Valid = len(qc.Errors) == 0
		result.Valid = result.Valid && qc.Valid
		opts.Logger.Debug().Str("query", q.Name).Bool("valid", qc.Valid).Msg("checked")
		result.Queries = append(result.Queries, qc)
	}

	if formatter.Structured() {
		if err := formatter.Encode(checkResponse(result)); err != nil {
			return err
		}
	} else {
		outputCheckText(formatter, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "check failed")
	}
	return nil
}

func checkResponse(result CheckResult) CLIResponse {
	if result.Valid {
		return CLIResponse{Status: "ok", Data: result}
	}
	failed := 0
	for _, q := range result.Queries {
		if !q.Valid {
			failed++
		}
	}
	return CLIResponse{
		Status: "error",
		Data:   result,
		Error:  &CLIError{Code: "E_CHECK_FAILED", Message: fmt.Sprintf("%d quer(ies) failed", failed)},
	}
}

func outputCheckText(formatter *OutputFormatter, result CheckResult) {
	w := formatter.Writer
	for _, q := range result.Queries {
		if q.Valid {
			fmt.Fprintf(w, "✓ %s\n", q.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", q.Name)
		for _, e := range q.Errors {
			fmt.Fprintf(w, "  %s\n", e.Error())
		}
	}
	if result.Valid {
		fmt.Fprintln(w, "✓ All queries valid")
	}
}
