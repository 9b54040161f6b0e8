package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/harness"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Specs  string // CUE spec file or directory
	Output string // output file path
}

// CompiledQuery is the output of one compiled query.
type CompiledQuery struct {
	Name       string           `json:"name" yaml:"name"`
	SQL        string           `json:"sql" yaml:"sql"`
	Params     []querysql.Param `json:"params,omitempty" yaml:"params,omitempty"`
	Quotations []string         `json:"quotations,omitempty" yaml:"quotations,omitempty"`
	Warnings   []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// CompilationResult holds every compiled query of a file.
type CompilationResult struct {
	Dialect string          `json:"dialect" yaml:"dialect"`
	Queries []CompiledQuery `json:"queries" yaml:"queries"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Compile queries to SQL",
		Long: `Compile the queries of a YAML query file to SQL for one dialect.

The file holds one query, or a list of {name, query} entries compiled
concurrently. Table schemas come from the CUE specs named by --specs.

Examples:
  quarry compile adults.yaml --specs ./specs
  quarry compile queries.yaml --specs ./specs --dialect sqlserver --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Specs, "specs", "s", ".", "CUE spec file or directory")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the SQL to this file")

	return cmd
}

func runCompile(opts *CompileOptions, queryFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	queries, err := loadQueries(formatter, opts.Specs, queryFile)
	if err != nil {
		return err
	}

	d := opts.dialect()
	asts := make([]ir.Ast, len(queries))
	for i, q := range queries {
		asts[i] = q.Query
	}
	results, err := compiler.CompileAll(cmd.Context(), asts, compiler.Options{
		Dialect:     d,
		Tracer:      opts.Tracer,
		Parallelism: opts.parallelism(),
	})
	if err != nil {
		return outputCompilationFailure(formatter, err)
	}

	out := CompilationResult{Dialect: d.Name, Queries: make([]CompiledQuery, len(results))}
	for i, r := range results {
		out.Queries[i] = CompiledQuery{
			Name:       queries[i].Name,
			SQL:        r.SQL,
			Params:     r.Params,
			Quotations: r.Quotations,
			Warnings:   r.Warnings,
		}
		opts.Logger.Info().Str("query", queries[i].Name).Str("dialect", d.Name).Msg("compiled")
	}

	if opts.Output != "" {
		if err := writeSQLFile(out, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, out, opts.Output)
}

// loadQueries loads the specs and decodes the query file against them,
// reporting failures as command errors.
func loadQueries(formatter *OutputFormatter, specs, queryFile string) ([]NamedQuery, error) {
	loadResult, loadErrors := LoadSpecs(specs, LoadModeCollectAll)
	if len(loadErrors) > 0 {
		return nil, outputLoadErrors(formatter, loadErrors)
	}
	formatter.VerboseLog("Loaded %d entities from %d CUE file(s)", len(loadResult.Entities), loadResult.FileCount)

	queries, err := ReadQueries(queryFile, loadResult.Entities)
	if err != nil {
		_ = formatter.Error(ErrCodeBadQuery, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeBadQuery, err)
	}
	formatter.VerboseLog("Read %d quer(ies) from %s", len(queries), queryFile)
	return queries, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult, outputFile string) error {
	if formatter.Structured() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	for i, q := range result.Queries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "-- %s (%s)\n%s\n", q.Name, result.Dialect, q.SQL)
		if len(q.Params) > 0 {
			rows := make([][]string, len(q.Params))
			for j, p := range q.Params {
				rows[j] = []string{strconv.Itoa(j + 1), p.UID, p.RuntimeType}
			}
			formatter.Table([]string{"#", "param", "type"}, rows)
		}
		for _, warning := range q.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warning)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(w, "\nWrote SQL to %s\n", outputFile)
	}
	return nil
}

// outputCompilationFailure reports a query that failed to compile. The
// code is the ir error code or the validation code of the failure.
func outputCompilationFailure(formatter *OutputFormatter, err error) error {
	code := harness.ErrorCode(err)
	if code == "ERROR" {
		code = ErrCodeGeneric
	}
	var verr compiler.ValidationError
	var details any
	if errors.As(err, &verr) {
		details = verr
	}
	_ = formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, code, err)
}

// outputLoadErrors outputs every spec loading error.
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	cliErrors := make([]CLIError, len(errs))
	for i, err := range errs {
		cliErrors[i] = CLIError{Code: ErrCodeGeneric, Message: err.Error()}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			cliErrors[i] = CLIError{Code: loadErr.Code, Message: loadErr.Error()}
		}
	}

	if formatter.Structured() {
		if err := formatter.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}); err != nil {
			return err
		}
	} else {
		for _, e := range cliErrors {
			fmt.Fprintf(formatter.Writer, "Error [%s]: %s\n", e.Code, e.Message)
		}
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("%d spec error(s)", len(errs)))
}

// writeSQLFile writes every statement, terminated by a semicolon.
func writeSQLFile(result CompilationResult, path string) error {
	var b strings.Builder
	for _, q := range result.Queries {
		fmt.Fprintf(&b, "-- %s\n%s;\n", q.Name, q.SQL)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
