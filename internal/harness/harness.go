package harness

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/sqlcheck"
	"github.com/roach88/quarry/internal/trace"
)

// Options configures a scenario run.
type Options struct {
	// Tracer receives pipeline events. Nil discards them.
	Tracer trace.Tracer
}

// Harness holds the state of one scenario run.
type Harness struct {
	entities []*ir.Entity
	checker  *sqlcheck.Checker
	tracer   trace.Tracer
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database.
//
// Execution flow:
// 1. Load and compile the CUE entity specs
// 2. Create and seed the scratch database
// 3. Decode and compile every query per dialect
// 4. Check each outcome against its expectations
//
// A returned error means the scenario could not run; failed expectations
// are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	entities, err := LoadSpecs(scenario.Specs)
	if err != nil {
		return nil, err
	}

	checker, err := sqlcheck.Open(entities)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch database: %w", err)
	}
	defer checker.Close()

	h := &Harness{
		entities: entities,
		checker:  checker,
		tracer:   trace.OrNop(opts.Tracer),
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	dialects := make([]*querysql.Dialect, 0, len(scenario.DialectNames()))
	for _, name := range scenario.DialectNames() {
		d, err := querysql.Lookup(name)
		if err != nil {
			return nil, err
		}
		dialects = append(dialects, d)
	}

	result := NewResult()
	for i := range scenario.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.runQuery(ctx, &scenario.Queries[i], dialects, result)
	}
	return result, nil
}

// LoadSpecs reads and compiles CUE entity specs. Entity names must be
// unique across all files.
func LoadSpecs(paths []string) ([]*ir.Entity, error) {
	var out []*ir.Entity
	seen := make(map[string]string)
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec: %w", err)
		}
		entities, err := compiler.ParseEntities(path, src)
		if err != nil {
			return nil, fmt.Errorf("spec %s: %w", path, err)
		}
		for _, e := range entities {
			if prev, ok := seen[e.Name]; ok {
				return nil, fmt.Errorf("entity %s declared in both %s and %s", e.Name, prev, path)
			}
			seen[e.Name] = path
			out = append(out, e)
		}
	}
	return out, nil
}

// seed inserts rows table by table in name order.
func (h *Harness) seed(ctx context.Context, rows map[string][]map[string]any) error {
	tables := make([]string, 0, len(rows))
	for table := range rows {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		if err := h.checker.Seed(ctx, table, rows[table]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) runQuery(ctx context.Context, qc *QueryCase, dialects []*querysql.Dialect, result *Result) {
	query, err := DecodeQuery(qc.Query, h.entities)
	if err != nil {
		result.AddError(fmt.Sprintf("%s: decode: %v", qc.Name, err))
		return
	}

	for _, d := range dialects {
		outcome := Outcome{Query: qc.Name, Dialect: d.Name}
		compiled, err := compiler.Compile(query, compiler.Options{Dialect: d, Tracer: h.tracer})
		if err != nil {
			outcome.ErrorCode = ErrorCode(err)
			outcome.Error = err.Error()
		} else {
			outcome.SQL = compiled.SQL
			outcome.Params = compiled.Params
		}

		errs := assertOutcome(&outcome, &qc.Expect)
		if d == querysql.SQLite && outcome.ErrorCode == "" {
			errs = append(errs, h.execute(ctx, qc, &outcome)...)
		}
		for _, e := range errs {
			result.AddError(e.Error())
		}
		result.AddOutcome(outcome)
	}
}

// execute prepares the sqlite statement and, when rows are expected,
// runs it with the case's parameter values in placeholder order.
func (h *Harness) execute(ctx context.Context, qc *QueryCase, o *Outcome) []error {
	if err := h.checker.Check(ctx, o.SQL); err != nil {
		return []error{&AssertionError{
			Type: AssertSyntax, Query: o.Query, Dialect: o.Dialect,
			Expected: "statement accepted by sqlite", Actual: err.Error(),
		}}
	}
	if qc.Expect.Rows == nil {
		return nil
	}

	args := make([]any, len(o.Params))
	for i, p := range o.Params {
		v, ok := qc.Params[p.UID]
		if !ok {
			return []error{fmt.Errorf("%s: no value for parameter %q", qc.Name, p.UID)}
		}
		args[i] = v
	}

	rows, err := h.checker.Query(ctx, o.SQL, args...)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", qc.Name, err)}
	}
	o.Rows = rows
	if err := assertRows(o, qc.Expect.Rows); err != nil {
		return []error{err}
	}
	return nil
}
