// Package compiler drives an IR query through the compilation pipeline:
//
//	validate IR -> normalize -> flatten -> validate clauses -> expand -> render
//
// Every stage is a pure function of its input. A Compiler holds only the
// dialect and the tracer, so one value may compile from many goroutines.
package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/quarry/internal/flatten"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/normalize"
	"github.com/roach88/quarry/internal/queryir"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/trace"
)

// Options configures a compilation.
type Options struct {
	// Dialect selects the SQL variant. Nil means querysql.Postgres.
	Dialect *querysql.Dialect

	// Tracer receives stage and flattening events. Nil means trace.Nop.
	Tracer trace.Tracer

	// Parallelism bounds CompileAll. Zero or less means GOMAXPROCS.
	Parallelism int
}

// Result is one compiled query.
type Result struct {
	// SQL is the statement text with dialect placeholders.
	SQL string `json:"sql" yaml:"sql"`

	// Params lists the bound parameters in placeholder order.
	Params []querysql.Param `json:"params" yaml:"params"`

	// Quotations lists the UIDs of quotations spliced as {{uid}}.
	Quotations []string `json:"quotations,omitempty" yaml:"quotations,omitempty"`

	// Type is the row type of the statement. For a set operation it is the
	// least upper type of both branches.
	Type ir.Type `json:"-" yaml:"-"`

	// Warnings names features some dialects cannot render.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Compiler compiles queries for one dialect.
type Compiler struct {
	dialect     *querysql.Dialect
	tracer      trace.Tracer
	parallelism int
}

// New creates a compiler from opts.
func New(opts Options) *Compiler {
	d := opts.Dialect
	if d == nil {
		d = querysql.Postgres
	}
	return &Compiler{dialect: d, tracer: trace.OrNop(opts.Tracer), parallelism: opts.Parallelism}
}

// Compile compiles q with a compiler built from opts.
func Compile(q ir.Ast, opts Options) (*Result, error) {
	return New(opts).Compile(q)
}

// Dialect returns the dialect the compiler renders for.
func (c *Compiler) Dialect() *querysql.Dialect { return c.dialect }

// Compile runs q through every stage. The first failing stage aborts the
// compilation; there is no partial result.
func (c *Compiler) Compile(q ir.Ast) (*Result, error) {
	if q == nil {
		return nil, errors.New("cannot compile nil query")
	}

	if errs := Validate(q); len(errs) > 0 {
		return nil, fmt.Errorf("validate query: %w", errs[0])
	}

	normalized, err := normalize.Normalize(q)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	c.stage("normalize", normalized)

	flat, err := flatten.Flatten(normalized, c.tracer)
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}

	check := queryir.Validate(flat)
	if err := check.Err(); err != nil {
		return nil, fmt.Errorf("validate statement: %w", err)
	}
	for _, w := range check.Warnings {
		c.tracer.Event("validate", w, trace.Fields{"dialect": c.dialect.Name})
	}

	expanded, err := flatten.ExpandNested(flat)
	if err != nil {
		return nil, fmt.Errorf("expand: %w", err)
	}

	stmt, err := querysql.Render(expanded, c.dialect)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", c.dialect.Name, err)
	}

	res := &Result{
		SQL:        stmt.String(c.dialect),
		Params:     stmt.Params(),
		Quotations: stmt.Quotations(),
		Type:       expanded.Type(),
		Warnings:   check.Warnings,
	}
	if c.tracer.Enabled() {
		c.tracer.Event("render", res.SQL, trace.Fields{"dialect": c.dialect.Name, "params": len(res.Params)})
	}
	return res, nil
}

func (c *Compiler) stage(name string, out ir.Ast) {
	if !c.tracer.Enabled() {
		return
	}
	c.tracer.Event(name, "done", trace.Fields{"ir": ir.Format(out)})
}
