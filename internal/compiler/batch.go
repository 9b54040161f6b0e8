package compiler

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/quarry/internal/ir"
)

// CompileAll compiles queries concurrently with a compiler built from opts.
// Results keep the input order. The first failure cancels the compilations
// that have not started yet and is returned alone.
func CompileAll(ctx context.Context, queries []ir.Ast, opts Options) ([]*Result, error) {
	return New(opts).CompileAll(ctx, queries)
}

// CompileAll is the method form of the package function.
func (c *Compiler) CompileAll(ctx context.Context, queries []ir.Ast) ([]*Result, error) {
	limit := c.parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := c.Compile(q)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
