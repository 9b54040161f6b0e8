// Package beta implements capture-avoiding substitution: inlining of function
// application, projection of product fields, reduction of local blocks, and
// replacement of arbitrary subtrees with type reconciliation.
//
// Substitution is the workhorse of every later pass. Normalization uses it to
// rename binders and fuse maps, flattening uses it to re-alias grouping keys.
package beta

import (
	"fmt"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/transform"
)

// TypeBehavior selects how the type of a substituted terminal is reconciled
// with the type of its replacement.
type TypeBehavior int

const (
	// SubstituteSubtypes unifies the original and replacement types and fails
	// when they do not unify.
	SubstituteSubtypes TypeBehavior = iota

	// ReplaceWithReduction takes the replacement's type as is.
	ReplaceWithReduction
)

func (b TypeBehavior) String() string {
	if b == ReplaceWithReduction {
		return "replace-with-reduction"
	}
	return "substitute-subtypes"
}

// EmptyBehavior selects whether unifying two products may yield a product
// with no fields.
type EmptyBehavior int

const (
	// AllowEmpty tolerates an empty unified product.
	AllowEmpty EmptyBehavior = iota

	// FailOnEmpty treats an empty unified product as a type mismatch.
	FailOnEmpty
)

// Options configures a reduction.
type Options struct {
	Types TypeBehavior
	Empty EmptyBehavior
}

// DefaultOptions substitutes subtypes and allows empty products.
var DefaultOptions = Options{Types: SubstituteSubtypes, Empty: AllowEmpty}

// Reduce substitutes pairs through a with DefaultOptions and reduces the
// result to a fixed point.
func Reduce(a ir.Ast, pairs ...Pair) (ir.Ast, error) {
	return ReduceWith(a, DefaultOptions, pairs...)
}

// ReduceWith is Reduce with explicit options.
func ReduceWith(a ir.Ast, opts Options, pairs ...Pair) (out ir.Ast, err error) {
	defer ir.Recover(&err)
	return MustReduce(a, opts, pairs...), nil
}

// MustReduce is ReduceWith for use inside compiler passes: failures panic with
// an *ir.Error, to be recovered by the pass's public entry point.
//
// The first round applies the replacements. Every following round runs with no
// replacements, reducing the redexes the previous round exposed, until the
// tree stops changing.
func MustReduce(a ir.Ast, opts Options, pairs ...Pair) ir.Ast {
	out := newReducer(newReplacements(pairs...), opts).apply(a)
	plain := newReducer(replacements{}, opts)
	for {
		next := plain.apply(out)
		if next == out || ir.Equal(next, out) {
			return next
		}
		out = next
	}
}

type reducer struct {
	repl replacements
	opts Options
	tr   transform.Stateless
}

func newReducer(repl replacements, opts Options) *reducer {
	r := &reducer{repl: repl, opts: opts}
	r.tr.Rewrite = r.rewrite
	return r
}

func (r *reducer) with(repl replacements) *reducer {
	return newReducer(repl, r.opts)
}

func (r *reducer) apply(a ir.Ast) ir.Ast {
	return r.tr.Apply(a)
}

func (r *reducer) rewrite(_ *transform.Stateless, a ir.Ast) (ir.Ast, bool) {
	if rep, ok := r.repl.lookup(a); ok {
		// A replacement is itself reduced, but never against the pair that
		// produced it.
		out := r.with(r.repl.without(a, rep)).apply(rep)
		return r.correctType(a, out), true
	}

	switch n := a.(type) {
	case *ir.Property:
		owner := r.apply(n.Owner)
		if p, ok := owner.(*ir.Product); ok {
			if v, ok := p.Field(n.Name); ok {
				return r.apply(v), true
			}
		}
		if owner == n.Owner {
			return a, true
		}
		prop := ir.NewProperty(owner, n.Name)
		if prop.Type() == ir.Unknown {
			prop = ir.NewTypedProperty(owner, n.Name, n.Type())
		}
		return keepPos(a, prop), true

	case *ir.FunctionApply:
		fn, ok := n.Function.(*ir.Function)
		if !ok {
			return nil, false
		}
		return r.applyFunction(n, fn), true

	case *ir.Function:
		return r.function(n), true

	case *ir.Block:
		return r.block(n), true

	case *ir.Filter:
		h, b := r.apply(n.Head), r.under(n.Body, n.Alias)
		if h == n.Head && b == n.Body {
			return a, true
		}
		return keepPos(a, ir.NewFilter(h, n.Alias, b)), true
	case *ir.Map:
		h, b := r.apply(n.Head), r.under(n.Body, n.Alias)
		if h == n.Head && b == n.Body {
			return a, true
		}
		return keepPos(a, ir.NewMap(h, n.Alias, b)), true
	case *ir.FlatMap:
		h, b := r.apply(n.Head), r.under(n.Body, n.Alias)
		if h == n.Head && b == n.Body {
			return a, true
		}
		return keepPos(a, ir.NewFlatMap(h, n.Alias, b)), true
	case *ir.ConcatMap:
		h, b := r.apply(n.Head), r.under(n.Body, n.Alias)
		if h == n.Head && b == n.Body {
			return a, true
		}
		return keepPos(a, ir.NewConcatMap(h, n.Alias, b, n.Type())), true
	case *ir.SortBy:
		h, c := r.apply(n.Head), r.under(n.Criteria, n.Alias)
		if h == n.Head && c == n.Criteria {
			return a, true
		}
		return keepPos(a, ir.NewSortBy(h, n.Alias, c, n.Ordering)), true
	case *ir.DistinctOn:
		h, b := r.apply(n.Head), r.under(n.Body, n.Alias)
		if h == n.Head && b == n.Body {
			return a, true
		}
		return keepPos(a, ir.NewDistinctOn(h, n.Alias, b)), true
	case *ir.FlatJoin:
		h, on := r.apply(n.Head), r.under(n.On, n.Alias)
		if h == n.Head && on == n.On {
			return a, true
		}
		return keepPos(a, ir.NewFlatJoin(n.Kind, h, n.Alias, on)), true
	case *ir.GroupByMap:
		h := r.apply(n.Head)
		by := r.under(n.ByBody, n.ByAlias)
		body := r.under(n.MapBody, n.MapAlias)
		if h == n.Head && by == n.ByBody && body == n.MapBody {
			return a, true
		}
		return keepPos(a, ir.NewGroupByMap(h, n.ByAlias, by, n.MapAlias, body)), true
	}
	return nil, false
}

// under reduces body inside the scope of binder.
func (r *reducer) under(body ir.Ast, binder *ir.Ident) ir.Ast {
	if r.repl.empty() {
		return r.apply(body)
	}
	return r.with(r.repl.shadow(binder.Name)).apply(body)
}

// applyFunction inlines apply(function(params, body), args).
//
// Parameters whose names occur in the arguments are first renamed to fresh
// tmp_ names throughout the body. Only then are the parameters substituted by
// the arguments, so an argument mentioning x cannot be captured by a
// parameter named x.
func (r *reducer) applyFunction(app *ir.FunctionApply, fn *ir.Function) ir.Ast {
	if len(fn.Params) != len(app.Args) {
		ir.Invariant(app, "function of %d parameters applied to %d arguments", len(fn.Params), len(app.Args))
	}

	used := map[string]bool{}
	for _, arg := range app.Args {
		for _, name := range transform.CollectIdents(arg) {
			used[name] = true
		}
	}
	taken := map[string]bool{}
	for name := range used {
		taken[name] = true
	}
	for _, name := range transform.CollectIdents(fn.Body) {
		taken[name] = true
	}
	for _, p := range fn.Params {
		taken[p.Name] = true
	}

	body := fn.Body
	params := make([]*ir.Ident, len(fn.Params))
	var renames []Pair
	for i, p := range fn.Params {
		params[i] = p
		if !used[p.Name] {
			continue
		}
		fresh := freshName("tmp_"+p.Name, taken)
		taken[fresh] = true
		params[i] = ir.NewIdent(fresh, p.Type())
		renames = append(renames, P(p, params[i]))
	}
	if len(renames) > 0 {
		body = newReducer(newReplacements(renames...), Options{Types: ReplaceWithReduction}).apply(body)
	}

	subst := make([]Pair, len(params))
	for i, p := range params {
		subst[i] = P(p, app.Args[i])
	}
	out := r.with(r.repl.shadow(paramNames(fn.Params)...).with(subst...)).apply(body)
	return r.with(replacements{}).apply(out)
}

// function renames parameters whose replacement is an identifier and
// reduces the body. Parameters with any other replacement are left alone and
// shadow the outer mapping.
func (r *reducer) function(fn *ir.Function) ir.Ast {
	params := make([]*ir.Ident, len(fn.Params))
	var renames []Pair
	var shadowed []string
	for i, p := range fn.Params {
		params[i] = p
		if rep, ok := r.repl.lookup(p); ok {
			if id, ok := rep.(*ir.Ident); ok {
				params[i] = id
				renames = append(renames, P(p, id))
				continue
			}
		}
		shadowed = append(shadowed, p.Name)
	}
	inner := r.repl.shadow(shadowed...).with(renames...)
	body := r.with(inner).apply(fn.Body)
	if body == fn.Body && len(renames) == 0 {
		return fn
	}
	return keepPos(fn, ir.NewFunction(params, body))
}

// block inlines bindings from last to first. Each step substitutes only its
// own binding into the trailing statement, so a value sees the bindings before
// it and never a later rebinding of the same name. The outer replacements
// apply last, to whatever the block leaves free.
func (r *reducer) block(b *ir.Block) ir.Ast {
	stmt := b.Result
	for i := len(b.Bindings) - 1; i >= 0; i-- {
		bind := b.Bindings[i]
		stmt = r.with(newReplacements(P(bind.Name, bind.Value))).apply(stmt)
	}
	return r.apply(stmt)
}

// correctType reconciles the type of a substituted terminal.
func (r *reducer) correctType(orig, rep ir.Ast) ir.Ast {
	if _, ok := orig.(ir.Terminal); !ok || r.opts.Types == ReplaceWithReduction {
		return rep
	}
	t, err := ir.LeastUpperType(orig.Type(), rep.Type())
	if err != nil {
		ir.Fail(ir.ErrCodeTypeMismatch, orig,
			"cannot substitute %s with %s: %s does not unify with %s",
			ir.Format(orig), ir.Format(rep), orig.Type(), rep.Type())
	}
	if p, ok := t.(*ir.ProductType); ok && len(p.Fields) == 0 && r.opts.Empty == FailOnEmpty {
		ir.Fail(ir.ErrCodeTypeMismatch, orig,
			"cannot substitute %s with %s: %s and %s share no fields",
			ir.Format(orig), ir.Format(rep), orig.Type(), rep.Type())
	}
	if term, ok := rep.(ir.Terminal); ok {
		return ir.WithType(term, t)
	}
	return rep
}

func paramNames(params []*ir.Ident) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

// freshName returns base, or base followed by the smallest number not in taken.
func freshName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", base, i)
		if !taken[name] {
			return name
		}
	}
}

func keepPos[T ir.Ast](orig ir.Ast, n T) ir.Ast {
	if pos := orig.Pos(); pos.IsValid() {
		return ir.At(n, pos)
	}
	return n
}
