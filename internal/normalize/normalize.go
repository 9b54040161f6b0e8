// Package normalize rewrites an IR query into the canonical shape the
// flattener expects: unique binders, maps pushed outward, filters merged,
// flat-map chains right-nested, and binders aligned with the aliases their
// heads introduce.
package normalize

import (
	"github.com/roach88/quarry/internal/beta"
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/transform"
)

// maxRounds bounds the rule fixed point. Every rule shrinks or reorders the
// tree toward a normal form; hitting the bound means two rules undo each
// other.
const maxRounds = 10000

// Normalize beta-reduces a, disambiguates its binders, applies the rewrite
// rules to a fixed point and finally propagates aliases.
//
// Normalizing an already normalized tree returns the identical instance.
func Normalize(a ir.Ast) (out ir.Ast, err error) {
	defer ir.Recover(&err)
	return MustNormalize(a), nil
}

// MustNormalize is Normalize for callers that recover *ir.Error panics
// themselves.
func MustNormalize(a ir.Ast) ir.Ast {
	out := beta.MustReduce(a, beta.DefaultOptions)
	out = AvoidAliasConflict(out)
	out = normAst(out)
	return PropagateAliases(out)
}

// normAst normalizes every query found in a, including queries nested in
// expressions.
func normAst(a ir.Ast) ir.Ast {
	return queriesIn().Apply(a)
}

// queriesIn is a traversal that normalizes the queries it meets and leaves
// the expressions around them alone.
func queriesIn() *transform.Stateless {
	return &transform.Stateless{Rewrite: func(t *transform.Stateless, a ir.Ast) (ir.Ast, bool) {
		if q, ok := a.(ir.Query); ok {
			return norm(q), true
		}
		return nil, false
	}}
}

// norm applies the rule set to q until none fires.
func norm(q ir.Query) ir.Query {
	for i := 0; ; i++ {
		if i == maxRounds {
			ir.Invariant(q, "normalization did not converge after %d rounds", maxRounds)
		}
		next := step(q)
		if next == nil {
			return q
		}
		q = next
	}
}

// step returns the result of the first rule that fires on q, or nil.
func step(q ir.Query) ir.Query {
	if r := NormalizeNested(q); r != nil {
		return r
	}
	if r := AdHocReduction(q); r != nil {
		return r
	}
	if r := ApplyMap(q); r != nil {
		return r
	}
	if r := OrderTerms(q); r != nil {
		return r
	}
	return nil
}

// NormalizeNested normalizes the children of q and returns the rebuilt
// operator, or nil when every child was already normal.
func NormalizeNested(q ir.Query) ir.Query {
	switch q.(type) {
	case *ir.Entity, *ir.QueryTag:
		return nil
	}
	out := queriesIn().Children(q)
	if out == ir.Ast(q) {
		return nil
	}
	return out.(ir.Query)
}

// subst replaces from by to in body. Normalization rewrites binders whose
// types it does not control, so the replacement's type wins.
func subst(body ir.Ast, from *ir.Ident, to ir.Ast) ir.Ast {
	return beta.MustReduce(body, beta.Options{Types: beta.ReplaceWithReduction}, beta.P(from, to))
}

// captures reports whether moving body from the scope of binder from into
// the scope of binder into would capture a free occurrence of into's name.
func captures(body ir.Ast, from, into *ir.Ident) bool {
	return from.Name != into.Name && transform.IsFree(body, into.Name)
}

// hasImpureInfix reports whether a contains a raw fragment that must not be
// duplicated or moved.
func hasImpureInfix(a ir.Ast) bool {
	return transform.Exists(a, func(n ir.Ast) bool {
		i, ok := n.(*ir.Infix)
		return ok && !i.Pure
	})
}

// hasAggregation reports whether a aggregates over the rows in scope. An
// aggregation over a whole query is a self-contained subquery and does not
// count.
func hasAggregation(a ir.Ast) bool {
	found := false
	transform.Walk(a, func(n ir.Ast) bool {
		if found || ir.IsQuery(n) {
			return false
		}
		if agg, ok := n.(*ir.Aggregation); ok && !ir.IsQuery(agg.Operand) {
			found = true
		}
		return !found
	})
	return found
}

func keepPos[T ir.Ast](orig ir.Ast, n T) T {
	if pos := orig.Pos(); pos.IsValid() {
		return ir.At(n, pos)
	}
	return n
}
