package beta

import (
	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/transform"
)

// Pair maps one node to its replacement.
type Pair struct {
	From ir.Ast
	To   ir.Ast
}

// P is a shorthand for Pair.
func P(from, to ir.Ast) Pair {
	return Pair{From: from, To: to}
}

// replacements is an immutable substitution map keyed by structural hash.
// Later pairs override earlier ones for the same key.
type replacements struct {
	pairs []Pair
	index map[ir.Hash]int
}

func newReplacements(pairs ...Pair) replacements {
	var r replacements
	return r.with(pairs...)
}

func (r replacements) empty() bool { return len(r.pairs) == 0 }

func (r replacements) lookup(a ir.Ast) (ir.Ast, bool) {
	if r.empty() {
		return nil, false
	}
	i, ok := r.index[ir.HashOf(a)]
	if !ok {
		return nil, false
	}
	return r.pairs[i].To, true
}

func (r replacements) with(pairs ...Pair) replacements {
	out := replacements{
		pairs: make([]Pair, 0, len(r.pairs)+len(pairs)),
		index: make(map[ir.Hash]int, len(r.pairs)+len(pairs)),
	}
	for _, p := range append(append([]Pair{}, r.pairs...), pairs...) {
		h := ir.HashOf(p.From)
		if i, ok := out.index[h]; ok {
			out.pairs[i] = p
			continue
		}
		out.index[h] = len(out.pairs)
		out.pairs = append(out.pairs, p)
	}
	return out
}

// filter keeps the pairs for which keep returns true.
func (r replacements) filter(keep func(Pair) bool) replacements {
	var kept []Pair
	for _, p := range r.pairs {
		if keep(p) {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(r.pairs) {
		return r
	}
	return newReplacements(kept...)
}

// without drops the keys structurally equal to any of keys.
func (r replacements) without(keys ...ir.Ast) replacements {
	if r.empty() {
		return r
	}
	drop := make(map[ir.Hash]bool, len(keys))
	for _, k := range keys {
		drop[ir.HashOf(k)] = true
	}
	return r.filter(func(p Pair) bool { return !drop[ir.HashOf(p.From)] })
}

// shadow drops every key mentioning one of names free. Inside the scope of
// a binder those names refer to the binder, not to the outer value the key
// was written against.
func (r replacements) shadow(names ...string) replacements {
	if r.empty() {
		return r
	}
	return r.filter(func(p Pair) bool {
		free := transform.FreeIdents(p.From)
		for _, n := range names {
			if free[n] {
				return false
			}
		}
		return true
	})
}
