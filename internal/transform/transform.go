// Package transform provides the tree traversals every compiler pass is built
// on.
//
// A pass supplies a hook that handles the node kinds it cares about and
// defers the rest to the default recursion, which rebuilds a parent only when
// one of its children changed. Unchanged subtrees come back as the identical
// instance, which is how passes signal "no change" to fixed-point drivers.
package transform

import "github.com/roach88/quarry/internal/ir"

// Stateless is a bottom-up rewriting traversal.
//
// Rewrite is called on every node before its children. Returning handled=true
// makes the returned node the result for that subtree; returning false falls
// back to Children, which applies the traversal to each child.
type Stateless struct {
	Rewrite func(t *Stateless, a ir.Ast) (out ir.Ast, handled bool)
}

// Apply runs the traversal on a.
func (t *Stateless) Apply(a ir.Ast) ir.Ast {
	if a == nil {
		return nil
	}
	if t.Rewrite != nil {
		if out, ok := t.Rewrite(t, a); ok {
			return out
		}
	}
	return t.Children(a)
}

// Children applies the traversal to the direct children of a.
func (t *Stateless) Children(a ir.Ast) ir.Ast {
	return rebuild(a, t.Apply)
}

// Stateful is a traversal threading a state value through the tree.
//
// Children are visited left to right; each receives the state produced by its
// previous sibling, and the parent returns the state of its last child.
type Stateful[S any] struct {
	Rewrite func(t *Stateful[S], a ir.Ast, s S) (out ir.Ast, state S, handled bool)
}

// Apply runs the traversal on a with initial state s.
func (t *Stateful[S]) Apply(a ir.Ast, s S) (ir.Ast, S) {
	if a == nil {
		return nil, s
	}
	if t.Rewrite != nil {
		if out, next, ok := t.Rewrite(t, a, s); ok {
			return out, next
		}
	}
	return t.Children(a, s)
}

// Children applies the traversal to the direct children of a.
func (t *Stateful[S]) Children(a ir.Ast, s S) (ir.Ast, S) {
	out := rebuild(a, func(c ir.Ast) ir.Ast {
		var r ir.Ast
		r, s = t.Apply(c, s)
		return r
	})
	return out, s
}

// Walk visits a and every descendant in pre-order. Returning false from visit
// skips the node's children.
func Walk(a ir.Ast, visit func(ir.Ast) bool) {
	if a == nil || !visit(a) {
		return
	}
	for _, c := range Children(a) {
		Walk(c, visit)
	}
}

// Collect returns every node of the tree matching pred, in pre-order.
func Collect(a ir.Ast, pred func(ir.Ast) bool) []ir.Ast {
	var out []ir.Ast
	Walk(a, func(n ir.Ast) bool {
		if pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Exists reports whether any node of the tree matches pred.
func Exists(a ir.Ast, pred func(ir.Ast) bool) bool {
	found := false
	Walk(a, func(n ir.Ast) bool {
		if found {
			return false
		}
		if pred(n) {
			found = true
			return false
		}
		return true
	})
	return found
}

// CollectIdents returns the names of all identifiers of the tree, bound or
// free, without duplicates, in first-seen order.
func CollectIdents(a ir.Ast) []string {
	seen := map[string]bool{}
	var out []string
	Walk(a, func(n ir.Ast) bool {
		if id, ok := n.(*ir.Ident); ok && !seen[id.Name] {
			seen[id.Name] = true
			out = append(out, id.Name)
		}
		return true
	})
	return out
}
