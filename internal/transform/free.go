package transform

import "github.com/roach88/quarry/internal/ir"

// FreeIdents returns the identifiers of a that are not bound inside a.
//
// Binders: query aliases scope over their operator's body (and, for
// GroupByMap, each alias over its own body), function parameters over the
// function body, and block bindings over the bindings after them and the
// result.
func FreeIdents(a ir.Ast) map[string]bool {
	free := map[string]bool{}
	freeIdents(a, map[string]int{}, free)
	return free
}

// IsFree reports whether name occurs free in a.
func IsFree(a ir.Ast, name string) bool {
	return FreeIdents(a)[name]
}

func freeIdents(a ir.Ast, bound map[string]int, free map[string]bool) {
	under := func(names []string, body ir.Ast) {
		for _, n := range names {
			bound[n]++
		}
		freeIdents(body, bound, free)
		for _, n := range names {
			bound[n]--
		}
	}

	switch n := a.(type) {
	case nil:
	case *ir.Ident:
		if bound[n.Name] == 0 {
			free[n.Name] = true
		}
	case *ir.Filter:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.Body)
	case *ir.Map:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.Body)
	case *ir.FlatMap:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.Body)
	case *ir.ConcatMap:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.Body)
	case *ir.SortBy:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.Criteria)
	case *ir.DistinctOn:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.Body)
	case *ir.FlatJoin:
		freeIdents(n.Head, bound, free)
		under([]string{n.Alias.Name}, n.On)
	case *ir.GroupByMap:
		freeIdents(n.Head, bound, free)
		under([]string{n.ByAlias.Name}, n.ByBody)
		under([]string{n.MapAlias.Name}, n.MapBody)
	case *ir.Function:
		names := make([]string, len(n.Params))
		for i, p := range n.Params {
			names[i] = p.Name
		}
		under(names, n.Body)
	case *ir.Block:
		var names []string
		for _, b := range n.Bindings {
			for _, nm := range names {
				bound[nm]++
			}
			freeIdents(b.Value, bound, free)
			for _, nm := range names {
				bound[nm]--
			}
			names = append(names, b.Name.Name)
		}
		under(names, n.Result)
	default:
		for _, c := range Children(a) {
			freeIdents(c, bound, free)
		}
	}
}

// Names returns every name used in a: identifiers, bound or free, and the
// names of all binders. A name outside this set can be introduced without
// capturing or being captured.
func Names(a ir.Ast) map[string]bool {
	names := map[string]bool{}
	Walk(a, func(n ir.Ast) bool {
		switch n := n.(type) {
		case *ir.Ident:
			names[n.Name] = true
		case *ir.Function:
			for _, p := range n.Params {
				names[p.Name] = true
			}
		case *ir.Block:
			for _, b := range n.Bindings {
				names[b.Name.Name] = true
			}
		default:
			for _, b := range Binders(n) {
				names[b.Name] = true
			}
		}
		return true
	})
	return names
}

// Binders returns the aliases a query operator introduces.
func Binders(a ir.Ast) []*ir.Ident {
	switch n := a.(type) {
	case *ir.Filter:
		return []*ir.Ident{n.Alias}
	case *ir.Map:
		return []*ir.Ident{n.Alias}
	case *ir.FlatMap:
		return []*ir.Ident{n.Alias}
	case *ir.ConcatMap:
		return []*ir.Ident{n.Alias}
	case *ir.SortBy:
		return []*ir.Ident{n.Alias}
	case *ir.DistinctOn:
		return []*ir.Ident{n.Alias}
	case *ir.FlatJoin:
		return []*ir.Ident{n.Alias}
	case *ir.GroupByMap:
		return []*ir.Ident{n.ByAlias, n.MapAlias}
	}
	return nil
}
