// Package queryir provides the relational clause model: the flat SQL shape
// an IR query compiles to before it is rendered for a dialect.
//
// ARCHITECTURE:
//
// The clause model sits between the IR passes and the renderer:
//
//	[IR] → normalize → flatten → [clause model] → expand → render → [SQL]
//
// A FlattenSqlQuery is one SELECT: a list of source contexts, optional
// WHERE / GROUP BY / ORDER BY / LIMIT / OFFSET, a select list and a distinct
// mode. Set operations and EXISTS tests wrap other clause sets.
//
// Expressions inside the clause model are plain IR expressions. A query that
// appears inside an expression (a correlated subquery, the operand of
// EXISTS or IN) is lowered by the flattener and stored in the enclosing
// clause set's Subqueries table, keyed by the structural hash of the IR node
// it replaces.
//
// SEALED INTERFACES:
//
// SqlQuery and Context are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so renderers can switch
// exhaustively:
//
//	switch q := query.(type) {
//	case *FlattenSqlQuery:
//	    // one SELECT
//	case *SetOperationSqlQuery:
//	    // UNION / UNION ALL
//	case *UnaryOperationSqlQuery:
//	    // EXISTS / NOT EXISTS
//	}
//
// INVARIANTS:
//
//   - SelectValue.Ast is never a relation: a query-valued select item is
//     lowered into SelectValue.Subquery.
//   - Every non-join context carries an alias, unique within its FROM list.
//   - A FlatJoinContext never opens a FROM list.
//
// Validate checks these and reports dialect-portability warnings.
package queryir
