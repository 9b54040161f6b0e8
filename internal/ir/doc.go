// Package ir provides the intermediate representation consumed by the query
// compiler.
//
// This package contains the node and type definitions only. All other
// internal packages import ir; ir imports nothing internal. This keeps IR the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Nodes are immutable. Passes build new trees and share unchanged subtrees.
//   - Ast and Query are sealed interfaces (marker methods); every traversal
//     is an exhaustive type switch.
//   - Equality is structural and ignores structural types and positions, so
//     an identifier retyped by substitution still matches its original.
//   - NO float literals. Floating point operands arrive as ScalarTag
//     parameters bound at execution time.
package ir
