// Package harness runs conformance scenarios against the query compiler.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: people
//	description: "What this scenario validates"
//	specs:
//	  - specs/people.cue
//	dialects: [postgres, sqlite]   # optional, defaults to all
//	seed:
//	  Person:
//	    - {id: 1, name: Ann, age: 30}
//	queries:
//	  - name: adults
//	    query:
//	      map:
//	        from: {filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 18]}}}
//	        as: p
//	        to: p.name
//	    params: {min_age: 18}
//	    expect:
//	      sql:
//	        postgres: SELECT p.name FROM Person p WHERE p.age > 18
//	      params: [min_age]
//	      rows: [[Ann]]
//
// A query may instead expect an error code (expect.error), which is either
// an ir error code such as DOMAIN_MISUSE or an input validation code such
// as E103.
//
// # Checks
//
// Each query is compiled for every selected dialect. Every statement
// compiled for sqlite is prepared against a scratch in-memory database
// built from the specs, so a statement SQLite cannot parse fails the
// scenario. When rows are expected the statement is also run against the
// seed, with params bound in placeholder order.
//
// # Golden Files
//
// RunWithGolden snapshots a scenario's outcomes as one line per query and
// dialect under testdata/golden/. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
