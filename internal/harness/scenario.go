package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/querysql"
)

// Scenario defines a conformance scenario.
// A scenario loads entity specs, seeds a scratch database and compiles a
// list of queries against each dialect, checking every outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists paths to CUE entity specs.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Dialects restricts the dialects to compile for. Empty means all.
	Dialects []string `yaml:"dialects,omitempty"`

	// Seed holds rows inserted into the scratch SQLite database, keyed by table.
	Seed map[string][]map[string]any `yaml:"seed,omitempty"`

	// Queries are compiled in order.
	Queries []QueryCase `yaml:"queries"`
}

// QueryCase is one query and what it must compile to.
type QueryCase struct {
	Name string `yaml:"name"`

	// Query is the YAML query document. See DecodeQuery.
	Query any `yaml:"query"`

	// Params binds parameter uids to values for row checks.
	Params map[string]any `yaml:"params,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect lists the checks for a query. Unset checks are skipped.
type Expect struct {
	// SQL maps dialect name to the exact statement.
	SQL map[string]string `yaml:"sql,omitempty"`

	// Error is the expected error code, e.g. DOMAIN_MISUSE or E103.
	// When set the query must fail on every dialect.
	Error string `yaml:"error,omitempty"`

	// Params is the expected parameter uid order.
	Params []string `yaml:"params,omitempty"`

	// Rows are the rows the sqlite statement returns against the seed.
	// An explicit empty list expects no rows.
	Rows [][]any `yaml:"rows,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Spec paths are resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data, basePath)
	if err != nil {
		return nil, err
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "quries:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve spec paths before validation so existence checks see real paths.
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, name := range s.Dialects {
		if _, err := querysql.Lookup(name); err != nil {
			return fmt.Errorf("dialects[%d]: %w", i, err)
		}
	}

	seen := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true

		if q.Query == nil {
			return fmt.Errorf("queries[%d]: query is required", i)
		}
		if err := validateExpect(i, s, &q.Expect); err != nil {
			return err
		}
	}

	return nil
}

func validateExpect(index int, s *Scenario, e *Expect) error {
	if e.Error != "" && (len(e.SQL) > 0 || e.Rows != nil || len(e.Params) > 0) {
		return fmt.Errorf("queries[%d].expect: error excludes sql, params and rows", index)
	}

	for name := range e.SQL {
		if !s.compiles(name) {
			return fmt.Errorf("queries[%d].expect.sql: dialect %q is not compiled by this scenario", index, name)
		}
	}

	if e.Rows != nil && !s.compiles(querysql.SQLite.Name) {
		return fmt.Errorf("queries[%d].expect.rows: rows need the sqlite dialect", index)
	}

	return nil
}

// DialectNames returns the dialects this scenario compiles for.
func (s *Scenario) DialectNames() []string {
	if len(s.Dialects) == 0 {
		return querysql.Names()
	}
	return s.Dialects
}

func (s *Scenario) compiles(name string) bool {
	d, err := querysql.Lookup(name)
	if err != nil {
		return false
	}
	for _, n := range s.DialectNames() {
		if other, _ := querysql.Lookup(n); other == d {
			return true
		}
	}
	return false
}
