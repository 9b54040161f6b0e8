package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioDir = "testdata/scenarios"

func TestLoadScenarioResolvesSpecs(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenarioDir, "people.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "people", s.Name)
	assert.Equal(t, []string{filepath.Join(scenarioDir, "../specs/people.cue")}, s.Specs)
	assert.Equal(t, []string{"postgres", "mysql", "sqlite", "sqlserver"}, s.DialectNames())
	assert.Len(t, s.Seed["Person"], 2)
	require.Len(t, s.Queries, 8)
	assert.Equal(t, "DOMAIN_MISUSE", s.Queries[7].Expect.Error)
	assert.Equal(t, []string{"min_age"}, s.Queries[2].Expect.Params)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(scenarioDir, "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: d
specs: [../specs/people.cue]
quries: []
`), scenarioDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenarioDefaultsToAllDialects(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: all
description: d
specs: [../specs/people.cue]
queries:
  - name: q
    query: {entity: Person}
`), scenarioDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "mysql", "postgres", "sqlite", "sqlserver"}, s.DialectNames())
}

func TestValidateScenario(t *testing.T) {
	spec := filepath.Join(scenarioDir, "../specs/people.cue")
	query := QueryCase{Name: "q", Query: map[string]any{"entity": "Person"}}
	valid := func() *Scenario {
		return &Scenario{Name: "s", Description: "d", Specs: []string{spec}, Queries: []QueryCase{query}}
	}

	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{"name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"specs", func(s *Scenario) { s.Specs = nil }, "specs list is required"},
		{"missing spec", func(s *Scenario) { s.Specs = []string{"nowhere.cue"} }, "spec file not found"},
		{"queries", func(s *Scenario) { s.Queries = nil }, "queries list is required"},
		{"dialect", func(s *Scenario) { s.Dialects = []string{"oracle"} }, `unknown dialect "oracle"`},
		{"query name", func(s *Scenario) { s.Queries[0].Name = "" }, "queries[0]: name is required"},
		{"duplicate", func(s *Scenario) { s.Queries = append(s.Queries, query) }, `duplicate name "q"`},
		{"query body", func(s *Scenario) { s.Queries[0].Query = nil }, "query is required"},
		{"error with sql", func(s *Scenario) {
			s.Queries[0].Expect = Expect{Error: "E103", SQL: map[string]string{"postgres": "SELECT 1"}}
		}, "error excludes"},
		{"sql for skipped dialect", func(s *Scenario) {
			s.Dialects = []string{"postgres"}
			s.Queries[0].Expect.SQL = map[string]string{"mysql": "SELECT 1"}
		}, `dialect "mysql" is not compiled`},
		{"rows without sqlite", func(s *Scenario) {
			s.Dialects = []string{"postgres"}
			s.Queries[0].Expect.Rows = [][]any{}
		}, "rows need the sqlite dialect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := validateScenario(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, validateScenario(valid()))
}

func TestEveryScenarioFileLoads(t *testing.T) {
	entries, err := os.ReadDir(scenarioDir)
	require.NoError(t, err)
	for _, e := range entries {
		_, err := LoadScenario(filepath.Join(scenarioDir, e.Name()))
		assert.NoError(t, err, e.Name())
	}
}
