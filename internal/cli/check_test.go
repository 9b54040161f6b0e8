package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/compiler"
)

const mixedQueries = `
- name: adults
  query:
    map:
      from:
        filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 18]}}
      as: p
      to: p.name
- name: negative
  query: {take: {from: {entity: Person}, count: -1}}
- name: unknown_table
  query:
    sql: {parts: ["SELECT * FROM Missing"], as: Person}
`

func TestCheckCommand_Valid(t *testing.T) {
	dir := workspace(t, map[string]string{
		"specs/people.cue": peopleSpec,
		"batch.yaml":       batchQuery,
	})

	out, err := run(t, NewCheckCommand(&RootOptions{Format: "text"}),
		filepath.Join(dir, "batch.yaml"), "-s", filepath.Join(dir, "specs"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ adults")
	assert.Contains(t, out, "✓ first")
	assert.Contains(t, out, "✓ All queries valid")
}

func TestCheckCommand_Failures(t *testing.T) {
	dir := workspace(t, map[string]string{
		"specs/people.cue": peopleSpec,
		"mixed.yaml":       mixedQueries,
	})

	out, err := run(t, NewCheckCommand(&RootOptions{Format: "json"}),
		filepath.Join(dir, "mixed.yaml"), "-s", filepath.Join(dir, "specs"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   CheckResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_CHECK_FAILED", resp.Error.Code)
	assert.Equal(t, "2 quer(ies) failed", resp.Error.Message)

	require.Len(t, resp.Data.Queries, 3)
	adults, negative, unknown := resp.Data.Queries[0], resp.Data.Queries[1], resp.Data.Queries[2]

	assert.True(t, adults.Valid)
	assert.Equal(t, "SELECT p.name FROM Person p WHERE p.age > 18", adults.SQL)

	assert.False(t, negative.Valid)
	require.Len(t, negative.Errors, 1)
	assert.Equal(t, compiler.ErrNegativeCount, negative.Errors[0].Code)
	assert.Empty(t, negative.SQL)

	assert.False(t, unknown.Valid)
	require.Len(t, unknown.Errors, 1)
	assert.Equal(t, "sqlite", unknown.Errors[0].Field)
	assert.Equal(t, ErrCodeRejected, unknown.Errors[0].Code)
}

func TestCheckCommand_TextFailure(t *testing.T) {
	dir := workspace(t, map[string]string{
		"specs/people.cue": peopleSpec,
		"mixed.yaml":       mixedQueries,
	})

	out, err := run(t, NewCheckCommand(&RootOptions{Format: "text"}),
		filepath.Join(dir, "mixed.yaml"), "-s", filepath.Join(dir, "specs"))
	require.Error(t, err)
	assert.Contains(t, out, "✓ adults")
	assert.Contains(t, out, "✗ negative")
	assert.Contains(t, out, "[E104]")
	assert.NotContains(t, out, "All queries valid")
}

func TestCheckCommand_BadQueryFile(t *testing.T) {
	dir := workspace(t, map[string]string{
		"specs/people.cue": peopleSpec,
		"bad.yaml":         "entity: Nobody\n",
	})

	_, err := run(t, NewCheckCommand(&RootOptions{Format: "text"}),
		filepath.Join(dir, "bad.yaml"), "-s", filepath.Join(dir, "specs"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
