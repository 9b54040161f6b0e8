package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const peopleSpec = `
entity: {
	Person: {
		id:   int
		name: string
		age:  int
	}
	Address: {
		ownerId: int
		street:  string
	}
}
`

const adultsQuery = `
map:
  from:
    filter: {from: {entity: Person}, as: p, where: {gt: [p.age, 18]}}
  as: p
  to: p.name
`

const batchQuery = `
- name: adults
  query:
    map:
      from:
        filter: {from: {entity: Person}, as: p, where: {gt: [p.age, {param: {uid: min_age, type: int}}]}}
      as: p
      to: p.name
- name: first
  query: {take: {from: {entity: Person}, count: 1}}
`

// workspace writes files into a temp dir and returns the dir.
func workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// run executes a subcommand built without the root command.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
