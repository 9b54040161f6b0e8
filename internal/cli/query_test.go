package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQueries(t *testing.T) {
	dir := workspace(t, map[string]string{
		"people.cue":  peopleSpec,
		"adults.yaml": adultsQuery,
		"batch.yaml":  batchQuery,
		"noname.yaml": "- query: {entity: Person}\n",
		"bad.yaml":    "entity: [\n",
	})
	loaded, errs := LoadSpecs(filepath.Join(dir, "people.cue"), LoadModeFailFast)
	require.Empty(t, errs)

	single, err := ReadQueries(filepath.Join(dir, "adults.yaml"), loaded.Entities)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "adults", single[0].Name)

	batch, err := ReadQueries(filepath.Join(dir, "batch.yaml"), loaded.Entities)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "adults", batch[0].Name)
	assert.Equal(t, "first", batch[1].Name)

	_, err = ReadQueries(filepath.Join(dir, "noname.yaml"), loaded.Entities)
	assert.EqualError(t, err, "queries[0]: name is required")

	_, err = ReadQueries(filepath.Join(dir, "bad.yaml"), loaded.Entities)
	assert.ErrorContains(t, err, "failed to parse YAML")

	_, err = ReadQueries(filepath.Join(dir, "absent.yaml"), loaded.Entities)
	assert.ErrorContains(t, err, "failed to read query file")
}
