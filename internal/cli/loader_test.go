package cli

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpecs_Directory(t *testing.T) {
	dir := workspace(t, map[string]string{"people.cue": peopleSpec})

	result, errs := LoadSpecs(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 1, result.FileCount)

	names := make([]string, len(result.Entities))
	for i, e := range result.Entities {
		names[i] = e.Name
	}
	assert.ElementsMatch(t, []string{"Person", "Address"}, names)
}

func TestLoadSpecs_SingleFile(t *testing.T) {
	dir := workspace(t, map[string]string{
		"people.cue": peopleSpec,
		"other.cue":  "entity: Other: {id: int}\n",
	})

	result, errs := LoadSpecs(filepath.Join(dir, "people.cue"), LoadModeFailFast)
	require.Empty(t, errs)
	assert.Equal(t, 1, result.FileCount)
	assert.Len(t, result.Entities, 2)
}

func TestLoadSpecs_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		path  string
		code  string
	}{
		{"not found", nil, "missing", ErrCodeNotFound},
		{"no files", map[string]string{"README.md": "nothing"}, ".", ErrCodeNoFiles},
		{"no entities", map[string]string{"x.cue": "other: 1\n"}, ".", ErrCodeNoEntities},
		{"float field", map[string]string{"x.cue": "entity: Reading: {value: float}\n"}, ".", ErrCodeInvalidField},
		{"syntax", map[string]string{"x.cue": "entity: {\n"}, ".", ErrCodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := workspace(t, tt.files)

			_, errs := LoadSpecs(filepath.Join(dir, tt.path), LoadModeCollectAll)
			require.NotEmpty(t, errs)

			var loadErr *LoadError
			require.True(t, errors.As(errs[0], &loadErr))
			assert.Equal(t, tt.code, loadErr.Code)
		})
	}
}

func TestLoadSpecs_CollectAll(t *testing.T) {
	specs := "entity: {\n\tA: {x: float}\n\tB: {y: float}\n\tC: {z: int}\n}\n"
	dir := workspace(t, map[string]string{"x.cue": specs})

	result, errs := LoadSpecs(dir, LoadModeCollectAll)
	assert.Len(t, errs, 2)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "C", result.Entities[0].Name)

	_, errs = LoadSpecs(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeNoEntities, MapFieldToErrorCode("entity"))
	assert.Equal(t, ErrCodeBuildFailed, MapFieldToErrorCode("cue"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode(""))
	assert.Equal(t, ErrCodeInvalidField, MapFieldToErrorCode("age"))
}

func TestFindCUEFiles(t *testing.T) {
	dir := workspace(t, map[string]string{
		"a.cue":        "",
		"nested/b.cue": "",
		"c.yaml":       "",
	})

	files, err := FindCUEFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.cue"),
		filepath.Join(dir, "nested", "b.cue"),
	}, files)
}
