package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quarry/internal/harness"
	"github.com/roach88/quarry/internal/ir"
)

// NamedQuery is one query read from a query file.
type NamedQuery struct {
	Name  string
	Query ir.Ast
}

// queryDoc is one entry of a multi-query file.
type queryDoc struct {
	Name  string `yaml:"name"`
	Query any    `yaml:"query"`
}

// ReadQueries reads a query file. The file holds either one query, named
// after the file, or a list of {name, query} entries.
func ReadQueries(path string, entities []*ir.Entity) ([]NamedQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	list, ok := doc.([]any)
	if !ok {
		q, err := harness.DecodeQuery(doc, entities)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return []NamedQuery{{Name: name, Query: q}}, nil
	}

	var docs []queryDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse query list: %w", err)
	}
	out := make([]NamedQuery, 0, len(list))
	for i, d := range docs {
		if d.Name == "" {
			return nil, fmt.Errorf("queries[%d]: name is required", i)
		}
		q, err := harness.DecodeQuery(d.Query, entities)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
		out = append(out, NamedQuery{Name: d.Name, Query: q})
	}
	return out, nil
}
