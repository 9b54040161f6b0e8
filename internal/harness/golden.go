package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders outcomes as stable text, one line per query and dialect:
//
//	adults [postgres]: SELECT p.name FROM Person p WHERE p.age > 18
//	older [sqlite]: SELECT p.name FROM Person p WHERE p.age > ? -- params: min_age:int
//	misuse [mysql]: error DOMAIN_MISUSE
func Snapshot(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "# %s\n", name)
	for _, o := range result.Outcomes {
		fmt.Fprintf(&buf, "%s [%s]: ", o.Query, o.Dialect)
		if o.ErrorCode != "" {
			fmt.Fprintf(&buf, "error %s\n", o.ErrorCode)
			continue
		}
		buf.WriteString(o.SQL)
		if len(o.Params) > 0 {
			params := make([]string, len(o.Params))
			for i, p := range o.Params {
				params[i] = p.UID + ":" + p.RuntimeType
			}
			fmt.Fprintf(&buf, " -- params: %s", strings.Join(params, ", "))
		}
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its outcomes against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, Options{})
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
