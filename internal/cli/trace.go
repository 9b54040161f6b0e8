package cli

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/compiler"
	"github.com/roach88/quarry/internal/trace"
)

// TraceEvent is one pipeline event.
type TraceEvent struct {
	Stage   string       `json:"stage" yaml:"stage"`
	Message string       `json:"message" yaml:"message"`
	Fields  trace.Fields `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// QueryTrace holds the events recorded while compiling one query.
type QueryTrace struct {
	Name   string       `json:"name" yaml:"name"`
	SQL    string       `json:"sql,omitempty" yaml:"sql,omitempty"`
	Error  string       `json:"error,omitempty" yaml:"error,omitempty"`
	Events []TraceEvent `json:"events" yaml:"events"`
}

// recorder is a tracer that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (r *recorder) Enabled() bool { return true }

func (r *recorder) Event(stage, msg string, fields trace.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, TraceEvent{Stage: stage, Message: msg, Fields: fields})
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	var specs string

	cmd := &cobra.Command{
		Use:   "trace <query-file>",
		Short: "Show how each pipeline stage rewrites a query",
		Long: `Compile the queries of a YAML query file and print the events of every
pipeline stage: the normalized query, each flatten decision (merge or nest,
with its operator and alias), validation warnings and the rendered SQL.

A query that fails still prints the events recorded up to the failure.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, specs, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&specs, "specs", "s", ".", "CUE spec file or directory")

	return cmd
}

func runTrace(opts *RootOptions, specs, queryFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	queries, err := loadQueries(formatter, specs, queryFile)
	if err != nil {
		return err
	}

	failed := 0
	traces := make([]QueryTrace, 0, len(queries))
	for _, q := range queries {
		rec := &recorder{}
		qt := QueryTrace{Name: q.Name}
		res, err := compiler.Compile(q.Query, compiler.Options{Dialect: opts.dialect(), Tracer: rec})
		if err != nil {
			failed++
			qt.Error = err.Error()
		} else {
			qt.SQL = res.SQL
		}
		qt.Events = rec.events
		traces = append(traces, qt)
	}

	if formatter.Structured() {
		if err := formatter.Success(traces); err != nil {
			return err
		}
	} else {
		outputTraceText(formatter, traces)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d quer(ies) failed", failed))
	}
	return nil
}

func outputTraceText(formatter *OutputFormatter, traces []QueryTrace) {
	w := formatter.Writer
	for i, qt := range traces {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Query: %s\n", qt.Name)
		rows := make([][]string, len(qt.Events))
		for j, e := range qt.Events {
			rows[j] = []string{e.Stage, e.Message, formatFields(e.Fields)}
		}
		formatter.Table([]string{"stage", "event", "fields"}, rows)
		if qt.Error != "" {
			fmt.Fprintf(w, "✗ %s\n", qt.Error)
		} else {
			fmt.Fprintf(w, "%s\n", qt.SQL)
		}
	}
}

// formatFields renders fields as key=value pairs in key order.
func formatFields(fields trace.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}
