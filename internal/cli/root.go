// Package cli implements the quarry command line.
package cli

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/quarry/internal/config"
	"github.com/roach88/quarry/internal/querysql"
	"github.com/roach88/quarry/internal/trace"
)

// RootOptions holds global flags and the resolved configuration shared by
// all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string

	// Config is resolved before any subcommand runs. Commands built
	// without the root command fall back to the defaults.
	Config *config.Config

	// Logger receives diagnostics on stderr; Tracer forwards pipeline
	// events to it.
	Logger zerolog.Logger
	Tracer trace.Tracer

	// TraceID correlates the output of one invocation with its logs.
	TraceID string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{config.FormatText, config.FormatJSON, config.FormatYAML}

// NewRootCommand creates the root command for the quarry CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Logger: zerolog.Nop()}
	v := config.New()

	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "quarry - a query compiler",
		Long: `Compile language-integrated queries to SQL.

Queries are written in YAML against table schemas declared in CUE and
compiled for postgres, mysql, sqlite, h2 or sqlserver.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd, v)
		},
	}

	// Global flags
	fs := cmd.PersistentFlags()
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	fs.StringVar(&opts.ConfigFile, "config", "", "config file (YAML)")
	fs.StringVar(&opts.Format, "format", config.FormatText, "output format (text|json|yaml)")
	fs.String("dialect", querysql.Postgres.Name, "SQL dialect")
	fs.Int("parallelism", 0, "concurrent compilations (0 = GOMAXPROCS)")
	fs.String("log-level", zerolog.LevelWarnValue, "log level")
	fs.String("log-format", trace.LogFormatText, "log format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewDialectsCommand(opts))

	return cmd
}

// resolve loads the configuration and builds the logger.
func (o *RootOptions) resolve(cmd *cobra.Command, v *viper.Viper) error {
	if err := config.BindFlags(v, cmd.Root().PersistentFlags()); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	cfg, err := config.Load(v, o.ConfigFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger, err := trace.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	o.Config = cfg
	o.Format = cfg.Format
	o.TraceID = uuid.NewString()
	o.Logger = logger.With().Str("trace_id", o.TraceID).Logger()
	o.Tracer = trace.NewZerolog(o.Logger)
	o.Logger.Debug().Str("dialect", cfg.Dialect).Int("parallelism", cfg.Parallelism).Msg("configuration loaded")
	return nil
}

func (o *RootOptions) dialect() *querysql.Dialect {
	if o.Config == nil {
		return querysql.Postgres
	}
	return o.Config.DialectValue()
}

func (o *RootOptions) parallelism() int {
	if o.Config == nil {
		return 0
	}
	return o.Config.Parallelism
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
		TraceID:   o.TraceID,
	}
}
