package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/querysql"
)

// DialectInfo summarizes the spelling rules of a dialect.
type DialectInfo struct {
	Name            string `json:"name" yaml:"name"`
	Quote           string `json:"quote" yaml:"quote"`
	Placeholder     string `json:"placeholder" yaml:"placeholder"`
	Paging          string `json:"paging" yaml:"paging"`
	Concat          string `json:"concat" yaml:"concat"`
	BooleanLiterals bool   `json:"boolean_literals" yaml:"boolean_literals"`
	NullsOrdering   bool   `json:"nulls_ordering" yaml:"nulls_ordering"`
}

// NewDialectsCommand creates the dialects command.
func NewDialectsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "dialects",
		Short:         "List the supported SQL dialects",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			infos := Dialects()
			if formatter.Structured() {
				return formatter.Success(infos)
			}
			rows := make([][]string, len(infos))
			for i, d := range infos {
				rows[i] = []string{
					d.Name, d.Quote, d.Placeholder, d.Paging, d.Concat,
					strconv.FormatBool(d.BooleanLiterals), strconv.FormatBool(d.NullsOrdering),
				}
			}
			formatter.Table([]string{"dialect", "quote", "param", "paging", "concat", "booleans", "nulls order"}, rows)
			return nil
		},
	}
}

// Dialects describes every built-in dialect, sorted by name.
func Dialects() []DialectInfo {
	names := querysql.Names()
	out := make([]DialectInfo, 0, len(names))
	for _, name := range names {
		d, _ := querysql.Lookup(name)
		info := DialectInfo{
			Name:            d.Name,
			Quote:           d.QuoteOpen + "name" + d.QuoteClose,
			Placeholder:     d.Placeholder(1),
			Concat:          d.Concat,
			BooleanLiterals: d.BooleanLiterals,
			NullsOrdering:   d.NullsOrdering,
		}
		if d.ConcatFunc {
			info.Concat = "CONCAT(a, b)"
		}
		switch d.Limit {
		case querysql.OffsetFetch:
			info.Paging = "OFFSET n ROWS FETCH FIRST m ROWS ONLY"
		case querysql.LimitOffsetRequiresLimit:
			info.Paging = "LIMIT " + d.UnboundedLimit + " OFFSET n"
		default:
			info.Paging = "LIMIT m OFFSET n"
		}
		out = append(out, info)
	}
	return out
}
