package querysql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// LimitOffsetStyle selects how LIMIT and OFFSET are spelled.
type LimitOffsetStyle int

const (
	// LimitOffset renders LIMIT n OFFSET m, each clause only when present.
	LimitOffset LimitOffsetStyle = iota

	// LimitOffsetRequiresLimit is LimitOffset for dialects that reject OFFSET
	// without LIMIT; a lone offset is preceded by the unbounded limit.
	LimitOffsetRequiresLimit

	// OffsetFetch renders OFFSET m ROWS FETCH FIRST n ROWS ONLY, which needs
	// an ORDER BY clause to be present.
	OffsetFetch
)

// PlaceholderStyle selects how bound parameters are spelled.
type PlaceholderStyle int

const (
	// QuestionMark renders every parameter as ?.
	QuestionMark PlaceholderStyle = iota

	// Numbered renders parameters as $1, $2, ...
	Numbered
)

// Dialect is the set of spelling rules of one SQL variant. It is pure data:
// every dialect renders the same clause model.
type Dialect struct {
	Name string

	// Reserved holds upper-case keywords that must be quoted as identifiers.
	Reserved map[string]bool

	// QuoteOpen and QuoteClose delimit a quoted identifier.
	QuoteOpen  string
	QuoteClose string

	// Concat is the string concatenation operator. When ConcatFunc is set
	// concatenation renders as CONCAT(a, b) instead.
	Concat     string
	ConcatFunc bool

	// BooleanLiterals reports whether TRUE and FALSE are valid both as values
	// and as conditions. Without them booleans are vendorized to 1 and 0.
	BooleanLiterals bool

	// NullsOrdering reports whether NULLS FIRST / NULLS LAST are accepted.
	NullsOrdering bool

	Limit          LimitOffsetStyle
	UnboundedLimit string

	// ParenthesizeSetOperands wraps each side of UNION in parentheses.
	// Dialects that reject the parentheses get ordered or limited operands
	// wrapped in SELECT * FROM ( ... ) instead.
	ParenthesizeSetOperands bool

	Placeholders PlaceholderStyle
}

// Placeholder returns the spelling of the n-th (one based) parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.Placeholders == Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote returns name as an identifier: bare when it is a plain identifier
// that is not a keyword, quoted otherwise.
func (d *Dialect) Quote(name string) string {
	if name == "" {
		return name
	}
	if !d.Reserved[strings.ToUpper(name)] && isIdent(name) {
		return name
	}
	closing := d.QuoteClose
	return d.QuoteOpen + strings.ReplaceAll(name, closing, closing+closing) + closing
}

func isIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z':
		case '0' <= ch && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

var commonReserved = []string{
	"ALL", "AND", "ANY", "AS", "ASC", "BETWEEN", "BY", "CASE", "CAST", "CHECK",
	"COLUMN", "CONSTRAINT", "CREATE", "CROSS", "DEFAULT", "DELETE", "DESC",
	"DISTINCT", "DROP", "ELSE", "END", "EXCEPT", "EXISTS", "FALSE", "FETCH",
	"FOR", "FOREIGN", "FROM", "FULL", "GROUP", "HAVING", "IN", "INNER",
	"INSERT", "INTERSECT", "INTO", "IS", "JOIN", "KEY", "LEFT", "LIKE",
	"LIMIT", "NOT", "NULL", "OFFSET", "ON", "OR", "ORDER", "OUTER", "PRIMARY",
	"REFERENCES", "RIGHT", "ROWS", "SELECT", "SET", "TABLE", "THEN", "TO",
	"TRUE", "UNION", "UNIQUE", "UPDATE", "USING", "VALUES", "WHEN", "WHERE",
	"WITH",
}

func reserved(extra ...string) map[string]bool {
	m := make(map[string]bool, len(commonReserved)+len(extra))
	for _, w := range commonReserved {
		m[w] = true
	}
	for _, w := range extra {
		m[w] = true
	}
	return m
}

// Built-in dialects.
var (
	Postgres = &Dialect{
		Name:                    "postgres",
		Reserved:                reserved("ANALYSE", "ANALYZE", "ARRAY", "ONLY", "USER", "WINDOW"),
		QuoteOpen:               `"`,
		QuoteClose:              `"`,
		Concat:                  "||",
		BooleanLiterals:         true,
		NullsOrdering:           true,
		Limit:                   LimitOffset,
		ParenthesizeSetOperands: true,
		Placeholders:            Numbered,
	}

	MySQL = &Dialect{
		Name:                    "mysql",
		Reserved:                reserved("DATABASE", "DIV", "INDEX", "KEYS", "MOD", "RANK", "READ", "ROW"),
		QuoteOpen:               "`",
		QuoteClose:              "`",
		ConcatFunc:              true,
		BooleanLiterals:         true,
		Limit:                   LimitOffsetRequiresLimit,
		UnboundedLimit:          "18446744073709551615",
		ParenthesizeSetOperands: true,
		Placeholders:            QuestionMark,
	}

	SQLite = &Dialect{
		Name:           "sqlite",
		Reserved:       reserved("ABORT", "GLOB", "INDEX", "PRAGMA", "REGEXP"),
		QuoteOpen:      `"`,
		QuoteClose:     `"`,
		Concat:         "||",
		NullsOrdering:  true,
		Limit:          LimitOffsetRequiresLimit,
		UnboundedLimit: "-1",
		Placeholders:   QuestionMark,
	}

	H2 = &Dialect{
		Name:                    "h2",
		Reserved:                reserved("MINUS", "ROWNUM", "TOP", "USER", "YEAR"),
		QuoteOpen:               `"`,
		QuoteClose:              `"`,
		Concat:                  "||",
		BooleanLiterals:         true,
		NullsOrdering:           true,
		Limit:                   LimitOffset,
		ParenthesizeSetOperands: true,
		Placeholders:            QuestionMark,
	}

	SQLServer = &Dialect{
		Name:                    "sqlserver",
		Reserved:                reserved("IDENTITY", "PERCENT", "TOP", "TRAN", "USER"),
		QuoteOpen:               "[",
		QuoteClose:              "]",
		Concat:                  "+",
		Limit:                   OffsetFetch,
		ParenthesizeSetOperands: true,
		Placeholders:            QuestionMark,
	}
)

var dialects = map[string]*Dialect{
	Postgres.Name:  Postgres,
	MySQL.Name:     MySQL,
	SQLite.Name:    SQLite,
	H2.Name:        H2,
	SQLServer.Name: SQLServer,
}

// Lookup returns the built-in dialect with the given name.
func Lookup(name string) (*Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names returns the built-in dialect names, sorted.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
