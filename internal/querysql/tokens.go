package querysql

import "strings"

// Token is one piece of a rendered statement.
//
// This is a sealed interface - only the types below implement it:
//   - StringToken: literal SQL text
//   - ScalarTagToken: a bound parameter
//   - QuotationTagToken: a spliced quotation the caller substitutes
//   - *Statement: a nested token sequence
type Token interface {
	token()
}

// StringToken is literal SQL text.
type StringToken string

func (StringToken) token() {}

// ScalarTagToken is a runtime value bound as a statement parameter. It
// renders as the dialect's placeholder.
type ScalarTagToken struct {
	UID         string
	RuntimeType string
}

func (ScalarTagToken) token() {}

// QuotationTagToken marks where a separately compiled quotation is spliced.
// It renders as {{uid}} until the caller substitutes it.
type QuotationTagToken struct {
	UID string
}

func (QuotationTagToken) token() {}

// Statement is a token sequence. Statements nest freely while rendering and
// are flattened by Merge.
type Statement struct {
	Tokens []Token
}

func (*Statement) token() {}

// Stmt builds a statement from tokens.
func Stmt(tokens ...Token) *Statement {
	return &Statement{Tokens: tokens}
}

// Param is one bound parameter of a statement, in placeholder order.
type Param struct {
	UID         string `json:"uid" yaml:"uid"`
	RuntimeType string `json:"runtime_type" yaml:"runtime_type"`
}

// Merge flattens nested statements and coalesces adjacent string tokens.
// The result holds no *Statement token and never two StringTokens in a row.
func Merge(s *Statement) *Statement {
	var out []Token
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			out = append(out, StringToken(text.String()))
			text.Reset()
		}
	}
	var walk func(tokens []Token)
	walk = func(tokens []Token) {
		for _, t := range tokens {
			switch n := t.(type) {
			case StringToken:
				text.WriteString(string(n))
			case *Statement:
				if n != nil {
					walk(n.Tokens)
				}
			default:
				flush()
				out = append(out, t)
			}
		}
	}
	walk(s.Tokens)
	flush()
	return &Statement{Tokens: out}
}

// String renders the statement as SQL text for d.
func (s *Statement) String(d *Dialect) string {
	var b strings.Builder
	n := 0
	for _, t := range Merge(s).Tokens {
		switch tok := t.(type) {
		case StringToken:
			b.WriteString(string(tok))
		case ScalarTagToken:
			n++
			b.WriteString(d.Placeholder(n))
		case QuotationTagToken:
			b.WriteString("{{" + tok.UID + "}}")
		}
	}
	return b.String()
}

// Params returns the bound parameters in placeholder order.
func (s *Statement) Params() []Param {
	var out []Param
	for _, t := range Merge(s).Tokens {
		if tag, ok := t.(ScalarTagToken); ok {
			out = append(out, Param{UID: tag.UID, RuntimeType: tag.RuntimeType})
		}
	}
	return out
}

// Quotations returns the UIDs of the quotations still to be spliced.
func (s *Statement) Quotations() []string {
	var out []string
	for _, t := range Merge(s).Tokens {
		if tag, ok := t.(QuotationTagToken); ok {
			out = append(out, tag.UID)
		}
	}
	return out
}
