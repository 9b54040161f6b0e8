package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeFlattensAndCoalesces(t *testing.T) {
	s := Stmt(
		StringToken("SELECT "),
		Stmt(StringToken("x.id"), Stmt(StringToken(" FROM "), StringToken("Person x"))),
		StringToken(" WHERE x.id = "),
		ScalarTagToken{UID: "a", RuntimeType: "int"},
		(*Statement)(nil),
	)

	got := Merge(s)
	assert.Equal(t, []Token{
		StringToken("SELECT x.id FROM Person x WHERE x.id = "),
		ScalarTagToken{UID: "a", RuntimeType: "int"},
	}, got.Tokens)
}

func TestStatementStringNumbersPlaceholders(t *testing.T) {
	s := Stmt(
		StringToken("a = "), ScalarTagToken{UID: "p1"},
		StringToken(" AND b = "), ScalarTagToken{UID: "p2"},
		StringToken(" AND c IN "), QuotationTagToken{UID: "q1"},
	)

	assert.Equal(t, "a = $1 AND b = $2 AND c IN {{q1}}", s.String(Postgres))
	assert.Equal(t, "a = ? AND b = ? AND c IN {{q1}}", s.String(MySQL))
	assert.Equal(t, []Param{{UID: "p1"}, {UID: "p2"}}, s.Params())
	assert.Equal(t, []string{"q1"}, s.Quotations())
}

func TestStatementWithoutTags(t *testing.T) {
	s := Stmt(StringToken("SELECT 1"))

	assert.Empty(t, s.Params())
	assert.Empty(t, s.Quotations())
	assert.Equal(t, "SELECT 1", s.String(SQLite))
}
