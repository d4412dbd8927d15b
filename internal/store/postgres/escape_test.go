package postgres

import (
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeEscaper(t *testing.T) {
	assert.Equal(t, `100\% \_x\\`, likeEscaper.Replace(`100% _x\`))
	assert.Equal(t, "tolkien", likeEscaper.Replace("tolkien"))
}

func TestBooksByIDsQuery(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	query, args, err := goqu.Dialect(dialectPostgres).From(tableBooks).
		Select(bookColumns...).
		Where(goqu.C("id").In(idStrings([]uuid.UUID{a, b, a}))).
		Prepared(true).
		ToSQL()
	require.NoError(t, err)

	assert.Contains(t, query, `"id" IN ($1, $2)`)
	assert.Equal(t, []any{a.String(), b.String()}, args)
}

func TestSearchBooksQuery_OrdersByByteCollation(t *testing.T) {
	query, args, err := searchBooksQuery(goqu.Dialect(dialectPostgres), " 50% ")
	require.NoError(t, err)

	assert.Contains(t, query, `ORDER BY "title" COLLATE "C" ASC, "id" ASC`)
	assert.Equal(t, []any{`%50\%%`, `%50\%%`}, args)
}
