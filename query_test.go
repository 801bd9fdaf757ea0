package relmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   int
	Name string
}

type order struct {
	ID       int
	WidgetID int
}

func sessionFor(dialect string) *Session {
	return &Session{conn: &Conn{cfg: Config{Dialect: dialect}}}
}

func TestQueryBuildEntity(t *testing.T) {
	q := sessionFor("sqlite").Query(&widget{}).
		Where("name = ?", "a").
		OrderBy("id").
		Limit(5).
		Offset(10)
	stmt, args, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT widget.id, widget.name FROM widget WHERE name = ? ORDER BY id LIMIT 5 OFFSET 10", stmt)
	assert.Equal(t, []any{"a"}, args)
	assert.Equal(t, kindEntities, q.kind())
}

func TestQueryBuildJoin(t *testing.T) {
	q := sessionFor("sqlite").Query(&widget{}, &order{}).
		Join(&order{}, "order.widget_id = widget.id")
	stmt, _, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT widget.id, widget.name, order.id, order.widget_id FROM widget JOIN order ON order.widget_id = widget.id",
		stmt)
	assert.Equal(t, kindJoined, q.kind())

	// Entity spans cover the select list back to back.
	require.Len(t, q.entities, 2)
	assert.Equal(t, 0, q.entities[0].start)
	assert.Equal(t, 2, q.entities[1].start)
}

func TestQueryBuildProjection(t *testing.T) {
	q := sessionFor("sqlite").Query(Col("name")).From(&widget{})
	stmt, _, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM widget", stmt)
	assert.Equal(t, kindColumns, q.kind())
}

func TestQueryBuildRebindsPostgres(t *testing.T) {
	q := sessionFor("postgres").Query(&widget{}).
		Where("name = ?", "a").
		Where("id > ?", 3)
	stmt, _, err := q.Build()
	require.NoError(t, err)
	assert.Contains(t, stmt, "name = $1")
	assert.Contains(t, stmt, "id > $2")
}

func TestRebindSkipsQuotedLiterals(t *testing.T) {
	got := rebind("postgres", "SELECT * FROM t WHERE a = '?' AND b = ?")
	assert.Equal(t, "SELECT * FROM t WHERE a = '?' AND b = $1", got)
}

func TestQueryBuildNoTarget(t *testing.T) {
	_, _, err := sessionFor("sqlite").Query(Col("name")).Build()
	assert.Error(t, err)
}

func TestQueryReusableAfterExecutionShaping(t *testing.T) {
	q := sessionFor("sqlite").Query(&widget{}).Where("id = ?", 1)
	first, _, err := q.Build()
	require.NoError(t, err)
	second, _, err := q.Build()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "NULL", quoteLiteral(nil))
	assert.Equal(t, "'o''brien'", quoteLiteral("o'brien"))
	assert.Equal(t, "42", quoteLiteral(42))
	assert.Equal(t, "TRUE", quoteLiteral(true))
	assert.Equal(t,
		"'2024-03-01 12:30:00'",
		quoteLiteral(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)))
}
