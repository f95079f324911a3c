package plan_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/query"
	"github.com/aquadoggo-go/aquadoggo/internal/query/plan"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

func noteSchema() *types.Schema {
	return &types.Schema{
		SchemaID: "note_v1",
		Name:     "note",
		Fields: []types.SchemaField{
			{Key: "title", Type: types.FieldTypeString},
			{Key: "priority", Type: types.FieldTypeInt},
		},
	}
}

func TestCompileImplicitlyExcludesDeleted(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Filter: mustFilter(t, "title=draft")}
	c, err := plan.Compile(q, noteSchema(), store.SQLite)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "d.is_deleted")
	assert.Contains(t, c.SQL, "EXISTS (SELECT 1 FROM document_view_fields WHERE view_id = d.current_view_id AND name = ? AND value = ?)")
}

func TestCompileExplicitDeletedSkipsImplicitFilter(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Filter: mustFilter(t, "deleted=true")}
	c, err := plan.Compile(q, noteSchema(), store.SQLite)
	require.NoError(t, err)
	// d.is_deleted appears once in the SELECT list and once as the single
	// comparison in WHERE; an unwanted second implicit clause would add
	// a third occurrence.
	assert.Equal(t, 2, strings.Count(c.SQL, "d.is_deleted"))
}

func TestCompileNumericFieldUsesCastNumeric(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Filter: mustFilter(t, "priority>1")}
	c, err := plan.Compile(q, noteSchema(), store.SQLite)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "CAST(value AS NUMERIC) > ?")
}

func TestCompileOrderJoinsSchemaField(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Order: &query.Order{Field: "title", Direction: query.Asc}}
	c, err := plan.Compile(q, noteSchema(), store.SQLite)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "LEFT JOIN document_view_fields order_key")
	assert.Contains(t, c.SQL, "ORDER BY order_key.value ASC, d.current_view_id ASC")
}

func TestCompileUnknownFieldErrors(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Filter: mustFilter(t, "nope=1")}
	_, err := plan.Compile(q, noteSchema(), store.SQLite)
	assert.Error(t, err)
}

func TestCompilePaginationAddsRowValueComparison(t *testing.T) {
	q := &query.Query{
		SchemaID:   "note_v1",
		Order:      &query.Order{Field: "priority", Direction: query.Desc},
		Pagination: query.Pagination{First: 10, After: plan.EncodeCursor(plan.Cursor{OrderKey: "3", ViewID: "view-abc"})},
	}
	c, err := plan.Compile(q, noteSchema(), store.SQLite)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "d.current_view_id) < (")
	assert.Contains(t, c.SQL, "LIMIT 11")
}

func TestCompilePostgresPlaceholders(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Filter: mustFilter(t, "title=draft")}
	c, err := plan.Compile(q, noteSchema(), store.Postgres)
	require.NoError(t, err)
	assert.Contains(t, c.SQL, "$1")
	assert.Contains(t, c.SQL, "$2")
}

func TestCountSQLSharesFilter(t *testing.T) {
	q := &query.Query{SchemaID: "note_v1", Filter: mustFilter(t, "title=draft")}
	c, err := plan.Compile(q, noteSchema(), store.SQLite)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.CountSQL, "SELECT COUNT(*) FROM documents d WHERE"))
	assert.Equal(t, len(c.Args), len(c.CountArgs))
}

func TestCursorRoundTrip(t *testing.T) {
	c := plan.Cursor{OrderKey: "42", ViewID: types.ViewID("view-xyz")}
	decoded, err := plan.DecodeCursor(plan.EncodeCursor(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func mustFilter(t *testing.T, expr string) *query.Filter {
	t.Helper()
	f, err := query.ParseFilter(expr)
	require.NoError(t, err)
	return f
}
