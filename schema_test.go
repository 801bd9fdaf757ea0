package relmap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap"
)

func TestInspectorSQLite(t *testing.T) {
	conn := newTestConn(t)
	sess := conn.Session()
	defer sess.Close()
	ctx := context.Background()
	require.NoError(t, sess.CreateAll(ctx))

	schemas, err := conn.Inspector().ListSchemas(ctx)
	require.NoError(t, err)
	assert.Contains(t, schemas, "main")

	tables, err := conn.Inspector().ListTables(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"post", "user"}, tables)

	cols, err := conn.Inspector().ListColumns(ctx, &User{}, "")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "INTEGER", cols[0].Type)
	assert.Equal(t, "name", cols[1].Name)
	assert.Equal(t, "TEXT", cols[1].Type)
	assert.True(t, cols[1].Nullable)
}

func TestInspectorUnknownSchema(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	_, err := conn.Inspector().ListTables(ctx, "no_such_schema")
	require.Error(t, err)
	var schemaErr *relmap.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "no_such_schema", schemaErr.Object)

	_, err = conn.Inspector().ListColumns(ctx, &User{}, "no_such_schema")
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "no_such_schema", schemaErr.Object)
}

func TestInspectorUnknownTable(t *testing.T) {
	conn := newTestConn(t)
	ctx := context.Background()

	type Ghost struct {
		ID int
	}
	_, err := conn.Inspector().ListColumns(ctx, &Ghost{}, "")
	require.Error(t, err)
	var schemaErr *relmap.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "ghost", schemaErr.Object)
}
