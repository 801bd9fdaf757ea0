package relmap

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// ColumnInfo describes one column as reported by the database catalog.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
	Default  *string
}

// Inspector provides read-only introspection over a connection. Every method
// is a single catalog round trip with no other side effects.
type Inspector struct {
	conn *Conn
}

// Inspector returns the schema inspector for this connection.
func (c *Conn) Inspector() *Inspector {
	return &Inspector{conn: c}
}

func (i *Inspector) dialect() string { return i.conn.cfg.Dialect }

func (i *Inspector) defaultSchema() string {
	switch i.dialect() {
	case "sqlite", "sqlite3":
		return "main"
	default:
		return "public"
	}
}

// ListSchemas returns the schema names visible on the connection, sorted.
func (i *Inspector) ListSchemas(ctx context.Context) ([]string, error) {
	var stmt string
	switch i.dialect() {
	case "sqlite", "sqlite3":
		stmt = `PRAGMA database_list`
	default:
		stmt = `SELECT schema_name FROM information_schema.schemata`
	}
	rows, err := i.conn.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &SchemaError{Object: "schemata", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if i.dialect() == "sqlite" || i.dialect() == "sqlite3" {
			var seq int
			var file sql.NullString
			if err := rows.Scan(&seq, &name, &file); err != nil {
				return nil, err
			}
		} else if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// schemaExists fails with a SchemaError when the named schema is not visible
// on the connection.
func (i *Inspector) schemaExists(ctx context.Context, schema string) error {
	names, err := i.ListSchemas(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == schema {
			return nil
		}
	}
	return &SchemaError{Object: schema, Err: fmt.Errorf("schema does not exist")}
}

// ListTables returns the table names in schema, sorted. An empty schema means
// the dialect's default one. An unknown schema is a SchemaError, never an
// empty list.
func (i *Inspector) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = i.defaultSchema()
	}
	if err := i.schemaExists(ctx, schema); err != nil {
		return nil, err
	}
	var rows *sql.Rows
	var err error
	switch i.dialect() {
	case "sqlite", "sqlite3":
		rows, err = i.conn.db.QueryContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	default:
		rows, err = i.conn.db.QueryContext(ctx,
			`SELECT table_name FROM information_schema.tables
			 WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`, schema)
	}
	if err != nil {
		return nil, &SchemaError{Object: schema, Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListColumns returns column metadata for the table an entity maps to.
func (i *Inspector) ListColumns(ctx context.Context, entity any, schema string) ([]ColumnInfo, error) {
	m, err := modelOf(entity)
	if err != nil {
		return nil, err
	}
	return i.listTableColumns(ctx, m.Table, schema)
}

func (i *Inspector) listTableColumns(ctx context.Context, table, schema string) ([]ColumnInfo, error) {
	if schema == "" {
		schema = i.defaultSchema()
	}
	if err := i.schemaExists(ctx, schema); err != nil {
		return nil, err
	}
	switch i.dialect() {
	case "sqlite", "sqlite3":
		return i.sqliteColumns(ctx, table)
	default:
		return i.pgColumns(ctx, table, schema)
	}
}

func (i *Inspector) pgColumns(ctx context.Context, table, schema string) ([]ColumnInfo, error) {
	rows, err := i.conn.db.QueryContext(ctx,
		`SELECT column_name, udt_name, is_nullable, column_default
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, &SchemaError{Object: table, Err: err}
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var nullable string
		var def sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &nullable, &def); err != nil {
			return nil, err
		}
		c.Nullable = nullable == "YES"
		if def.Valid {
			c.Default = &def.String
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &SchemaError{Object: table, Err: fmt.Errorf("table not found in schema %q", schema)}
	}
	return cols, nil
}

func (i *Inspector) sqliteColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := i.conn.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, &SchemaError{Object: table, Err: err}
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var cid, notNull, pk int
		var c ColumnInfo
		var def sql.NullString
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		c.Nullable = notNull == 0
		if def.Valid {
			c.Default = &def.String
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &SchemaError{Object: table, Err: fmt.Errorf("table not found")}
	}
	return cols, nil
}

// primaryKey returns the primary-key column names of a table in key order.
func (i *Inspector) primaryKey(ctx context.Context, table, schema string) ([]string, error) {
	if schema == "" {
		schema = i.defaultSchema()
	}
	switch i.dialect() {
	case "sqlite", "sqlite3":
		rows, err := i.conn.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			return nil, &SchemaError{Object: table, Err: err}
		}
		defer rows.Close()

		type pkCol struct {
			name string
			ord  int
		}
		var pks []pkCol
		for rows.Next() {
			var cid, notNull, pk int
			var name, typ string
			var def sql.NullString
			if err := rows.Scan(&cid, &name, &typ, &notNull, &def, &pk); err != nil {
				return nil, err
			}
			if pk > 0 {
				pks = append(pks, pkCol{name: name, ord: pk})
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		sort.Slice(pks, func(a, b int) bool { return pks[a].ord < pks[b].ord })
		names := make([]string, len(pks))
		for idx, p := range pks {
			names[idx] = p.name
		}
		return names, nil
	default:
		rows, err := i.conn.db.QueryContext(ctx,
			`SELECT kcu.column_name
			 FROM information_schema.table_constraints tc
			 JOIN information_schema.key_column_usage kcu
			   ON tc.constraint_name = kcu.constraint_name
			  AND tc.table_schema = kcu.table_schema
			 WHERE tc.constraint_type = 'PRIMARY KEY'
			   AND tc.table_schema = $1 AND tc.table_name = $2
			 ORDER BY kcu.ordinal_position`, schema, table)
		if err != nil {
			return nil, &SchemaError{Object: table, Err: err}
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		return names, rows.Err()
	}
}
