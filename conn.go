package relmap

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Conn owns one underlying database handle for its lifetime. It executes raw
// statements and holds the schema reflected at construction time, which maps
// every live table to its columns and primary key.
type Conn struct {
	cfg    Config
	db     *sql.DB
	log    zerolog.Logger
	obs    Observer
	tables map[string]Table
	models []*model
}

// Table is the reflected shape of one live table.
type Table struct {
	Name       string
	Columns    []ColumnInfo
	PrimaryKey []string
}

// Option configures a Conn at construction.
type Option func(*Conn)

// WithLogger replaces the default stderr logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Conn) { c.log = log }
}

// WithObserver attaches an additional statement observer. The observer's
// lifecycle is scoped to this handle.
func WithObserver(obs Observer) Option {
	return func(c *Conn) {
		if c.obs == nil {
			c.obs = obs
			return
		}
		if m, ok := c.obs.(multiObserver); ok {
			c.obs = append(m, obs)
			return
		}
		c.obs = multiObserver{c.obs, obs}
	}
}

// WithModels declares the entity structs the connection's sessions operate
// on. CreateAll and DropAll cover exactly these models.
func WithModels(entities ...any) Option {
	return func(c *Conn) {
		for _, e := range entities {
			m, err := modelOf(e)
			if err != nil {
				panic(err)
			}
			c.models = append(c.models, m)
		}
	}
}

// Open assembles the data source name from cfg, opens the database handle
// (the driver connects lazily), and eagerly reflects the live schema. A table
// without a primary key fails reflection, matching automap semantics.
func Open(cfg Config, opts ...Option) (*Conn, error) {
	dsn, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.driverName(), dsn)
	if err != nil {
		return nil, &ConnError{Stage: "open", Err: err}
	}
	if isSQLiteMemory(cfg) {
		// Every pooled connection to :memory: would get its own empty
		// database, so pin the pool to a single connection.
		db.SetMaxOpenConns(1)
	}
	c, err := NewConn(db, cfg, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewConn wraps an already-open database handle. Schema reflection still runs
// eagerly, which is the first round trip the handle performs.
func NewConn(db *sql.DB, cfg Config, opts ...Option) (*Conn, error) {
	c := &Conn{
		cfg: cfg,
		db:  db,
		log: zerolog.New(os.Stderr).With().Timestamp().Str("component", "relmap").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.obs == nil {
		c.obs = NewSlowQueryObserver(c.log)
	}
	if err := c.reflectSchema(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// DB exposes the underlying handle for callers that need driver-level access.
func (c *Conn) DB() *sql.DB { return c.db }

// Config returns the parameters the handle was built from.
func (c *Conn) Config() Config { return c.cfg }

// Tables returns the schema reflected at construction.
func (c *Conn) Tables() map[string]Table { return c.tables }

// Close releases the underlying handle.
func (c *Conn) Close() error { return c.db.Close() }

// reflectSchema maps every table in the default schema to its columns and
// primary key.
func (c *Conn) reflectSchema(ctx context.Context) error {
	ins := c.Inspector()
	names, err := ins.ListTables(ctx, "")
	if err != nil {
		return &ConnError{Stage: "reflect", Err: err}
	}
	c.tables = make(map[string]Table, len(names))
	for _, name := range names {
		cols, err := ins.listTableColumns(ctx, name, "")
		if err != nil {
			return err
		}
		pk, err := ins.primaryKey(ctx, name, "")
		if err != nil {
			return err
		}
		if len(pk) == 0 {
			return &SchemaError{Object: name, Err: fmt.Errorf("table has no primary key")}
		}
		c.tables[name] = Table{Name: name, Columns: cols, PrimaryKey: pk}
	}
	return nil
}

// Execute runs a raw statement with bound parameters in the driver's implicit
// auto-committing unit of work. The observer sees every execution.
func (c *Conn) Execute(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := c.db.ExecContext(ctx, stmt, args...)
	c.obs.ObserveStatement(stmt, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	return res, nil
}

// FetchAll executes a statement and materializes every result row.
func (c *Conn) FetchAll(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	return c.FetchSome(ctx, stmt, 0, args...)
}

// FetchSome executes a statement and materializes up to limit rows; a limit
// of zero or less means unbounded.
func (c *Conn) FetchSome(ctx context.Context, stmt string, limit int, args ...any) ([]Row, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx, stmt, args...)
	c.obs.ObserveStatement(stmt, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Columns: cols, Values: vals})
		// Stop before the cursor advances past the limit.
		if limit > 0 && len(out) == limit {
			return out, nil
		}
	}
	return out, rows.Err()
}

// scanValues scans the current row into a value slice, decoding []byte cells
// to strings.
func scanValues(rows *sql.Rows, n int) ([]any, error) {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func isSQLiteMemory(cfg Config) bool {
	switch cfg.Dialect {
	case "sqlite", "sqlite3":
		return cfg.Database == ":memory:" || cfg.Database == ""
	}
	return false
}
