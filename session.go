package relmap

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/relmap/relmap/internal/typeconv"
)

// Querier can run statements. Both *sql.DB and *sql.Tx satisfy it, which is
// how session operations transparently run inside an active transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a unit-of-work boundary bound to one Conn. It stages inserts
// until the surrounding Transaction commits, caches entities by primary key,
// and executes queries built by Query.
//
// A Session is not safe for concurrent use. Provision one per worker; they
// can all share the same Conn, whose driver pools physical connections.
type Session struct {
	conn     *Conn
	log      zerolog.Logger
	strict   bool
	closed   bool
	tx       *sql.Tx
	pending  []stagedInsert
	identity map[identityKey]any
}

type stagedInsert struct {
	model  *model
	entity any
}

type identityKey struct {
	typ reflect.Type
	key string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStrictResults upgrades cardinality failures in One from logged reports
// to returned errors (ErrNotFound, ErrAmbiguous).
func WithStrictResults() SessionOption {
	return func(s *Session) { s.strict = true }
}

// WithSessionLogger replaces the logger soft failures are reported through.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// Session opens a session on this connection.
func (c *Conn) Session(opts ...SessionOption) *Session {
	s := &Session{
		conn:     c,
		log:      c.log,
		identity: make(map[identityKey]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// q returns the querier for the current scope: the active transaction if one
// is open, the bare handle otherwise.
func (s *Session) q() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn.db
}

// Close ends the session. An active transaction is rolled back.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.identity = nil
	if s.tx != nil {
		tx := s.tx
		s.tx = nil
		return tx.Rollback()
	}
	return nil
}

// Transaction runs fn in a transactional scope. On normal return the staged
// inserts are flushed and the transaction commits; any error rolls everything
// back and propagates unchanged. The session returns to a clean reusable
// state on every exit path, and the identity cache is evicted at the
// boundary. Nesting is not allowed.
func (s *Session) Transaction(fn func(*Session) error) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx != nil {
		return ErrNestedTransaction
	}
	tx, err := s.conn.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	done := false
	defer func() {
		if !done {
			tx.Rollback()
		}
		s.tx = nil
		s.pending = nil
		s.identity = make(map[identityKey]any)
	}()

	if err := fn(s); err != nil {
		return err
	}
	if err := s.flush(context.Background()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	done = true
	return nil
}

// Insert constructs a new entity of prototype's type from a column-to-value
// mapping and stages it. It does not commit; run it inside Transaction to
// make it durable.
func (s *Session) Insert(prototype any, fields map[string]any) (any, error) {
	m, err := modelOf(prototype)
	if err != nil {
		return nil, err
	}
	entity, err := m.newInstance(fields)
	if err != nil {
		return nil, err
	}
	if err := s.Add(entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// Add stages an already-populated entity for the next commit.
func (s *Session) Add(entity any) error {
	if s.closed {
		return ErrSessionClosed
	}
	m, err := modelOf(entity)
	if err != nil {
		return err
	}
	s.pending = append(s.pending, stagedInsert{model: m, entity: entity})
	s.identity[s.idKey(m, m.keyOf(entity))] = entity
	return nil
}

// flush writes every staged insert through the current querier.
func (s *Session) flush(ctx context.Context) error {
	for _, st := range s.pending {
		cols := st.model.columns()
		placeholders := make([]string, len(cols))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			st.model.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		stmt = rebind(s.conn.cfg.Dialect, stmt)
		if _, err := s.exec(ctx, stmt, st.model.values(st.entity)...); err != nil {
			return fmt.Errorf("insert %s: %w", st.model.Table, err)
		}
	}
	s.pending = nil
	return nil
}

// GetByKey returns the entity of prototype's type whose primary key equals
// key, or nil if absent. key may be a scalar, a slice for composite keys, or
// a column-to-value map. The identity cache is consulted before fetching.
func (s *Session) GetByKey(ctx context.Context, prototype any, key any) (any, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	m, err := modelOf(prototype)
	if err != nil {
		return nil, err
	}
	pks := m.pkFields()
	if len(pks) == 0 {
		return nil, &SchemaError{Object: m.Table, Err: fmt.Errorf("no primary key mapped")}
	}
	parts, err := keyParts(pks, key)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.identity[s.idKey(m, parts)]; ok {
		return cached, nil
	}

	conds := make([]string, len(pks))
	for i, f := range pks {
		conds[i] = f.Column + " = ?"
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(m.columns(), ", "), m.Table, strings.Join(conds, " AND "))
	stmt = rebind(s.conn.cfg.Dialect, stmt)

	rows, err := s.query(ctx, stmt, parts...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	vals, err := scanValues(rows, len(m.Fields))
	if err != nil {
		return nil, err
	}
	entity, err := m.fromValues(vals)
	if err != nil {
		return nil, err
	}
	s.identity[s.idKey(m, parts)] = entity
	return entity, nil
}

// keyParts normalizes the accepted key forms into an ordered value slice.
func keyParts(pks []field, key any) ([]any, error) {
	switch k := key.(type) {
	case map[string]any:
		parts := make([]any, len(pks))
		for i, f := range pks {
			v, ok := k[f.Column]
			if !ok {
				return nil, fmt.Errorf("relmap: key map missing column %q", f.Column)
			}
			parts[i] = v
		}
		return parts, nil
	case []any:
		if len(k) != len(pks) {
			return nil, fmt.Errorf("relmap: key has %d parts, want %d", len(k), len(pks))
		}
		return k, nil
	default:
		if len(pks) != 1 {
			return nil, fmt.Errorf("relmap: composite key needs %d parts", len(pks))
		}
		return []any{key}, nil
	}
}

func (s *Session) idKey(m *model, key []any) identityKey {
	return identityKey{typ: m.Type, key: fmt.Sprintf("%v", key)}
}

// All executes the query and returns every matching result: entities for a
// single-entity query, tagged Rows for joins and projections. Empty result
// is an empty slice.
func (s *Session) All(ctx context.Context, q *Query) ([]any, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	stmt, args, err := q.Build()
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []any{}
	for rows.Next() {
		vals, err := scanValues(rows, len(cols))
		if err != nil {
			return nil, err
		}
		item, err := q.materialize(cols, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// First returns the first result by the query's declared ordering, or nil.
func (s *Session) First(ctx context.Context, q *Query) (any, error) {
	limited := *q
	limited.limit = 1
	results, err := s.All(ctx, &limited)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// One executes the query and requires exactly one match. With the default
// soft mode, cardinality failures are reported as structured events with the
// compiled query and One returns nil; WithStrictResults upgrades them to
// ErrNotFound and ErrAmbiguous.
func (s *Session) One(ctx context.Context, q *Query) (any, error) {
	limited := *q
	if limited.limit == 0 || limited.limit > 2 {
		// Two rows are enough to prove ambiguity.
		limited.limit = 2
	}
	results, err := s.All(ctx, &limited)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 1:
		return results[0], nil
	case 0:
		return nil, s.reportCardinality(q, "not_found", ErrNotFound)
	default:
		return nil, s.reportCardinality(q, "ambiguous", ErrAmbiguous)
	}
}

func (s *Session) reportCardinality(q *Query, reason string, err error) error {
	if s.strict {
		return err
	}
	s.log.Error().
		Str("event", "db_result").
		Str("reason", reason).
		Str("query", s.CompileLiteral(q)).
		Msg(err.Error())
	return nil
}

// CreateAll creates the table of every registered model if not already
// present. It is idempotent and additive; existing tables are left alone.
// The reflected schema is refreshed afterwards.
func (s *Session) CreateAll(ctx context.Context) error {
	if len(s.conn.models) == 0 {
		return ErrNotRegistered
	}
	for _, m := range s.conn.models {
		defs := make([]string, 0, len(m.Fields)+1)
		var pks []string
		for _, f := range m.Fields {
			defs = append(defs, f.Column+" "+typeconv.SQLType(f.Type, s.conn.cfg.Dialect))
			if f.PK {
				pks = append(pks, f.Column)
			}
		}
		if len(pks) > 0 {
			defs = append(defs, "PRIMARY KEY ("+strings.Join(pks, ", ")+")")
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", m.Table, strings.Join(defs, ", "))
		if _, err := s.exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", m.Table, err)
		}
	}
	return s.conn.reflectSchema(ctx)
}

// DropAll drops the table of every registered model.
func (s *Session) DropAll(ctx context.Context) error {
	for i := len(s.conn.models) - 1; i >= 0; i-- {
		m := s.conn.models[i]
		if _, err := s.exec(ctx, "DROP TABLE IF EXISTS "+m.Table); err != nil {
			return fmt.Errorf("drop table %s: %w", m.Table, err)
		}
	}
	return s.conn.reflectSchema(ctx)
}

// DropTable drops the single table an entity maps to.
func (s *Session) DropTable(ctx context.Context, entity any) error {
	m, err := modelOf(entity)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, "DROP TABLE IF EXISTS "+m.Table); err != nil {
		return fmt.Errorf("drop table %s: %w", m.Table, err)
	}
	return s.conn.reflectSchema(ctx)
}

// CompileLiteral renders the fully parameter-substituted SQL text of a query
// for diagnostics. The result is never executed. Placeholders inside quoted
// literals are left alone.
func (s *Session) CompileLiteral(q *Query) string {
	stmt, args, err := q.Build()
	if err != nil {
		return ""
	}
	var b strings.Builder
	next := 0
	inQuote := false
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case inQuote:
			b.WriteByte(c)
		case c == '?':
			if next < len(args) {
				b.WriteString(quoteLiteral(args[next]))
				next++
			} else {
				b.WriteByte(c)
			}
		case c == '$' && i+1 < len(stmt) && stmt[i+1] >= '0' && stmt[i+1] <= '9':
			j := i + 1
			for j < len(stmt) && stmt[j] >= '0' && stmt[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(stmt[i+1 : j])
			if n >= 1 && n <= len(args) {
				b.WriteString(quoteLiteral(args[n-1]))
			} else {
				b.WriteString(stmt[i:j])
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// exec runs a statement on the scope's querier, timed through the
// connection's observer.
func (s *Session) exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := s.q().ExecContext(ctx, stmt, args...)
	s.conn.obs.ObserveStatement(stmt, time.Since(start))
	return res, err
}

// query runs a select on the scope's querier, timed through the connection's
// observer.
func (s *Session) query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.q().QueryContext(ctx, stmt, args...)
	s.conn.obs.ObserveStatement(stmt, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}
