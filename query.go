package relmap

import (
	"fmt"
	"strings"
	"time"
)

// Col names a projected column expression, e.g. Col("users.name").
type Col string

// queryKind is the statically known result shape of a query. The execution
// layer tags rows with it, so normalization never has to guess whether a row
// came from a join or a flat projection.
type queryKind int

const (
	kindEntities queryKind = iota // whole entities of a single model
	kindJoined                    // concatenated entities from a join
	kindColumns                   // flat column projection
)

// entityTarget is one whole-entity selection and its column span within the
// select list.
type entityTarget struct {
	model *model
	start int
	width int
}

// Query is an unexecuted, composable selection over entities or columns.
// Building and executing it never mutates it, so a descriptor is reusable.
type Query struct {
	sess     *Session
	entities []entityTarget
	cols     []string
	joins    []string
	wheres   []string
	args     []any
	orderBy  string
	limit    int
	offset   int
	from     string
	err      error
}

// Query builds an unexecuted query over the given targets: entity struct
// pointers select whole entities, Col values select single columns.
func (s *Session) Query(targets ...any) *Query {
	q := &Query{sess: s}
	for _, t := range targets {
		switch v := t.(type) {
		case Col:
			q.cols = append(q.cols, string(v))
		case string:
			q.cols = append(q.cols, v)
		default:
			m, err := modelOf(t)
			if err != nil {
				q.err = err
				return q
			}
			q.entities = append(q.entities, entityTarget{model: m, width: len(m.Fields)})
			if q.from == "" {
				q.from = m.Table
			}
		}
	}
	// Column targets render first in the select list, so entity spans start
	// after them.
	start := len(q.cols)
	for i := range q.entities {
		q.entities[i].start = start
		start += q.entities[i].width
	}
	return q
}

// From overrides the table a pure column projection selects from.
func (q *Query) From(entity any) *Query {
	m, err := modelOf(entity)
	if err != nil {
		q.err = err
		return q
	}
	q.from = m.Table
	return q
}

// Where appends a predicate with ?-style placeholders. Multiple predicates
// are AND-ed.
func (q *Query) Where(cond string, args ...any) *Query {
	q.wheres = append(q.wheres, cond)
	q.args = append(q.args, args...)
	return q
}

// Join appends a join against another entity's table.
func (q *Query) Join(entity any, on string) *Query {
	m, err := modelOf(entity)
	if err != nil {
		q.err = err
		return q
	}
	q.joins = append(q.joins, fmt.Sprintf("JOIN %s ON %s", m.Table, on))
	return q
}

// OrderBy sets the declared ordering First relies on.
func (q *Query) OrderBy(order string) *Query {
	q.orderBy = order
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// kind reports the statically known result shape.
func (q *Query) kind() queryKind {
	switch {
	case len(q.cols) > 0:
		return kindColumns
	case len(q.entities) > 1:
		return kindJoined
	default:
		return kindEntities
	}
}

// selectList renders the select clause. Entity targets expand to their
// qualified columns so joined rows can be sliced back per entity.
func (q *Query) selectList() string {
	var parts []string
	parts = append(parts, q.cols...)
	for _, et := range q.entities {
		for _, c := range et.model.columns() {
			parts = append(parts, et.model.Table+"."+c)
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, ", ")
}

// Build assembles the SQL text and its bound arguments.
func (q *Query) Build() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	if q.from == "" {
		return "", nil, fmt.Errorf("relmap: query has no target table")
	}
	parts := []string{"SELECT", q.selectList(), "FROM", q.from}
	if len(q.joins) > 0 {
		parts = append(parts, strings.Join(q.joins, " "))
	}
	if len(q.wheres) > 0 {
		parts = append(parts, "WHERE", strings.Join(q.wheres, " AND "))
	}
	if q.orderBy != "" {
		parts = append(parts, "ORDER BY", q.orderBy)
	}
	if q.limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", q.limit))
	}
	if q.offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", q.offset))
	}
	stmt := strings.Join(parts, " ")
	if q.sess != nil {
		stmt = rebind(q.sess.conn.cfg.Dialect, stmt)
	}
	return stmt, q.args, nil
}

// materialize turns one scanned row into the query's tagged result shape:
// the entity itself for a single-entity query, a joined Row carrying the
// concatenated entities, or a flat projection Row.
func (q *Query) materialize(cols []string, vals []any) (any, error) {
	switch q.kind() {
	case kindEntities:
		if len(q.entities) == 0 {
			return Row{Columns: cols, Values: vals}, nil
		}
		return q.entities[0].model.fromValues(vals)
	case kindJoined:
		row := Row{Columns: cols, Values: vals, Joined: true}
		for _, et := range q.entities {
			entity, err := et.model.fromValues(vals[et.start : et.start+et.width])
			if err != nil {
				return nil, err
			}
			row.Entities = append(row.Entities, entity)
		}
		return row, nil
	default:
		return Row{Columns: cols, Values: vals}, nil
	}
}

// rebind converts ?-style placeholders to the dialect's form.
func rebind(dialect, stmt string) string {
	switch dialect {
	case "postgres", "postgresql":
		var b strings.Builder
		n := 0
		inQuote := false
		for _, r := range stmt {
			switch {
			case r == '\'':
				inQuote = !inQuote
				b.WriteRune(r)
			case r == '?' && !inQuote:
				n++
				fmt.Fprintf(&b, "$%d", n)
			default:
				b.WriteRune(r)
			}
		}
		return b.String()
	default:
		return stmt
	}
}

// quoteLiteral renders one bound value as a SQL literal for diagnostics.
func quoteLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return "'" + strings.ReplaceAll(string(x), "'", "''") + "'"
	case time.Time:
		return "'" + x.Format(TimeLayout) + "'"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(x)
	}
}
