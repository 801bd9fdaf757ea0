package relmap

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// TimeLayout is the canonical string form datetime values are rendered in.
const TimeLayout = "2006-01-02 15:04:05"

// Row is one materialized result row. The execution layer tags it: Joined
// rows carry the entities a join concatenated, flat projections carry only
// columns and values. Normalization branches on the tag, never on the data.
type Row struct {
	Columns  []string
	Values   []any
	Joined   bool
	Entities []any
}

// Get returns the value of a named column.
func (r Row) Get(col string) (any, bool) {
	for i, c := range r.Columns {
		if c == col {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Mapping is the uniform plain representation every result normalizes to.
type Mapping = map[string]any

// Normalizer flattens heterogeneous query results into Mappings. The zero
// value reports misuse softly to stderr; NewNormalizer injects the reporting
// channel and strictness.
type Normalizer struct {
	log    zerolog.Logger
	strict bool
}

// NewNormalizer returns a normalizer reporting through log. When strict is
// set, misuse surfaces as a returned error instead of a logged event.
func NewNormalizer(log zerolog.Logger, strict bool) *Normalizer {
	return &Normalizer{log: log, strict: strict}
}

var defaultNormalizer = &Normalizer{
	log: zerolog.New(os.Stderr).With().Timestamp().Str("component", "relmap").Logger(),
}

// Normalize flattens a query result with the package default normalizer.
func Normalize(v any) (any, error) {
	return defaultNormalizer.Normalize(v)
}

// Normalize is total over four shapes: a slice normalizes element-wise with
// order preserved; an unexecuted *Query is a misuse signal; a tagged Row
// flattens to one Mapping (merging its entities when joined, later entries
// winning); a single entity maps its columns with datetimes rendered in
// TimeLayout. Anything absent normalizes to nil.
func (n *Normalizer) Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case *Query:
		if n.strict {
			return nil, ErrUnexecutedQuery
		}
		n.log.Error().
			Str("event", "db_result").
			Str("reason", "unexecuted_query").
			Msg("normalize called on an unexecuted query")
		return nil, nil
	case Row:
		return n.normalizeRow(x)
	case *Row:
		return n.normalizeRow(*x)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			m, err := n.Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	}
	return n.normalizeEntity(v)
}

func (n *Normalizer) normalizeRow(r Row) (any, error) {
	if r.Joined {
		merged := Mapping{}
		for _, e := range r.Entities {
			m, err := n.normalizeEntity(e)
			if err != nil {
				return nil, err
			}
			for k, val := range m {
				merged[k] = val
			}
		}
		return merged, nil
	}
	out := make(Mapping, len(r.Columns))
	for i, c := range r.Columns {
		out[c] = r.Values[i]
	}
	return out, nil
}

func (n *Normalizer) normalizeEntity(v any) (Mapping, error) {
	m, err := modelOf(v)
	if err != nil {
		return nil, fmt.Errorf("relmap: cannot normalize %T: %w", v, err)
	}
	ev := reflect.ValueOf(v)
	for ev.Kind() == reflect.Ptr {
		ev = ev.Elem()
	}
	out := make(Mapping, len(m.Fields))
	for _, f := range m.Fields {
		val := ev.Field(f.Index).Interface()
		if t, ok := val.(time.Time); ok {
			out[f.Column] = t.Format(TimeLayout)
		} else {
			out[f.Column] = val
		}
	}
	return out, nil
}
