package relmap

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unicode"
)

// field describes one mapped struct field.
type field struct {
	Column string
	Index  int
	PK     bool
	Type   reflect.Type
}

// model is the reflected mapping of an entity struct to a table.
type model struct {
	Name   string
	Table  string
	Type   reflect.Type
	Fields []field
}

var (
	modelMu    sync.Mutex
	modelCache = map[reflect.Type]*model{}
)

// modelOf reflects the mapping metadata for an entity struct or pointer to
// struct. Column names come from a `db:"name"` tag when present, otherwise
// from the snake_cased field name. `db:"name,pk"` marks a primary-key field;
// without any pk tag a field named ID is the key.
func modelOf(v any) (*model, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relmap: entity must be a struct or pointer to struct, got %T", v)
	}

	modelMu.Lock()
	defer modelMu.Unlock()
	if m, ok := modelCache[t]; ok {
		return m, nil
	}

	m := &model{
		Name:  t.Name(),
		Table: snakeCase(t.Name()),
		Type:  t,
	}
	tagged := false
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		col := snakeCase(sf.Name)
		pk := false
		if tag, ok := sf.Tag.Lookup("db"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				col = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "pk" {
					pk = true
					tagged = true
				}
			}
		}
		m.Fields = append(m.Fields, field{Column: col, Index: i, PK: pk, Type: sf.Type})
	}
	if !tagged {
		for i := range m.Fields {
			if m.Fields[i].Column == "id" {
				m.Fields[i].PK = true
			}
		}
	}

	modelCache[t] = m
	return m, nil
}

// columns returns every mapped column in declaration order.
func (m *model) columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// pkFields returns the primary-key fields in declaration order.
func (m *model) pkFields() []field {
	var pks []field
	for _, f := range m.Fields {
		if f.PK {
			pks = append(pks, f)
		}
	}
	return pks
}

// fieldByColumn looks a field up by its column name.
func (m *model) fieldByColumn(col string) (field, bool) {
	for _, f := range m.Fields {
		if f.Column == col {
			return f, true
		}
	}
	return field{}, false
}

// newInstance builds a new entity from a column-to-value mapping. Unknown
// columns are rejected; missing columns keep their zero value, the same as
// the underlying constructor would.
func (m *model) newInstance(fields map[string]any) (any, error) {
	ptr := reflect.New(m.Type)
	elem := ptr.Elem()
	for col, val := range fields {
		f, ok := m.fieldByColumn(col)
		if !ok {
			return nil, fmt.Errorf("relmap: %s has no column %q", m.Name, col)
		}
		fv := elem.Field(f.Index)
		rv := reflect.ValueOf(val)
		if !rv.IsValid() {
			continue
		}
		if !rv.Type().AssignableTo(fv.Type()) {
			if rv.Type().ConvertibleTo(fv.Type()) {
				rv = rv.Convert(fv.Type())
			} else {
				return nil, fmt.Errorf("relmap: cannot assign %T to %s.%s", val, m.Name, f.Column)
			}
		}
		fv.Set(rv)
	}
	return ptr.Interface(), nil
}

// values extracts the column values of an entity in declaration order.
func (m *model) values(entity any) []any {
	ev := reflect.ValueOf(entity)
	for ev.Kind() == reflect.Ptr {
		ev = ev.Elem()
	}
	vals := make([]any, len(m.Fields))
	for i, f := range m.Fields {
		vals[i] = ev.Field(f.Index).Interface()
	}
	return vals
}

// keyOf extracts the primary-key values of an entity in key order.
func (m *model) keyOf(entity any) []any {
	ev := reflect.ValueOf(entity)
	for ev.Kind() == reflect.Ptr {
		ev = ev.Elem()
	}
	pks := m.pkFields()
	key := make([]any, len(pks))
	for i, f := range pks {
		key[i] = ev.Field(f.Index).Interface()
	}
	return key
}

// fromValues builds an entity from scanned column values in declaration
// order, converting driver types to the field types.
func (m *model) fromValues(vals []any) (any, error) {
	if len(vals) < len(m.Fields) {
		return nil, fmt.Errorf("relmap: %s: got %d values, want %d", m.Name, len(vals), len(m.Fields))
	}
	ptr := reflect.New(m.Type)
	elem := ptr.Elem()
	for i, f := range m.Fields {
		if err := assignValue(elem.Field(f.Index), vals[i]); err != nil {
			return nil, fmt.Errorf("relmap: %s.%s: %w", m.Name, f.Column, err)
		}
	}
	return ptr.Interface(), nil
}

// assignValue sets a struct field from a scanned driver value, converting
// between compatible numeric kinds and parsing timestamp strings.
func assignValue(fv reflect.Value, val any) error {
	if val == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}
	if s, ok := val.(string); ok && fv.Type() == reflect.TypeOf(time.Time{}) {
		layouts := []string{
			TimeLayout,
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05-07:00",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				fv.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return fmt.Errorf("cannot parse %q as time", s)
	}
	if n, ok := val.(int64); ok && fv.Kind() == reflect.Bool {
		fv.SetBool(n != 0)
		return nil
	}
	if rv.Kind() != reflect.String && rv.Type().ConvertibleTo(fv.Type()) {
		fv.Set(rv.Convert(fv.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T", val)
}

// snakeCase converts a Go identifier to its column/table form, e.g.
// "UserProfile" -> "user_profile".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 && !unicode.IsUpper(rune(name[i-1])) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
