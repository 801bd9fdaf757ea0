// Package typeconv maps Go field types to SQL column types per dialect.
package typeconv

import (
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// SQLType returns the column type used when declaring a table for the given
// Go type under the given dialect.
func SQLType(t reflect.Type, dialect string) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return "TIMESTAMP"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch dialect {
		case "postgres", "postgresql":
			return "BIGINT"
		default:
			return "INTEGER"
		}
	case reflect.Float32, reflect.Float64:
		switch dialect {
		case "postgres", "postgresql":
			return "DOUBLE PRECISION"
		default:
			return "REAL"
		}
	case reflect.Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// CanonicalType normalizes catalog-reported types for comparison across
// dialects, e.g. INT4 and INTEGER compare equal.
func CanonicalType(typ string) string {
	t := strings.ToUpper(typ)
	switch t {
	case "INT", "INT4", "INT8", "INTEGER", "BIGINT":
		return "INTEGER"
	case "BOOL", "BOOLEAN":
		return "BOOLEAN"
	case "VARCHAR", "TEXT":
		return "TEXT"
	case "REAL", "FLOAT4", "FLOAT8", "DOUBLE PRECISION":
		return "REAL"
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME":
		return "TIMESTAMP"
	case "UUID":
		return "UUID"
	default:
		return t
	}
}
