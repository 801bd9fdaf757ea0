package relmap

import (
	"errors"
	"fmt"
)

// ErrNotFound is reported by Session.One when a query matches no rows.
var ErrNotFound = errors.New("relmap: no rows matched")

// ErrAmbiguous is reported by Session.One when a query matches more than one row.
var ErrAmbiguous = errors.New("relmap: more than one row matched")

// ErrUnexecutedQuery is reported when Normalize receives a *Query that was
// never executed.
var ErrUnexecutedQuery = errors.New("relmap: query has not been executed")

// ErrNestedTransaction is returned when Transaction is called while another
// transaction is already active on the session.
var ErrNestedTransaction = errors.New("relmap: transaction already active")

// ErrSessionClosed is returned by any session operation after Close.
var ErrSessionClosed = errors.New("relmap: session is closed")

// ErrNotRegistered is returned when an operation references a model that was
// never registered with the connection.
var ErrNotRegistered = errors.New("relmap: model not registered")

// ConnError reports a failure to build or open a connection. It is fatal to
// Conn construction.
type ConnError struct {
	Stage string // "config", "open", "reflect"
	Err   error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("relmap: connection %s failed: %v", e.Stage, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// SchemaError reports that schema reflection could not resolve a database
// object: an unknown schema or table, or a table without a primary key.
type SchemaError struct {
	Object string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("relmap: schema reflection failed for %q: %v", e.Object, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
