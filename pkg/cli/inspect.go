package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relmap/relmap"
)

func openConn() (*relmap.Conn, error) {
	cfg, err := relmap.FromEnv()
	if err != nil {
		return nil, err
	}
	return relmap.Open(cfg)
}

// NewInspectCmd builds the `inspect` command group: schemas, tables, columns.
func NewInspectCmd() *cobra.Command {
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Introspect schemas, tables and columns",
	}

	inspect.AddCommand(&cobra.Command{
		Use:   "schemas",
		Short: "List schema names",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openConn()
			if err != nil {
				return err
			}
			defer conn.Close()
			names, err := conn.Inspector().ListSchemas(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				cmd.Println(n)
			}
			return nil
		},
	})

	var schema string
	tables := &cobra.Command{
		Use:   "tables",
		Short: "List tables in a schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openConn()
			if err != nil {
				return err
			}
			defer conn.Close()
			names, err := conn.Inspector().ListTables(cmd.Context(), schema)
			if err != nil {
				return err
			}
			for _, n := range names {
				cmd.Println(n)
			}
			return nil
		},
	}
	tables.Flags().StringVar(&schema, "schema", "", "schema to list (default: dialect default)")
	inspect.AddCommand(tables)

	columns := &cobra.Command{
		Use:   "columns <table>",
		Short: "Show column metadata of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openConn()
			if err != nil {
				return err
			}
			defer conn.Close()
			tbl, ok := conn.Tables()[args[0]]
			if !ok {
				return fmt.Errorf("unknown table %q", args[0])
			}
			for _, c := range tbl.Columns {
				null := "NOT NULL"
				if c.Nullable {
					null = "NULL"
				}
				def := ""
				if c.Default != nil {
					def = " DEFAULT " + *c.Default
				}
				cmd.Printf("%s\t%s\t%s%s\n", c.Name, c.Type, null, def)
			}
			return nil
		},
	}
	inspect.AddCommand(columns)

	return inspect
}

// NewExecCmd builds the `exec` command for raw statements.
func NewExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <statement>",
		Short: "Execute a raw statement and print the resulting rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openConn()
			if err != nil {
				return err
			}
			defer conn.Close()
			rows, err := conn.FetchAll(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, row := range rows {
				m, err := relmap.Normalize(row)
				if err != nil {
					return err
				}
				cmd.Printf("%v\n", m)
			}
			return nil
		},
	}
}
