package cli

import (
	"github.com/spf13/cobra"
)

func version() string {
	return "v0.1.0"
}

// NewVersionCmd builds the `version` command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version())
		},
	}
}

// NewRootCmd builds the top-level `relmap` command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relmap",
		Short: "Inspect and query relational databases",
		Long: `relmap wraps a database connection and exposes schema introspection
and raw statement execution. Connection parameters are read from
RELMAP_* environment variables (a .env file is picked up automatically).`,
	}
	root.AddCommand(NewInspectCmd())
	root.AddCommand(NewExecCmd())
	root.AddCommand(NewVersionCmd())
	return root
}
