package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize catalog storage",
		Long:  "Create the configuration and data directories and the empty snapshot files.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The store was opened by PersistentPreRunE, which creates everything.
			fmt.Fprintf(a.stdout, "Catalog initialized at %s\n", a.dataDir)
			return nil
		},
	}
}
