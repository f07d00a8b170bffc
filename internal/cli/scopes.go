package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List scope instances with active fact counts",
		Run:   runScopes,
	}

	RootCmd.AddCommand(cmd)
}

func runScopes(cmd *cobra.Command, args []string) {
	_, _, s := mustOpen()
	defer s.Close()

	rows, err := s.Scopes(cmd.Context())
	if err != nil {
		exitErr("list scopes", err)
	}
	printJSON(rows)
}
