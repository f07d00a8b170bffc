package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Soft-delete expired facts",
		Run:   runPurge,
	}

	RootCmd.AddCommand(cmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	_, _, s := mustOpen()
	defer s.Close()

	n, err := s.PurgeExpired(cmd.Context())
	if err != nil {
		exitErr("purge", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"purged":%d}`+"\n", n)
}
