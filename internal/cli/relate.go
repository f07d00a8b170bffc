package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-council/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "relate [from-id] [to-id]",
		Short: "Create, remove or show relations between facts",
		Long:  "Relate two fact IDs. With --show, list every relation touching the first ID.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runRelate,
	}

	cmd.Flags().StringP("rel", "r", "relates_to", "Relation: derived_from, relates_to, contradicts, refines")
	cmd.Flags().Bool("rm", false, "Remove the relation")
	cmd.Flags().Bool("show", false, "List relations of the first ID")

	RootCmd.AddCommand(cmd)
}

func runRelate(cmd *cobra.Command, args []string) {
	rel, _ := cmd.Flags().GetString("rel")
	rm, _ := cmd.Flags().GetBool("rm")
	show, _ := cmd.Flags().GetBool("show")

	_, _, s := mustOpen()
	defer s.Close()

	if show {
		links, err := s.Links(cmd.Context(), args[0])
		if err != nil {
			exitErr("relate", err)
		}
		if links == nil {
			links = []store.Link{}
		}
		printJSON(links)
		return
	}

	if len(args) != 2 {
		exitErr("relate", fmt.Errorf("from-id and to-id are required"))
	}

	if rm {
		if err := s.Unlink(cmd.Context(), args[0], args[1], rel); err != nil {
			exitErr("relate", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"removed":true,"from_id":%q,"to_id":%q,"rel":%q}`+"\n", args[0], args[1], rel)
		return
	}

	link, err := s.Link(cmd.Context(), args[0], args[1], rel)
	if err != nil {
		exitErr("relate", err)
	}
	printJSON(link)
}
