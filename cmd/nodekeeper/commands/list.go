package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nodekeeper/nodekeeper/pkg/pack"
)

func newListCommand() *cobra.Command {
	var showCorrupt bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long: `List every installed package with its reported version and state.

Each package appears once. An enabled copy wins over parked copies;
among parked copies the CNR release wins over nightly snapshots.
--corrupt additionally lists copies whose tracking marker could not
be read.`,
		Example: `  # Human-readable table
  nodekeeper list

  # Machine-readable
  nodekeeper list --json

  # Include unreadable copies
  nodekeeper list --corrupt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summaries, err := app.manager.ListInstalled(ctx)
			if err != nil {
				return err
			}

			var corrupt []pack.Copy
			if showCorrupt {
				corrupt, err = app.manager.ListCorrupt(ctx)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				out := struct {
					Packages []pack.Summary `json:"packages"`
					Corrupt  []pack.Copy    `json:"corrupt,omitempty"`
				}{Packages: summaries, Corrupt: corrupt}
				return printJSON(out)
			}

			if len(summaries) == 0 {
				fmt.Println("No packages installed")
			} else {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tKIND\tVERSION\tSTATE")
				for _, s := range summaries {
					state := "disabled"
					if s.Enabled {
						state = "enabled"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Kind, s.Version, state)
				}
				w.Flush()
			}

			if len(corrupt) > 0 {
				fmt.Printf("\n%d corrupt copies:\n", len(corrupt))
				for _, c := range corrupt {
					fmt.Printf("  %s (%s)\n", c.Name, c.Path)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showCorrupt, "corrupt", false, "also list copies with unreadable tracking markers")

	return cmd
}
