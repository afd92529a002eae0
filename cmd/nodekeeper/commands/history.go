package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodekeeper/nodekeeper/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		pkgName string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the operation journal",
		Long: `Show recent operations from the journal, newest first.

Every install, enable, disable, uninstall and update is recorded with
its outcome, including failures.`,
		Example: `  # Last 50 operations
  nodekeeper history

  # Operations on one package
  nodekeeper history --package comfyui-impact-pack --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := app.manager.History(ctx, pkgName, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(records)
			}

			if len(records) == 0 {
				fmt.Println("No operations recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOPERATION\tPACKAGE\tVERSION\tSTATUS\tDURATION")
			for _, r := range records {
				status := string(r.Status)
				if r.Status == stores.OperationStatusFailed && r.Error != nil {
					status = fmt.Sprintf("failed: %s", *r.Error)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Operation, r.Package, r.Version, status, r.Duration.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&pkgName, "package", "", "only show operations on this package")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")

	return cmd
}
