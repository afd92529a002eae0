package commands

import (
	"github.com/spf13/cobra"
)

func newDisableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disable NAME",
		Short: "Disable the enabled copy of a package",
		Long: `Park the enabled copy of a package in the disabled area.

The copy's files are moved, not deleted; it can be re-activated with
'enable' at any time. CNR releases park under a version slot, nightly
checkouts under a fresh nightly slot.`,
		Example: `  nodekeeper disable comfyui-impact-pack`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := app.manager.Disable(ctx, args[0])
			if err != nil {
				return err
			}
			return printSummary("Disabled", summary)
		},
	}

	return cmd
}
