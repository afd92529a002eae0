package commands

import (
	"github.com/spf13/cobra"
)

func newUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Update the enabled copy of a package",
		Long: `Bring the enabled copy of a package up to date.

For a CNR release this resolves the latest registry version and
upgrades in place, parking nothing when the package is already
current. For a nightly checkout it pulls the tracked branch.`,
		Example: `  nodekeeper update comfyui-impact-pack`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := app.manager.Update(ctx, args[0])
			if err != nil {
				return err
			}
			return printSummary("Updated", summary)
		},
	}

	return cmd
}
