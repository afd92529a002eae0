package commands

import (
	"github.com/spf13/cobra"
)

func newEnableCommand() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "enable NAME",
		Short: "Enable a disabled copy of a package",
		Long: `Enable a parked copy of a package.

Without --at the best disabled copy is chosen: the CNR release if one
is parked, otherwise the most recent nightly snapshot. An enabled copy
of the same package is parked first.

--at selects a specific copy: a semantic version picks the parked CNR
release at that version, "nightly" picks the newest nightly snapshot,
and a full slot name (for example "my-pack@nightly-2") picks that
exact copy.`,
		Example: `  # Enable whatever copy is parked
  nodekeeper enable comfyui-impact-pack

  # Enable the parked 1.0.2 release
  nodekeeper enable comfyui-impact-pack --at 1.0.2

  # Enable a specific nightly snapshot
  nodekeeper enable comfyui-impact-pack --at comfyui-impact-pack@nightly-2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := app.manager.Enable(ctx, args[0], at)
			if err != nil {
				return err
			}
			return printSummary("Enabled", summary)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "version, \"nightly\", or slot name to enable")

	return cmd
}
