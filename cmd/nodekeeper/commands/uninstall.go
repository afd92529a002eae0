package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall NAME",
		Short: "Remove every copy of a package",
		Long: `Remove a package entirely: the enabled copy and every parked copy,
CNR and nightly alike. This is the only destructive operation;
everything else parks copies instead of deleting them.`,
		Example: `  nodekeeper uninstall comfyui-impact-pack`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := app.manager.Uninstall(ctx, args[0]); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]string{"name": args[0], "status": "uninstalled"})
			}
			fmt.Printf("Uninstalled %s\n", args[0])
			return nil
		},
	}

	return cmd
}
