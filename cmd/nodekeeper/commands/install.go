package commands

import (
	"github.com/spf13/cobra"
)

func newInstallCommand() *cobra.Command {
	var (
		version string
		nightly bool
		repoURL string
	)

	cmd := &cobra.Command{
		Use:   "install NAME",
		Short: "Install or upgrade a node package",
		Long: `Install a node package from the registry, or a nightly snapshot
from its git repository.

A registry install places the requested (or latest) release in the
packages directory and enables it. If a different copy of the package
is currently enabled it is parked in the disabled area first, so the
switch is non-destructive.

With --nightly the package is cloned from git instead. The repository
URL is taken from the registry unless --repo overrides it.`,
		Example: `  # Install the latest registry release
  nodekeeper install comfyui-impact-pack

  # Pin a specific version
  nodekeeper install comfyui-impact-pack --version 1.2.0

  # Install a nightly snapshot
  nodekeeper install comfyui-impact-pack --nightly

  # Nightly from an explicit repository
  nodekeeper install my-pack --nightly --repo https://github.com/me/my-pack.git`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, cleanup, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			name := args[0]
			if nightly || repoURL != "" {
				summary, err := app.manager.InstallNightly(ctx, name, repoURL)
				if err != nil {
					return err
				}
				return printSummary("Installed", summary)
			}

			summary, err := app.manager.InstallOrUpgrade(ctx, name, version)
			if err != nil {
				return err
			}
			return printSummary("Installed", summary)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "registry version to install (default: latest)")
	cmd.Flags().BoolVar(&nightly, "nightly", false, "install a nightly git snapshot instead of a registry release")
	cmd.Flags().StringVar(&repoURL, "repo", "", "git repository URL for --nightly (default: from the registry)")

	return cmd
}
