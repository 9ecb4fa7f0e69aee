package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/nomad-bootstrap/pkg/settings"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the Nomad binary, user and directories",
	Long: `Install Nomad for use at boot by 'run'.

Installs curl, unzip and jq with apt-get or yum, creates the run-as user,
creates the install tree (bin, config, data, tls/ca), downloads and unpacks
the release and links it into the system binary directory. This binary is
copied next to nomad so the image can call it at boot.

Exactly one of --version or --download-url is needed; when both are given
the URL wins. URLs may be http(s):// or s3://bucket/key.

Examples:
  nomad-bootstrap install --version 1.6.1
  nomad-bootstrap install --download-url s3://artifacts/nomad_1.6.1_linux_amd64.zip`,
	Args: noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd)
		if err != nil {
			return err
		}
		plan := settings.LoadInstall(v)
		if err := plan.WithDefaults().Validate(); err != nil {
			return err
		}

		runner, cleanup := newRunner(cmd, v, true)
		defer cleanup()
		_, err = runner.Install(cmd.Context(), plan)
		return err
	},
}

func init() {
	installCmd.Flags().String(settings.FlagVersion, "", "Nomad version to install, e.g. 1.6.1")
	installCmd.Flags().String(settings.FlagDownloadURL, "", "Explicit release archive URL")
	installCmd.Flags().String(settings.FlagPath, types.DefaultInstallRoot, "Install root")
	installCmd.Flags().String(settings.FlagUser, types.DefaultUser, "User that owns the install")
	installCmd.Flags().String(settings.FlagChecksum, "", "Expected SHA-256 of the archive")
	installCmd.Flags().String(settings.FlagSystemBinDir, types.DefaultSystemBinDir, "Directory for the nomad symlink")

	rootCmd.AddCommand(installCmd)
}
