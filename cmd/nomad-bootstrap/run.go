package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuemby/nomad-bootstrap/pkg/bootstrap"
	"github.com/cuemby/nomad-bootstrap/pkg/health"
	"github.com/cuemby/nomad-bootstrap/pkg/settings"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Configure and start the Nomad agent",
	Long: `Configure and start the Nomad agent on this instance.

The instance's private IP, ID, availability zone and region are read from
the EC2 metadata service and combined with the flags below into the agent
configuration. A systemd unit is written and the agent is restarted.

Examples:
  # Three-server cluster discovered through instance tags
  nomad-bootstrap run --server --num-servers 3 \
    --cluster-tag-key Cluster --cluster-tag-value prod

  # Client with Vault integration and extra agent environment
  nomad-bootstrap run --client --vault-address https://vault.service.consul:8200 \
    --environment NOMAD_CPU_TOTAL_COMPUTE=4000

  # Configuration is managed elsewhere, only install and start the unit
  nomad-bootstrap run --skip-config`,
	Args: noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd)
		if err != nil {
			return err
		}
		s, err := settings.LoadRun(v, cmd.Flags())
		if err != nil {
			return err
		}
		if err := bootstrap.ValidateRun(s); err != nil {
			return err
		}

		runner, cleanup := newRunner(cmd, v, true)
		defer cleanup()
		return runner.Run(cmd.Context(), s)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the agent configuration and unit without applying them",
	Long: `Print the agent configuration and systemd unit that 'run' would write.

Nothing on the host is modified and the agent is not restarted. Metadata is
still resolved, so use --metadata-endpoint when running off EC2.`,
	Args: noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd)
		if err != nil {
			return err
		}
		s, err := settings.LoadRun(v, cmd.Flags())
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("output")

		runner, cleanup := newRunner(cmd, v, false)
		defer cleanup()
		return runner.Render(cmd.Context(), s, format)
	},
}

// addRunFlags registers the flags shared by run and render
func addRunFlags(fs *pflag.FlagSet) {
	fs.Bool(settings.FlagServer, false, "Run the agent in server mode")
	fs.Bool(settings.FlagClient, false, "Run the agent in client mode")
	fs.Int(settings.FlagNumServers, 0, "Expected number of servers (required with --server)")
	fs.String(settings.FlagClusterTagKey, "", "EC2 tag key used to discover peers")
	fs.String(settings.FlagClusterTagValue, "", "EC2 tag value used to discover peers")
	fs.String(settings.FlagDatacenter, "", "Datacenter name (default: the availability zone)")
	fs.String(settings.FlagConfigDir, "", "Agent configuration directory (default: /opt/nomad/config)")
	fs.String(settings.FlagDataDir, "", "Agent data directory (default: /opt/nomad/data)")
	fs.String(settings.FlagBinDir, "", "Directory holding the nomad binary (default: /opt/nomad/bin)")
	fs.String(settings.FlagSystemdStdout, "", "systemd StandardOutput for the agent")
	fs.String(settings.FlagSystemdStderr, "", "systemd StandardError for the agent")
	fs.String(settings.FlagUser, "", "User the agent runs as (default: root for clients, nomad otherwise)")
	fs.StringArray(settings.FlagEnvironment, nil, "KEY=VALUE added to the agent environment (repeatable)")
	fs.String(settings.FlagEnvironmentFile, "", "Dotenv file merged into the agent environment")
	fs.String(settings.FlagVaultAddress, "", "Enable the Vault integration against this address")
	fs.Bool(settings.FlagSkipConfig, false, "Do not generate the agent configuration")
	fs.String(settings.FlagMetadataURL, "", "Override the instance metadata endpoint")
	fs.Bool(settings.FlagSkipConsulCheck, false, "Skip the local Consul agent preflight")
	fs.Bool(settings.FlagWaitHealthy, false, "Wait for the agent to report healthy after restart")
	fs.Duration(settings.FlagWaitTimeout, health.DefaultWaitConfig().Timeout, "How long --wait-healthy waits")
}

func init() {
	addRunFlags(runCmd.Flags())
	addRunFlags(renderCmd.Flags())
	renderCmd.Flags().StringP("output", "o", "json", "Configuration format (json or yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(renderCmd)
}
