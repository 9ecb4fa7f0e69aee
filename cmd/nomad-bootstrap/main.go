package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuemby/nomad-bootstrap/pkg/bootstrap"
	"github.com/cuemby/nomad-bootstrap/pkg/log"
	"github.com/cuemby/nomad-bootstrap/pkg/settings"
	"github.com/cuemby/nomad-bootstrap/pkg/storage"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, err := rootCmd.ExecuteContextC(ctx)
	stop()
	if err != nil {
		log.Logger.Error().Err(err).Str("kind", string(types.KindOf(err))).Msg("nomad-bootstrap failed")
		if isUsageError(err) {
			fmt.Fprintln(os.Stderr)
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nomad-bootstrap",
	Short: "Install, configure and start a Nomad agent on an EC2 instance",
	Long: `nomad-bootstrap prepares a cloud instance to join a Nomad cluster.

At image build time, 'install' lays down the Nomad binary, its run-as user
and directory tree. At boot, 'run' reads the instance's identity from the
metadata service, writes the agent configuration and systemd unit, and
restarts the agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd)
		if err != nil {
			return err
		}
		g := settings.LoadGlobal(v)
		log.Init(log.Config{
			Level:      log.ParseLevel(g.LogLevel),
			JSONOutput: g.LogJSON,
		})
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  noArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "nomad-bootstrap version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().String(settings.FlagLogLevel, "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool(settings.FlagLogJSON, false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String(settings.FlagConfig, "", "YAML settings file")
	rootCmd.PersistentFlags().String(settings.FlagStateDir, settings.DefaultStateDir, "Directory holding the bootstrap ledger")
	rootCmd.PersistentFlags().String(settings.FlagMetricsTextfile, "", "Write Prometheus metrics to this file for the node exporter")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return types.NewError(types.KindInput, "parse flags", err)
	})

	rootCmd.AddCommand(versionCmd)
}

// isUsageError reports errors that warrant printing usage
func isUsageError(err error) bool {
	return types.IsKind(err, types.KindInput) || strings.HasPrefix(err.Error(), "unknown command")
}

// noArgs rejects positional arguments as an input error
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return types.Errorf(types.KindInput, "parse arguments", "unexpected arguments: %s", strings.Join(args, " "))
	}
	return nil
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	configFile, _ := cmd.Flags().GetString(settings.FlagConfig)
	return settings.New(cmd.Flags(), configFile)
}

// newRunner wires the runner to the command's output. With persist set it
// also opens the ledger and the metrics textfile; callers validate input
// first so a rejected invocation leaves the state directory untouched.
// The returned cleanup closes the ledger.
func newRunner(cmd *cobra.Command, v *viper.Viper, persist bool) (*bootstrap.Runner, func()) {
	opts := []bootstrap.Option{bootstrap.WithOutput(cmd.OutOrStdout())}
	cleanup := func() {}
	if !persist {
		return bootstrap.New(opts...), cleanup
	}

	g := settings.LoadGlobal(v)
	opts = append(opts, bootstrap.WithMetricsTextfile(g.MetricsTextfile))

	logger := log.WithComponent("storage")
	store, err := storage.NewBoltStore(g.StateDir)
	if err != nil {
		logger.Warn().Err(err).Str("state_dir", g.StateDir).Msg("Ledger unavailable, continuing without it")
	} else {
		opts = append(opts, bootstrap.WithLedger(store))
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close ledger")
			}
		}
	}

	return bootstrap.New(opts...), cleanup
}
