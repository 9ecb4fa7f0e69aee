package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/cuemby/nomad-bootstrap/pkg/settings"
	"github.com/cuemby/nomad-bootstrap/pkg/storage"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent install and run on this node",
	Args:  noArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(cmd)
		if err != nil || store == nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		for _, kind := range []storage.RecordKind{storage.KindInstall, storage.KindRun} {
			rec, err := store.LatestRecord(kind)
			if err != nil {
				return fmt.Errorf("failed to read latest %s: %w", kind, err)
			}
			if rec == nil {
				fmt.Fprintf(out, "Last %s: never\n\n", kind)
				continue
			}
			fmt.Fprintf(out, "Last %s:\n", kind)
			printRecord(out, rec)
			fmt.Fprintln(out)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List recorded installs and runs, or show one record",
	Long: `List the installs and runs recorded in the state directory, newest last.

With an id, print every field of that record.

Examples:
  nomad-bootstrap history
  nomad-bootstrap history --kind install --limit 5
  nomad-bootstrap history 01928a7e-3c1b-7f00-9d2e-6b1c0a4f5e21`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return types.Errorf(types.KindInput, "parse arguments", "expected at most one record id, got %d arguments", len(args))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds, err := historyKinds(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit < 0 {
			return types.Errorf(types.KindInput, "history", "--limit must not be negative")
		}

		store, err := openLedger(cmd)
		if err != nil || store == nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			return showRecord(cmd.OutOrStdout(), store, kinds, args[0])
		}

		var records []*storage.Record
		for _, kind := range kinds {
			recs, err := store.ListRecords(kind)
			if err != nil {
				return fmt.Errorf("failed to list %s records: %w", kind, err)
			}
			records = append(records, recs...)
		}
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].StartedAt.Before(records[j].StartedAt)
		})
		if limit > 0 && len(records) > limit {
			records = records[len(records)-limit:]
		}
		return renderHistory(cmd.OutOrStdout(), records)
	},
}

func init() {
	historyCmd.Flags().String("kind", "", "Only show records of this kind (install or run)")
	historyCmd.Flags().Int("limit", 0, "Show only the newest N records (0 shows all)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

// openLedger opens the ledger read-only. A node that never recorded
// anything yields a nil store and a notice on stdout.
func openLedger(cmd *cobra.Command) (*storage.BoltStore, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	g := settings.LoadGlobal(v)

	store, err := storage.OpenReadOnly(g.StateDir)
	if errors.Is(err, storage.ErrNoLedger) {
		fmt.Fprintf(cmd.OutOrStdout(), "No bootstrap has been recorded in %s\n", g.StateDir)
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.KindEnvironment, "open ledger", err)
	}
	return store, nil
}

func historyKinds(cmd *cobra.Command) ([]storage.RecordKind, error) {
	kind, _ := cmd.Flags().GetString("kind")
	switch storage.RecordKind(kind) {
	case "":
		return []storage.RecordKind{storage.KindInstall, storage.KindRun}, nil
	case storage.KindInstall, storage.KindRun:
		return []storage.RecordKind{storage.RecordKind(kind)}, nil
	default:
		return nil, types.Errorf(types.KindInput, "history", "unknown record kind %q (want install or run)", kind)
	}
}

func showRecord(out io.Writer, store storage.Store, kinds []storage.RecordKind, id string) error {
	for _, kind := range kinds {
		rec, err := store.GetRecord(kind, id)
		if err == nil {
			printRecord(out, rec)
			return nil
		}
	}
	return types.Errorf(types.KindInput, "history", "no record with id %s", id)
}

func printRecord(out io.Writer, rec *storage.Record) {
	fmt.Fprintf(out, "  ID: %s\n", rec.ID)
	fmt.Fprintf(out, "  Kind: %s\n", rec.Kind)
	fmt.Fprintf(out, "  Started: %s\n", rec.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  Duration: %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "  Outcome: %s\n", rec.Outcome)
	if rec.Error != "" {
		fmt.Fprintf(out, "  Error: %s (%s)\n", rec.Error, rec.ErrorKind)
	}
	fmt.Fprintf(out, "  Changed: %t\n", rec.Changed)

	switch rec.Kind {
	case storage.KindInstall:
		if rec.Version != "" {
			fmt.Fprintf(out, "  Version: %s\n", rec.Version)
		}
		if rec.DownloadURL != "" {
			fmt.Fprintf(out, "  Download URL: %s\n", rec.DownloadURL)
		}
		if rec.Attempts > 0 {
			fmt.Fprintf(out, "  Download attempts: %d\n", rec.Attempts)
		}
	case storage.KindRun:
		fmt.Fprintf(out, "  Roles: %s\n", rec.Roles)
		if rec.InstanceID != "" {
			fmt.Fprintf(out, "  Instance: %s\n", rec.InstanceID)
		}
		if rec.ConfigPath != "" {
			fmt.Fprintf(out, "  Config: %s\n", rec.ConfigPath)
		}
	}
}

func renderHistory(out io.Writer, records []*storage.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "No records found")
		return nil
	}

	rows := [][]string{{"ID", "KIND", "STARTED", "OUTCOME", "CHANGED", "DETAIL"}}
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			string(rec.Kind),
			rec.StartedAt.Format(time.RFC3339),
			rec.Outcome,
			strconv.FormatBool(rec.Changed),
			recordDetail(rec),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader(true).WithData(rows).Srender()
	if err != nil {
		return fmt.Errorf("failed to render history: %w", err)
	}
	fmt.Fprintln(out, table)
	return nil
}

func recordDetail(rec *storage.Record) string {
	if rec.Error != "" {
		return rec.ErrorKind
	}
	if rec.Kind == storage.KindInstall {
		if rec.Version != "" {
			return rec.Version
		}
		return rec.DownloadURL
	}
	return rec.Roles
}
