// Command trzadmin is the operator's tool for the reports database.
package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/ts4z/trz/config"
	"github.com/ts4z/trz/logging"
	"github.com/ts4z/trz/model"
)

// withEnv adapts an action to cobra, opening the database around it.
func withEnv(action func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return action(ctx, e, args)
	}
}

func main() {
	var (
		filters   model.ReportFilters
		yes       bool
		table     bool
		out, in   string
		olderThan string
		sFlags    settingsFlags
		logLevel  string
	)

	rootCmd := &cobra.Command{
		Short:         "trz administration tool",
		Use:           "trzadmin",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.Init()
			level := logLevel
			if level == "" {
				level = config.LogLevel()
			}
			logger := logging.Setup(level, "console")
			cmd.SetContext(logger.WithContext(cmd.Context()))
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default from config)")

	dbCmd := &cobra.Command{Use: "db", Short: "Manage the database"}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create tables and triggers if they don't exist",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return dbInit(ctx, e)
		}),
	})

	reportCmd := &cobra.Command{Use: "report", Short: "Manage saved reports"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return listReports(ctx, e, os.Stdout, filters)
		}),
	}
	listCmd.Flags().StringVar(&filters.DateFrom, "from", "", "Only reports on or after this day (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&filters.DateTo, "to", "", "Only reports on or before this day (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&filters.Tournament, "tournament", "", "Only reports with this tournament label")
	listCmd.Flags().StringVar(&filters.PlayerName, "player", "", "Only reports with a matching player")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			return showReport(ctx, e, os.Stdout, args[0], table)
		}),
	}
	showCmd.Flags().BoolVar(&table, "table", false, "Print standings instead of JSON")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one report",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			return deleteReport(ctx, e, args[0])
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every report",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return clearReports(ctx, e, yes)
		}),
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "Don't ask for confirmation")

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Write every report as JSON",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return backupReports(ctx, e, out)
		}),
	}
	backupCmd.Flags().StringVar(&out, "out", "", "File to write (default stdout)")

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Load reports from a backup, overwriting reports with the same id",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return restoreReports(ctx, e, in)
		}),
	}
	restoreCmd.Flags().StringVar(&in, "in", "", "File to read (default stdin)")

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete reports older than an age",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return purgeReports(ctx, e, olderThan)
		}),
	}
	purgeCmd.Flags().StringVar(&olderThan, "older-than", "", "Age, e.g. 90d or 36h")
	purgeCmd.MarkFlagRequired("older-than")

	relabelCmd := &cobra.Command{
		Use:   "relabel <id> <label>",
		Short: "Change a report's tournament label; an empty label clears it",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(ctx context.Context, e *env, args []string) error {
			return relabelReport(ctx, e, args[0], args[1])
		}),
	}

	reportCmd.AddCommand(listCmd, showCmd, deleteCmd, clearCmd, backupCmd, restoreCmd, purgeCmd, relabelCmd)

	settingsCmd := &cobra.Command{Use: "settings", Short: "Manage the shared settings"}
	settingsCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored and effective settings",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return showSettings(ctx, e, os.Stdout)
		}),
	})
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, e *env, _ []string) error {
			return setSettings(ctx, e, &sFlags)
		}),
	}
	setCmd.Flags().StringVar(&sFlags.EntryFee, "entry-fee", "", "Entry fee per slot")
	setCmd.Flags().StringVar(&sFlags.Mode, "mode", "", "Adjustment mode, auto or fixed")
	setCmd.Flags().StringVar(&sFlags.FixedProfit, "fixed-profit", "", "Organizer profit in fixed mode")
	setCmd.Flags().StringVar(&sFlags.KillPrize, "kill-prize", "", "Prize per kill")
	setCmd.Flags().StringArrayVar(&sFlags.Prizes, "prize", nil, "Placement prize as rank=amount; rank=- removes it (repeatable)")
	settingsCmd.AddCommand(setCmd)

	rootCmd.AddCommand(dbCmd, reportCmd, settingsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
