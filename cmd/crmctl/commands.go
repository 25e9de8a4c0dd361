package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/database"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/finance"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(migrateCmd, backupCmd, rootDirCmd, reportCmd, documentsCmd)

	migrateCmd.AddCommand(migrateStatusCmd, migrateUpCmd)

	rootDirCmd.AddCommand(rootShowCmd, rootMoveCmd)
	rootMoveCmd.Flags().String("to", "", "New storage root")
	rootMoveCmd.Flags().String("mode", string(domain.RootChangeCopy), "copy keeps the old tree, move deletes it")
	_ = rootMoveCmd.MarkFlagRequired("to")

	reportCmd.Flags().String("preset", "", "q1..q4, this_year, year_to_date, all_time, custom or quarter; empty is this_year, or quarter when --quarter is set")
	reportCmd.Flags().String("year", "", "Fiscal year")
	reportCmd.Flags().String("quarter", "", "Quarter 1-4 for preset quarter")
	reportCmd.Flags().String("start", "", "First day of a custom period (2006-01-02)")
	reportCmd.Flags().String("end", "", "Last day of a custom period (2006-01-02)")

	documentsCmd.AddCommand(documentsListCmd)
	documentsListCmd.Flags().String("type", "", "offer or invoice; empty lists both")
}

// ─── migrate ────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Inspect or apply database migrations",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the database version and pending migrations without writing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		root, err := service.ResolveRoot(&cfg.Storage)
		if err != nil {
			return err
		}
		st, err := database.Inspect(root)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Migrate the database to the current version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database at version %s\n", a.Backend.Workspace().DB.Snapshot().Version)
		return nil
	},
}

// ─── backup ─────────────────────────────────────────────────────────────────

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a snapshot of the storage root now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp()
		if err != nil {
			return err
		}
		if a.Backups == nil {
			return errors.New("backups are disabled; set backup.enabled")
		}
		result, err := a.Backups.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

// ─── root ───────────────────────────────────────────────────────────────────

var rootDirCmd = &cobra.Command{
	Use:   "root",
	Short: "Show or change the storage root",
}

var rootShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active storage root",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := openApp()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a.Root.Info(cmd.Context()))
	},
}

var rootMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "Copy the data tree to a new root and switch to it",
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		mode, _ := cmd.Flags().GetString("mode")

		a, log, err := openApp()
		if err != nil {
			return err
		}
		info, err := a.Root.ChangeRoot(cmd.Context(), &domain.ChangeRootRequest{
			Root: to,
			Mode: domain.RootChangeMode(mode),
		})
		if err != nil {
			return err
		}
		log.Info("Storage root changed", zap.String("root", info.Root))
		return printJSON(cmd.OutOrStdout(), info)
	},
}

// ─── report ─────────────────────────────────────────────────────────────────

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the financial overview of a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		flag := func(name string) string {
			v, _ := cmd.Flags().GetString(name)
			return v
		}
		req, err := finance.ParsePeriodRequest(flag("preset"), flag("year"), flag("quarter"), flag("start"), flag("end"), time.Local)
		if err != nil {
			return err
		}

		a, _, err := openApp()
		if err != nil {
			return err
		}
		overview, err := a.Reports.Overview(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), overview)
	},
}

// ─── documents ──────────────────────────────────────────────────────────────

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect offers and invoices",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List document summaries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _ := cmd.Flags().GetString("type")
		var types []domain.DocumentType
		if t != "" {
			types = append(types, domain.DocumentType(strings.TrimSpace(t)))
		}

		a, _, err := openApp()
		if err != nil {
			return err
		}
		summaries, err := a.Documents.List(cmd.Context(), types...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, s := range summaries {
			fmt.Fprintf(out, "%-8s %-20s %-10s %-30s %12.2f\n",
				s.DocumentType, s.DocumentNumber, s.Status, s.CustomerName, s.Total)
		}
		return nil
	},
}
