package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/chainwatch/internal/store"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate supplier snapshots and inspect alerts",
}

// -- alerts eval --

var alertsEvalCmd = &cobra.Command{
	Use:   "eval <snapshot.json>",
	Short: "Evaluate a supplier snapshot against alert rules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		snap, err := loadSnapshot(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		var archive supplychain.AlertArchiver
		if st != nil {
			defer st.Close() //nolint:errcheck
			archive = st
		}

		mgr := supplychain.NewAlertManager(cfg.Alerts, archive)
		created := mgr.ProcessSuppliers(ctx, snap.Suppliers)

		if len(created) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts raised.")
			return nil
		}

		formatAlertList(os.Stdout, created)
		return nil
	},
}

// -- alerts stats --

var alertsStatsCmd = &cobra.Command{
	Use:   "stats <snapshot.json>",
	Short: "Show alert statistics for a supplier snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(args[0])
		if err != nil {
			return err
		}

		mgr := supplychain.NewAlertManager(cfg.Alerts, nil)
		mgr.ProcessSuppliers(cmd.Context(), snap.Suppliers)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(mgr.Statistics())
	},
}

// -- alerts history --

var alertsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			fmt.Fprintln(os.Stderr, "No archive store configured.")
			return nil
		}
		defer st.Close() //nolint:errcheck

		supplierID, _ := cmd.Flags().GetString("supplier")
		status, _ := cmd.Flags().GetString("status")
		severity, _ := cmd.Flags().GetString("severity")
		limit, _ := cmd.Flags().GetInt("limit")

		alerts, err := st.ListAlerts(ctx, store.AlertFilter{
			SupplierID: supplierID,
			Status:     supplychain.AlertStatus(status),
			Severity:   supplychain.Severity(severity),
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "alerts history")
		}

		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No archived alerts found.")
			return nil
		}

		formatAlertList(os.Stdout, alerts)
		return nil
	},
}

func init() {
	alertsHistoryCmd.Flags().String("supplier", "", "filter by supplier id")
	alertsHistoryCmd.Flags().String("status", "", "filter by status (resolved, expired)")
	alertsHistoryCmd.Flags().String("severity", "", "filter by severity (low, medium, high, critical)")
	alertsHistoryCmd.Flags().Int("limit", 50, "max number of alerts to display")

	alertsCmd.AddCommand(alertsEvalCmd)
	alertsCmd.AddCommand(alertsStatsCmd)
	alertsCmd.AddCommand(alertsHistoryCmd)
	rootCmd.AddCommand(alertsCmd)
}

// formatAlertList writes a tabular list of alerts to w.
func formatAlertList(out io.Writer, alerts []supplychain.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUPPLIER\tTYPE\tSEVERITY\tSTATUS\tCREATED\tMESSAGE")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t--------\t------\t-------\t-------")

	for _, a := range alerts {
		msg := a.Message
		if len(msg) > 50 {
			msg = msg[:47] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.SupplierID, a.Type, a.Severity, a.Status,
			a.CreatedAt.Format(time.RFC3339), msg)
	}
	_ = w.Flush()
}
