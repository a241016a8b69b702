package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/chainwatch/internal/supplychain"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Compute supply-chain analytics from a snapshot file",
	Long:  "Reads a supplier snapshot (suppliers plus optional alerts) and computes distribution, risk, and health analytics.",
}

// buildAnalytics loads the snapshot and risk table and returns a populated
// analytics engine.
func buildAnalytics(path string) (*supplychain.Analytics, error) {
	snap, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	table, err := supplychain.LoadRiskTable(cfg.Analytics.RiskTablePath)
	if err != nil {
		return nil, err
	}
	a := supplychain.NewAnalytics(cfg.Analytics, table)
	a.SetData(decodeSuppliers(snap.Suppliers), snap.Alerts)
	return a, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var analyticsOverviewCmd = &cobra.Command{
	Use:   "overview <snapshot.json>",
	Short: "Show the full analytics overview",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := buildAnalytics(args[0])
		if err != nil {
			return err
		}
		return printJSON(a.ComputeOverview())
	},
}

var analyticsSupplierCmd = &cobra.Command{
	Use:   "supplier <supplier-id> <snapshot.json>",
	Short: "Show the composite risk analysis for one supplier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAnalytics(args[1])
		if err != nil {
			return err
		}
		ra, ok := a.SupplierRiskAnalysis(args[0])
		if !ok {
			cmd.PrintErrf("Supplier %s not found in snapshot.\n", args[0])
			return nil
		}
		return printJSON(ra)
	},
}

var analyticsInsightsCmd = &cobra.Command{
	Use:   "insights <snapshot.json>",
	Short: "Show concentration and backlog insights",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		a, err := buildAnalytics(args[0])
		if err != nil {
			return err
		}
		return printJSON(a.Insights())
	},
}

func init() {
	analyticsCmd.AddCommand(analyticsOverviewCmd)
	analyticsCmd.AddCommand(analyticsSupplierCmd)
	analyticsCmd.AddCommand(analyticsInsightsCmd)
	rootCmd.AddCommand(analyticsCmd)
}
