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

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run and inspect scheduled jobs",
	Long:  "Commands for running one-shot jobs and inspecting archived job history.",
}

// -- jobs run --

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a refresh or anomaly job to completion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		mgr, st, err := initManager(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		kind, _ := cmd.Flags().GetString("kind")
		refreshType, _ := cmd.Flags().GetString("type")
		components, _ := cmd.Flags().GetStringSlice("components")
		dataSource, _ := cmd.Flags().GetString("source")

		var jobID string
		switch kind {
		case "refresh":
			jobID, err = mgr.CreateRefreshJob(jobs.RefreshType(refreshType), components)
		case "anomaly":
			jobID, err = mgr.CreateAnomalyJob(dataSource, nil)
		default:
			return eris.Errorf("unknown job kind %q (want refresh or anomaly)", kind)
		}
		if err != nil {
			return err
		}

		rec, err := mgr.RunJobSync(ctx, jobID)
		if err != nil {
			return eris.Wrapf(err, "job %s failed", jobID)
		}

		// Archive one-shot runs too.
		if st != nil {
			_ = st.ArchiveJob(ctx, rec)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- jobs history --

var jobsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived job runs",
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

		status, _ := cmd.Flags().GetString("status")
		name, _ := cmd.Flags().GetString("name")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListJobs(ctx, store.JobFilter{
			Status: jobs.Status(status),
			Name:   name,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs history")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No archived jobs found.")
			return nil
		}

		formatJobList(os.Stdout, recs)
		return nil
	},
}

func init() {
	jobsRunCmd.Flags().String("kind", "refresh", "job kind (refresh, anomaly)")
	jobsRunCmd.Flags().String("type", "incremental", "refresh type (incremental, full)")
	jobsRunCmd.Flags().StringSlice("components", nil, "components to refresh (default all)")
	jobsRunCmd.Flags().String("source", "risk_index", "data source for anomaly scans")

	jobsHistoryCmd.Flags().String("status", "", "filter by status (completed, failed, cancelled)")
	jobsHistoryCmd.Flags().String("name", "", "filter by job name")
	jobsHistoryCmd.Flags().Int("limit", 50, "max number of records to display")

	jobsCmd.AddCommand(jobsRunCmd)
	jobsCmd.AddCommand(jobsHistoryCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobList writes a tabular list of job records to w.
func formatJobList(out io.Writer, recs []jobs.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB_ID\tNAME\tSTATUS\tCREATED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "------\t----\t------\t-------\t--------\t-----")

	for _, rec := range recs {
		dur := ""
		if d, ok := rec.Duration(); ok {
			dur = d.Round(time.Millisecond).String()
		}
		errMsg := rec.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.JobID, rec.Name, rec.Status,
			rec.CreatedAt.Format(time.RFC3339), dur, errMsg)
	}
	_ = w.Flush()
}
