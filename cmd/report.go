package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/predictivemovement/core/metrics/eco"
	"github.com/kilianp07/predictivemovement/infra/kpi"
	"github.com/kilianp07/predictivemovement/jobs/ecokpi"
	"github.com/kilianp07/predictivemovement/infra/report"
)

var (
	reportDB     string
	reportOut    string
	reportFleets []string
	reportDays   int
	reportStats  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the emission KPIs of a SQLite store as HTML",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDB, "db", "kpi.db", "SQLite KPI database")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "emissions.html", "output file")
	reportCmd.Flags().StringSliceVar(&reportFleets, "fleet", nil, "fleets to include")
	reportCmd.Flags().IntVar(&reportDays, "days", 30, "number of days back from today")
	reportCmd.Flags().StringVar(&reportStats, "backfill", "", "statistics file to load into the database first")
	_ = reportCmd.MarkFlagRequired("fleet")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := kpi.NewSQLiteStore(reportDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if reportStats != "" {
		if err := backfill(cmd, store, reportStats); err != nil {
			return err
		}
	}

	end := time.Now()
	start := end.AddDate(0, 0, -reportDays)
	var records []eco.Record
	for _, fleet := range reportFleets {
		recs, err := store.Query(fleet, start, end)
		if err != nil {
			return fmt.Errorf("query %s: %w", fleet, err)
		}
		records = append(records, recs...)
	}
	f, err := os.Create(reportOut)
	if err != nil {
		return err
	}
	if err := report.Emissions(f, records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(records), reportOut)
	return err
}

func backfill(cmd *cobra.Command, store eco.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := ecokpi.Backfill(store, f)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", path, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "loaded %d deliveries from %s\n", n, path)
	return err
}
