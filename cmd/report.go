package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/punchclock/internal/attendance"
	"github.com/kozaktomas/punchclock/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export attendance for a date range",
	Long: `Export an organization's attendance records between two dates (inclusive)
to an XLSX workbook with an Attendance sheet and a per-employee Summary sheet.

Example:
  punchclock report --org acme --from 2026-03-01 --to 2026-03-31 -o march.xlsx`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("org", "", "Organization id")
	reportCmd.Flags().String("from", "", "First work date (YYYY-MM-DD), defaults to the first day of this month")
	reportCmd.Flags().String("to", "", "Last work date (YYYY-MM-DD), defaults to today")
	reportCmd.Flags().StringP("output", "o", "", "Output file (default attendance_<from>_<to>.xlsx)")
	reportCmd.Flags().Bool("json", false, "Print the per-employee summary as JSON instead of writing a workbook")
	_ = reportCmd.MarkFlagRequired("org")
}

// reportRange fills in default dates relative to now in the policy timezone.
func reportRange(from, to string, now time.Time, policy attendance.Policy) (string, string) {
	local := now.In(policy.Location)
	if to == "" {
		to = policy.WorkDate(now)
	}
	if from == "" {
		from = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, policy.Location).Format(attendance.DateLayout)
	}
	return from, to
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	org := mustGetString(cmd, "org")
	from, to := reportRange(mustGetString(cmd, "from"), mustGetString(cmd, "to"), time.Now(), a.ledger.Policy())

	records, err := a.ledger.Range(ctx, org, from, to)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(report.Summarize(records))
	}

	path := mustGetString(cmd, "output")
	if path == "" {
		path = fmt.Sprintf("attendance_%s_%s.xlsx", from, to)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := report.Write(f, records, a.ledger.Policy().Location); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}

	fmt.Printf("Wrote %d records (%s to %s) to %s\n", len(records), from, to, path)
	return nil
}
