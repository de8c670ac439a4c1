package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-emotisense/pkg/report"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/store"
)

var (
	reportSession string
	reportCSV     string
	reportHTML    string
	reportList    int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a stored session",
	Long: `Load a session from the database and print its statistics and feedback.
Use --csv and --html to export the records and a chart page.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportSession, "session", "s", "", "Session ID (default: latest)")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "Write the session records to this CSV file")
	reportCmd.Flags().StringVar(&reportHTML, "html", "", "Write an HTML chart report to this file")
	reportCmd.Flags().IntVar(&reportList, "list", 0, "List the N most recent sessions instead")
}

func runReport(cmd *cobra.Command, args []string) error {
	if cfg.DB == "" {
		return errors.New("report: no database configured (set db or EMOTISENSE_DB)")
	}
	st, err := store.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if reportList > 0 {
		sessions, err := st.ListSessions(ctx, reportList)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			ended := "running"
			if !s.EndedAt.IsZero() {
				ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
			}
			fmt.Fprintf(out, "%s  %-10s  %s  %s\n", s.ID, s.Mode, s.StartedAt.Local().Format(time.DateTime), ended)
		}
		return nil
	}

	var sess store.Session
	if reportSession != "" {
		sess, err = st.GetSession(ctx, reportSession)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("report: session %q not found", reportSession)
	}
	if err != nil {
		return err
	}

	records, err := st.LoadRecords(ctx, sess.ID)
	if err != nil {
		return err
	}
	events, err := st.LoadTriggers(ctx, sess.ID)
	if err != nil {
		return err
	}
	stats := session.Compute(records, cfg.Session)

	if reportCSV != "" {
		if err := writeFile(reportCSV, func(f *os.File) error {
			return session.WriteCSV(f, records)
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d records to %s\n", len(records), reportCSV)
	}
	if reportHTML != "" {
		if err := writeFile(reportHTML, func(f *os.File) error {
			return report.Render(f, report.Input{
				SessionID: sess.ID,
				Records:   records,
				Stats:     stats,
				Events:    events,
				Feedback:  session.Feedback(stats),
			})
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote report to %s\n", reportHTML)
	}

	printSummary(out, sess.ID, stats, events)
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
