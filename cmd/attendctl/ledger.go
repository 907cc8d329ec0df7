package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/attend/internal/attendance"
)

var ledgerOpts struct {
	Path string
	Date string
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the CSV attendance ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List ledger rows, optionally for one day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLedger()
		if err != nil {
			return err
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

var ledgerSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count marks per person, optionally for one day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := readLedger()
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	ledgerCmd.PersistentFlags().StringVarP(&ledgerOpts.Path, "file", "f", "", "ledger path (default: attendance.ledger_path)")
	ledgerCmd.PersistentFlags().StringVarP(&ledgerOpts.Date, "date", "d", "", "only rows of this day (YYYY-MM-DD)")
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerSummaryCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func readLedger() ([]attendance.LedgerEntry, error) {
	path := ledgerOpts.Path
	if path == "" {
		path = cfg.Attendance.LedgerPath
	}
	ledger, err := attendance.NewLedger(path)
	if err != nil {
		return nil, err
	}
	entries, err := ledger.Entries()
	if err != nil {
		return nil, err
	}
	if ledgerOpts.Date == "" {
		return entries, nil
	}
	day, err := time.ParseInLocation("2006-01-02", ledgerOpts.Date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid --date %q: %w", ledgerOpts.Date, err)
	}
	return filterDay(entries, day), nil
}

// filterDay keeps entries within [day, day+24h).
func filterDay(entries []attendance.LedgerEntry, day time.Time) []attendance.LedgerEntry {
	end := day.AddDate(0, 0, 1)
	out := entries[:0:0]
	for _, e := range entries {
		if !e.Time.Before(day) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	return out
}

func printEntries(w io.Writer, entries []attendance.LedgerEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTIME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Time.Format(attendance.LedgerTimeLayout))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d rows\n", len(entries))
}

type personCount struct {
	Name  string
	Count int
	First time.Time
	Last  time.Time
}

// summarize groups entries by name, ordered by first appearance.
func summarize(entries []attendance.LedgerEntry) []personCount {
	idx := make(map[string]int)
	var out []personCount
	for _, e := range entries {
		i, ok := idx[e.Name]
		if !ok {
			idx[e.Name] = len(out)
			out = append(out, personCount{Name: e.Name, First: e.Time, Last: e.Time})
			i = len(out) - 1
		}
		pc := &out[i]
		pc.Count++
		if e.Time.Before(pc.First) {
			pc.First = e.Time
		}
		if e.Time.After(pc.Last) {
			pc.Last = e.Time
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].First.Before(out[j].First) })
	return out
}

func printSummary(w io.Writer, entries []attendance.LedgerEntry) {
	counts := summarize(entries)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMARKS\tFIRST\tLAST")
	for _, pc := range counts {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", pc.Name, pc.Count,
			pc.First.Format(attendance.LedgerTimeLayout), pc.Last.Format(attendance.LedgerTimeLayout))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d persons\n", len(counts))
}
