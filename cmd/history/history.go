package history

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/d-singer/batdetect2-CLI/cmd/display"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/ledger"
	"github.com/d-singer/batdetect2-CLI/internal/runtime"
)

const defaultLimit = 10

// Command creates the history command, which lists recent runs from the
// run ledger.
func Command(ctx *runtime.Context) *cobra.Command {
	var (
		limit  int
		siteID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent analysis runs",
		Long:  "Lists recent runs recorded in the run ledger, or the outcomes of one site with --site.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ctx.Settings.Ledger.Path
			out := cmd.OutOrStdout()
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				_, _ = fmt.Fprintf(out, "No runs recorded in %s.\n", path)
				return nil
			}

			store, err := ledger.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if siteID != "" {
				sites, err := store.SiteHistory(cmd.Context(), siteID, limit)
				if err != nil {
					return err
				}
				PrintSite(out, siteID, sites)
				return nil
			}

			runs, err := store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			PrintRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultLimit, "Number of entries to show")
	cmd.Flags().StringVar(&siteID, "site", "", "Show the history of one site")

	return cmd
}

// PrintRuns renders runs as a table, newest first.
func PrintRuns(out io.Writer, runs []ledger.RunRecord) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs recorded.")
		return
	}

	rows := make([][]string, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Second).String(),
			r.Status,
			fmt.Sprintf("%d/%d", r.SitesTotal-r.SitesFailed, r.SitesTotal),
			strconv.Itoa(r.FilesProcessed),
			strconv.Itoa(r.FilesFailed),
			strconv.Itoa(r.FilesSkipped),
			strconv.Itoa(r.RowsWritten),
			r.RunID,
		})
	}

	display.Render(out, display.Table{
		Headers: []string{"Started", "Duration", "Status", "Sites ok", "Processed", "Failed", "Done before", "Rows", "Run"},
		Aligns: []display.Alignment{
			display.AlignLeft, display.AlignRight, display.AlignLeft, display.AlignRight, display.AlignRight,
			display.AlignRight, display.AlignRight, display.AlignRight, display.AlignLeft,
		},
		Rows: rows,
	})
}

// PrintSite renders the recorded outcomes of one site with its failed
// files.
func PrintSite(out io.Writer, siteID string, sites []ledger.SiteRecord) {
	if len(sites) == 0 {
		_, _ = fmt.Fprintf(out, "No runs recorded for site %s.\n", siteID)
		return
	}

	rows := make([][]string, 0, len(sites))
	for i := range sites {
		s := &sites[i]
		rows = append(rows, []string{
			s.Status,
			strconv.Itoa(s.Discovered),
			strconv.Itoa(s.Succeeded),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Rows),
			s.Error,
		})
		for _, f := range s.Failures {
			rows = append(rows, []string{"", "", "", "", "", f.File + ": " + f.Error})
		}
	}

	display.Render(out, display.Table{
		Title:   "Site " + siteID,
		Headers: []string{"Status", "Files", "Processed", "Failed", "Rows", "Errors"},
		Aligns: []display.Alignment{
			display.AlignLeft, display.AlignRight, display.AlignRight, display.AlignRight,
			display.AlignRight, display.AlignLeft,
		},
		Rows: rows,
	})
}
