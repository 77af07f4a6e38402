package status

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/d-singer/batdetect2-CLI/cmd/display"
	"github.com/d-singer/batdetect2-CLI/internal/analysis"
	"github.com/d-singer/batdetect2-CLI/internal/runtime"
)

// Command creates the status command, which reports per-site progress
// without invoking the model.
func Command(ctx *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show discovered, processed and pending files per site",
		Long: `Reads each site's committed output and compares it with the audio on disk.
Nothing is locked or written, so status is safe to run alongside an analysis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			progress, err := analysis.Inspect(afero.NewOsFs(), ctx.Settings)
			if err != nil {
				return err
			}
			Print(cmd.OutOrStdout(), progress)
			return nil
		},
	}
	return cmd
}

// Print renders site progress as a table.
func Print(out io.Writer, progress []analysis.SiteProgress) {
	if len(progress) == 0 {
		_, _ = fmt.Fprintln(out, "No site folders found.")
		return
	}

	var discovered, processed, pending int
	rows := make([][]string, 0, len(progress))
	for _, p := range progress {
		state := "done"
		switch {
		case p.Empty:
			state = "no audio"
		case p.ResumeErr != nil:
			state = "output partly unreadable"
		case p.Processed == 0:
			state = "not started"
		case p.Pending > 0:
			state = "in progress"
		}
		rows = append(rows, []string{
			p.SiteID,
			strconv.Itoa(p.Discovered),
			strconv.Itoa(p.Processed),
			strconv.Itoa(p.Pending),
			state,
			p.OutputPath,
		})
		discovered += p.Discovered
		processed += p.Processed
		pending += p.Pending
	}

	display.Render(out, display.Table{
		Headers: []string{"Site", "Files", "Processed", "Pending", "State", "Output"},
		Aligns: []display.Alignment{
			display.AlignLeft, display.AlignRight, display.AlignRight, display.AlignRight,
			display.AlignLeft, display.AlignLeft,
		},
		Rows: rows,
		Footer: []string{
			"Total",
			strconv.Itoa(discovered),
			strconv.Itoa(processed),
			strconv.Itoa(pending),
		},
	})
}
