package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/ingestd/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <submission_id>",
		Short: "Check the status of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := client.Submission(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get submission: %w", err)
			}
			printSubmission(cmd.OutOrStdout(), sub)
			return nil
		},
	}
}

// printSubmission writes a human-readable view of a submission and its batches.
func printSubmission(w io.Writer, sub *model.Submission) {
	p := model.ComputeProgress(sub)

	fmt.Fprintf(w, "Submission: %s\n", sub.ID)
	fmt.Fprintf(w, "  Status:   %s\n", sub.Status)
	fmt.Fprintf(w, "  Priority: %s\n", sub.Priority)
	fmt.Fprintf(w, "  Items:    %s processed of %s", humanize.Comma(int64(p.ProcessedItems)), humanize.Comma(int64(p.TotalItems)))
	if p.FailedItems > 0 {
		fmt.Fprintf(w, ", %s failed", humanize.Comma(int64(p.FailedItems)))
	}
	fmt.Fprintf(w, " (%s%%)\n", humanize.FtoaWithDigits(p.ProgressPercent, 1))
	fmt.Fprintf(w, "  Created:  %s\n", humanize.Time(sub.CreatedAt))
	if sub.LastUpdatedAt != nil {
		fmt.Fprintf(w, "  Updated:  %s\n", humanize.Time(*sub.LastUpdatedAt))
	}

	if len(sub.Batches) == 0 {
		return
	}
	fmt.Fprintln(w, "  Batches:")
	for i, b := range sub.Batches {
		fmt.Fprintf(w, "    %d. %s %v: %s", i+1, b.ID, b.ItemIDs, b.Status)
		if b.Error != "" {
			fmt.Fprintf(w, " (%s)", b.Error)
		}
		fmt.Fprintln(w)
		for _, id := range b.ItemIDs {
			r, ok := b.Results[id]
			if !ok || r.Status != model.ItemStatusFailed {
				continue
			}
			fmt.Fprintf(w, "       item %d failed: %s\n", id, strings.TrimSpace(r.Error))
		}
	}
}
