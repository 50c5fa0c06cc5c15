package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/ingestd/pkg/model"
)

func newListCmd() *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/submissions/?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
			if status != "" {
				path += "&status=" + status
			}
			resp, err := client.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}

			var subs []model.Submission
			if err := json.Unmarshal(resp.Data, &subs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tPRIORITY\tITEMS\tBATCHES\tCREATED")
			for _, sub := range subs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					sub.ID, sub.Status, sub.Priority, len(sub.ItemIDs), len(sub.Batches), humanize.Time(sub.CreatedAt))
			}
			tw.Flush()

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(subs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, TRIGGERED, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum submissions to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Submissions to skip")
	return cmd
}
