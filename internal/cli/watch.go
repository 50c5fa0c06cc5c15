package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/ingestd/pkg/model"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <submission_id>",
		Short: "Follow a submission until every batch has finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			sub, err := waitSettled(cmd, args[0], interval, func(s *model.Submission) {
				p := model.ComputeProgress(s)
				fmt.Fprintf(out, "%s  %-9s  %d/%d items, %d/%d batches done\n",
					time.Now().Format(time.TimeOnly), s.Status,
					p.ProcessedItems, p.TotalItems, p.CompletedBatches+p.FailedBatches, p.TotalBatches)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printSubmission(out, sub)
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	return cmd
}

// waitSettled polls a submission until it is settled. onChange, if set, is
// called with the first snapshot and again whenever a batch moves.
func waitSettled(cmd *cobra.Command, id string, interval time.Duration, onChange func(*model.Submission)) (*model.Submission, error) {
	ctx := cmd.Context()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		sub, err := client.Submission(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get submission: %w", err)
		}
		if key := progressKey(sub); key != last {
			last = key
			if onChange != nil {
				onChange(sub)
			}
		}
		if sub.Settled() {
			return sub, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressKey(sub *model.Submission) string {
	key := string(sub.Status)
	for _, b := range sub.Batches {
		key += "," + string(b.Status)
	}
	return key
}
