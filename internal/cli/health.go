package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/health")
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			var h struct {
				Status             string `json:"status"`
				Version            string `json:"version"`
				Uptime             string `json:"uptime"`
				TrackedSubmissions int    `json:"tracked_submissions"`
				QueueDepth         int    `json:"queue_depth"`
				Dispatcher         string `json:"dispatcher"`
				BatchesDispatched  uint64 `json:"batches_dispatched"`
				DispatchFaults     uint64 `json:"dispatch_faults"`
				Executor           string `json:"executor"`
				Idempotency        string `json:"idempotency"`
			}
			if err := json.Unmarshal(resp.Data, &h); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:      %s (%s)\n", flagServer, h.Status)
			fmt.Fprintf(out, "Version:     %s, up %s\n", h.Version, h.Uptime)
			fmt.Fprintf(out, "Dispatcher:  %s, %d batches dispatched, %d faults\n", h.Dispatcher, h.BatchesDispatched, h.DispatchFaults)
			fmt.Fprintf(out, "Queue depth: %d\n", h.QueueDepth)
			fmt.Fprintf(out, "Tracked:     %d submissions\n", h.TrackedSubmissions)
			fmt.Fprintf(out, "Executor:    %s, idempotency: %s\n", h.Executor, h.Idempotency)
			return nil
		},
	}
}
