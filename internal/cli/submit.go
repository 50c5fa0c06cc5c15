package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/ingestd/pkg/model"
)

func newSubmitCmd() *cobra.Command {
	var file string
	var priority string
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "submit [item_id...]",
		Short: "Submit item IDs for batched processing",
		Long: "Submit item IDs with a priority. IDs come from the arguments or from a\n" +
			"YAML/JSON file with item_ids and priority keys; --priority overrides the file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req model.SubmitRequest
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read request file: %w", err)
				}
				// JSON is a subset of YAML, so one decoder serves both.
				if err := yaml.Unmarshal(data, &req); err != nil {
					return fmt.Errorf("parse request file: %w", err)
				}
				logger.Debug("parsed request file", "path", file, "items", len(req.ItemIDs))
			}
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("item id %q is not an integer", a)
				}
				req.ItemIDs = append(req.ItemIDs, id)
			}
			if priority != "" {
				req.Priority = strings.ToUpper(priority)
			}
			if len(req.ItemIDs) == 0 {
				return fmt.Errorf("no item ids given")
			}

			resp, err := client.Post(cmd.Context(), "/api/v1/submissions/", req)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			var res model.SubmitResponse
			if err := json.Unmarshal(resp.Data, &res); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if res.Duplicate {
				fmt.Fprintf(out, "Duplicate of submission %s (status: %s)\n", res.SubmissionID, res.Status)
			} else {
				fmt.Fprintf(out, "Submission created: %s (status: %s)\n", res.SubmissionID, res.Status)
			}

			if !wait {
				return nil
			}
			sub, err := waitSettled(cmd, res.SubmissionID, interval, nil)
			if err != nil {
				return err
			}
			printSubmission(out, sub)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Request file (YAML/JSON) with item_ids and priority")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Priority: HIGH, MEDIUM or LOW")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until every batch has finished")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --wait")
	return cmd
}
