// Package status owns every status field of submissions and batches and
// derives each submission's rollup from its batches.
package status

import (
	"fmt"

	"github.com/me/ingestd/pkg/model"
)

// Policy selects how batch statuses roll up into a submission status.
type Policy string

const (
	// PolicyInProgress lets any started batch dominate a failure: a
	// submission is FAILED only once no batch is TRIGGERED or COMPLETED.
	PolicyInProgress Policy = "in_progress"
	// PolicyFailFast makes any FAILED batch dominate.
	PolicyFailFast Policy = "fail_fast"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyInProgress, PolicyFailFast:
		return p, nil
	case "":
		return PolicyInProgress, nil
	}
	return "", fmt.Errorf("unknown rollup policy %q", s)
}

// Rollup computes the submission status for the given batch statuses.
func Rollup(policy Policy, statuses []model.BatchStatus) model.RequestStatus {
	if len(statuses) == 0 {
		return model.RequestStatusPending
	}

	var pending, triggered, completed, failed int
	for _, s := range statuses {
		switch s {
		case model.BatchStatusPending:
			pending++
		case model.BatchStatusTriggered:
			triggered++
		case model.BatchStatusCompleted:
			completed++
		case model.BatchStatusFailed:
			failed++
		}
	}

	if policy == PolicyFailFast && failed > 0 {
		return model.RequestStatusFailed
	}
	switch {
	case completed == len(statuses):
		return model.RequestStatusCompleted
	case triggered > 0 || completed > 0:
		return model.RequestStatusTriggered
	case failed > 0:
		return model.RequestStatusFailed
	}
	return model.RequestStatusPending
}

func batchStatuses(batches []model.Batch) []model.BatchStatus {
	out := make([]model.BatchStatus, len(batches))
	for i := range batches {
		out[i] = batches[i].Status
	}
	return out
}
