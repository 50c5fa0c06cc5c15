// Package executor runs single work items on behalf of the dispatcher.
package executor

import (
	"context"
	"errors"
)

// Executor is a pluggable backend that processes one work item.
//
// Execute returns a payload on success or an error describing the failure.
// It must not retry; the dispatcher records whatever it returns.
type Executor interface {
	// Type returns the executor type identifier.
	Type() string

	// Execute processes itemID and returns its result payload.
	Execute(ctx context.Context, itemID int) (payload string, err error)
}

// ErrItemFailed is the failure reported by executors that have no more
// specific reason.
var ErrItemFailed = errors.New("external API call failed")

// FuncExecutor adapts a function to the Executor interface.
type FuncExecutor struct {
	Name string
	Fn   func(ctx context.Context, itemID int) (string, error)
}

// Type returns the configured name, or "func".
func (f FuncExecutor) Type() string {
	if f.Name == "" {
		return "func"
	}
	return f.Name
}

// Execute calls Fn.
func (f FuncExecutor) Execute(ctx context.Context, itemID int) (string, error) {
	return f.Fn(ctx, itemID)
}
