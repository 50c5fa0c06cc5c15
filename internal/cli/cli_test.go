package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/ingestd/internal/config"
	"github.com/me/ingestd/internal/executor"
	"github.com/me/ingestd/internal/idempotency"
	"github.com/me/ingestd/internal/logging"
	"github.com/me/ingestd/internal/scheduler"
	"github.com/me/ingestd/internal/server"
	"github.com/me/ingestd/internal/status"
)

// startTestServer starts an ingestd server with a running dispatcher and
// returns its URL.
func startTestServer(t *testing.T) string {
	t.Helper()
	logger := logging.Discard()
	exec := executor.FuncExecutor{Name: "stub", Fn: func(_ context.Context, id int) (string, error) {
		if id == 13 {
			return "", executor.ErrItemFailed
		}
		return "ok", nil
	}}
	cfg := scheduler.Config{
		BatchSize:    3,
		IdlePoll:     5 * time.Millisecond,
		FaultBackoff: 5 * time.Millisecond,
	}
	sched := scheduler.New(cfg, idempotency.NewMemoryCache(time.Minute), status.NewAggregator(logger), exec, logger)
	srv := server.New(config.DefaultServerConfig(), sched, logger)

	ctx, cancel := context.WithCancel(context.Background())
	srv.StartScheduler(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		sched.Stop()
		cancel()
	})
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := root.Execute()
	return buf.String(), err
}

// submissionID extracts the sub_ identifier from submit output.
func submissionID(t *testing.T, output string) string {
	t.Helper()
	for _, f := range strings.Fields(output) {
		if strings.HasPrefix(f, "sub_") {
			return f
		}
	}
	t.Fatalf("no submission id in output: %s", output)
	return ""
}

func TestSubmitCommand(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "submit", "1", "2", "3", "4", "--priority", "high")
	if err != nil {
		t.Fatalf("submit error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Submission created: sub_") {
		t.Errorf("expected 'Submission created: sub_' in output, got: %s", out)
	}
	first := submissionID(t, out)

	out, err = runCLI(t, "--server", url, "submit", "1", "2", "3", "4", "--priority", "HIGH")
	if err != nil {
		t.Fatalf("resubmit error: %v", err)
	}
	if !strings.Contains(out, "Duplicate of submission "+first) {
		t.Errorf("expected duplicate of %s, got: %s", first, out)
	}
}

func TestSubmitCommand_File(t *testing.T) {
	url := startTestServer(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		extra   []string
	}{
		{"yaml", "req.yaml", "item_ids: [10, 11, 12]\npriority: LOW\n", nil},
		{"json", "req.json", `{"item_ids": [20, 21], "priority": "MEDIUM"}`, nil},
		{"flag overrides file", "req2.yaml", "item_ids: [30]\npriority: LOW\n", []string{"--priority", "HIGH"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			args := append([]string{"--server", url, "submit", "--file", path}, tt.extra...)
			out, err := runCLI(t, args...)
			if err != nil {
				t.Fatalf("submit error: %v\noutput: %s", err, out)
			}
			if !strings.Contains(out, "Submission created: sub_") {
				t.Errorf("expected creation, got: %s", out)
			}
		})
	}
}

func TestSubmitCommand_Errors(t *testing.T) {
	url := startTestServer(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no items", []string{"submit", "--priority", "HIGH"}, "no item ids"},
		{"non-integer", []string{"submit", "x", "--priority", "HIGH"}, "not an integer"},
		{"missing priority", []string{"submit", "1"}, "VALIDATION_ERROR"},
		{"unknown priority", []string{"submit", "1", "--priority", "urgent"}, "VALIDATION_ERROR"},
		{"missing file", []string{"submit", "--file", filepath.Join(t.TempDir(), "nope.yaml")}, "read request file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, append([]string{"--server", url}, tt.args...)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitCommand_Wait(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "submit", "1", "2", "3", "4", "5",
		"--priority", "MEDIUM", "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("submit --wait error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Status:   COMPLETED") {
		t.Errorf("expected COMPLETED after wait, got: %s", out)
	}
	if !strings.Contains(out, "5 processed of 5") {
		t.Errorf("expected all items processed, got: %s", out)
	}
}

func TestStatusCommand(t *testing.T) {
	url := startTestServer(t)
	out, err := runCLI(t, "--server", url, "submit", "12", "13", "14", "--priority", "LOW", "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	subID := submissionID(t, out)

	out, err = runCLI(t, "--server", url, "status", subID)
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(out, subID) {
		t.Errorf("expected submission ID in output, got: %s", out)
	}
	if !strings.Contains(out, "Status:   FAILED") {
		t.Errorf("expected FAILED in output, got: %s", out)
	}
	if !strings.Contains(out, "1 of 3 items failed") {
		t.Errorf("expected batch error, got: %s", out)
	}
	if !strings.Contains(out, "item 13 failed: external API call failed") {
		t.Errorf("expected failed item detail, got: %s", out)
	}
	if !strings.Contains(out, "1 failed") {
		t.Errorf("expected failed count, got: %s", out)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	url := startTestServer(t)
	_, err := runCLI(t, "--server", url, "status", "sub_missing")
	if err == nil {
		t.Fatal("expected error for unknown submission")
	}
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestListCommand(t *testing.T) {
	url := startTestServer(t)

	out, err := runCLI(t, "--server", url, "list")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(out, "No submissions found.") {
		t.Errorf("expected empty list, got: %s", out)
	}

	for _, id := range []string{"1", "2", "3"} {
		if _, err := runCLI(t, "--server", url, "submit", id, "--priority", "LOW"); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	out, err = runCLI(t, "--server", url, "list", "--limit", "2")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if !strings.Contains(out, "ID") || !strings.Contains(out, "PRIORITY") {
		t.Errorf("expected header in output, got: %s", out)
	}
	if strings.Count(out, "sub_") != 2 {
		t.Errorf("expected 2 rows, got: %s", out)
	}
	if !strings.Contains(out, "(2 of 3 shown)") {
		t.Errorf("expected pagination note, got: %s", out)
	}
}

func TestWatchCommand(t *testing.T) {
	url := startTestServer(t)
	out, err := runCLI(t, "--server", url, "submit", "7", "8", "9", "10", "--priority", "HIGH")
	if err != nil {
		t.Fatalf("submit error: %v", err)
	}
	subID := submissionID(t, out)

	out, err = runCLI(t, "--server", url, "watch", subID, "--interval", "10ms")
	if err != nil {
		t.Fatalf("watch error: %v", err)
	}
	if !strings.Contains(out, "batches done") {
		t.Errorf("expected progress lines, got: %s", out)
	}
	if !strings.Contains(out, "Submission: "+subID) {
		t.Errorf("expected final summary, got: %s", out)
	}
}

func TestHealthCommand(t *testing.T) {
	url := startTestServer(t)
	out, err := runCLI(t, "--server", url, "health")
	if err != nil {
		t.Fatalf("health error: %v", err)
	}
	if !strings.Contains(out, "healthy") {
		t.Errorf("expected healthy in output, got: %s", out)
	}
	if !strings.Contains(out, "Dispatcher:") {
		t.Errorf("expected dispatcher line, got: %s", out)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	c := NewClient(url, logging.Discard())
	if _, err := c.Get(context.Background(), "/api/v1/health"); err == nil {
		t.Fatal("expected connection error")
	}
}
