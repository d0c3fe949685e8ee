package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shortcast/internal/api"
	"shortcast/internal/testsupport"
)

func futureTime() string {
	return time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
}

func TestSubmitWatchCompletes(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "submit", "--text", "Markets opened higher. — pause — Bonds slipped.", "--at", futureTime(), "--watch")
	if err != nil {
		t.Fatalf("submit --watch: %v\n%s", err, out)
	}
	requireContains(t, out, "queued (2 videos)")
	requireContains(t, out, "Completed")
	if got := env.uploads.Load(); got != 2 {
		t.Fatalf("expected 2 uploads, got %d", got)
	}
	if got := env.hooks.Load(); got != 2 {
		t.Fatalf("expected 2 webhook posts, got %d", got)
	}
}

func TestSubmitFromStdinThenStatusAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLIWithInput(t, env, "One long explainer.", "submit", "--file", "-", "--type", "regular", "--at", futureTime(), "--json")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var resp api.SubmitResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode submit output: %v\n%s", err, out)
	}
	if resp.JobID == "" || resp.EstimatedVideos != 1 {
		t.Fatalf("unexpected submit response: %+v", resp)
	}

	out, _, err = runCLI(t, env, "status", resp.JobID, "--watch")
	if err != nil {
		t.Fatalf("status --watch: %v", err)
	}
	requireContains(t, out, "Job "+resp.JobID)
	requireContains(t, out, "PUBLISH AT")
	requireContains(t, out, "regular")

	out, _, err = runCLI(t, env, "status", resp.JobID, "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var view api.JobStatusView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode status output: %v", err)
	}
	if view.Status != "completed" || view.Progress != 100 {
		t.Fatalf("expected completed job, got %+v", view)
	}

	out, _, err = runCLI(t, env, "list", "--status", "completed")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, resp.JobID)
	requireContains(t, out, "1/1/1")
}

func TestSubmitValidationErrorListsFields(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "submit", "--text", "Hello.", "--speed", "5", "--at", futureTime())
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "400")
	requireContains(t, err.Error(), "speed")

	_, _, err = runCLI(t, env, "submit", "--text", "Hello.")
	if err == nil || !strings.Contains(err.Error(), "--at") {
		t.Fatalf("expected missing --at error, got %v", err)
	}
	_, _, err = runCLI(t, env, "submit", "--at", futureTime())
	if err == nil || !strings.Contains(err.Error(), "--file or --text") {
		t.Fatalf("expected missing script error, got %v", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "status", "job_missing")
	if err == nil {
		t.Fatal("expected error for unknown job")
	}
	requireContains(t, err.Error(), "404")
}

func TestCancelFinishedJobFails(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "submit", "--text", "Short one.", "--at", futureTime(), "--watch")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) < 2 || fields[0] != "Job" {
		t.Fatalf("unexpected submit output: %s", out)
	}
	id := fields[1]

	if _, _, err := runCLI(t, env, "cancel", id); err == nil {
		t.Fatal("expected cancel of a completed job to fail")
	}
}

func TestHealthCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, "healthy")
	requireContains(t, out, "Version:")
}

func TestQueueStatsAndPurge(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, env, "submit", "--text", "Only one.", "--at", futureTime(), "--watch"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, _, err := runCLI(t, env, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	requireContains(t, out, "Completed")
	requireContains(t, out, "TOTAL")

	out, _, err = runCLI(t, env, "queue", "purge", "--days", "30")
	if err != nil {
		t.Fatalf("queue purge: %v", err)
	}
	requireContains(t, out, "Purged 0 finished jobs older than 30 days")
}

func TestQueueRecoverRequiresStoppedDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "queue", "recover")
	if err == nil || !strings.Contains(err.Error(), "daemon is running") {
		t.Fatalf("expected running-daemon error, got %v", err)
	}

	env.daemon.Stop()
	out, _, err := runCLI(t, env, "queue", "recover")
	if err != nil {
		t.Fatalf("queue recover: %v", err)
	}
	requireContains(t, out, "No interrupted jobs")
}

func TestDoctorPassesWithReachableCollaborators(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Generator")
	requireContains(t, out, "Publisher")
	requireContains(t, out, "Webhook")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err := runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample config: %v", err)
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config exists")
	}

	out, _, err = runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Webhook notifications enabled: yes")
}

func TestNotifyTestWebhook(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "notify", "test", "--webhook")
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "Operator alerts disabled")
	requireContains(t, out, "Test webhook sent")
	if env.hooks.Load() != 1 {
		t.Fatalf("expected one webhook post, got %d", env.hooks.Load())
	}
}

func TestMissingAPIKey(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIKey("other", "other-key"))

	_, _, err := runCLI(t, env, "--api-key", "wrong", "list")
	if err == nil {
		t.Fatal("expected unauthorized error")
	}
	requireContains(t, err.Error(), "401")

	out, _, err := runCLI(t, env, "--api-key", "other-key", "list")
	if err != nil {
		t.Fatalf("list as other owner: %v", err)
	}
	requireContains(t, out, "No jobs found")
}
