package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"shortcast/internal/logging"
	"shortcast/internal/testsupport"
)

func TestBuildWiresDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	d, err := Build(cfg, store, logging.NewNop(), "test")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	health := d.Health(context.Background())
	if health.Status != "healthy" || health.Version != "test" {
		t.Fatalf("unexpected health %#v", health)
	}
}

func TestBuildRejectsBadTimezone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Webhook.Timezone = "Nowhere/Special"
	store := testsupport.MustOpenStore(t, cfg)
	if _, err := Build(cfg, store, logging.NewNop(), "test"); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := writePIDFile(PIDPath(cfg)); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := ReadPID(cfg)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pid)
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "shortcast-1.log")
	second := filepath.Join(dir, "shortcast-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dir, "shortcast.log"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != second {
		t.Fatalf("expected pointer to %s, got %s", second, target)
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Publisher.AccessToken = ""
	if err := Run(context.Background(), cfg, Options{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunLeavesRunningDaemonFilesWhenLockIsHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })

	const otherPID = "424242\n"
	if err := os.WriteFile(PIDPath(cfg), []byte(otherPID), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	running := filepath.Join(cfg.Paths.LogDir, "shortcast-running.log")
	if err := os.WriteFile(running, []byte("x"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, running); err != nil {
		t.Fatalf("log pointer: %v", err)
	}

	err = Run(context.Background(), cfg, Options{Version: "test"})
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock error, got %v", err)
	}

	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil || string(data) != otherPID {
		t.Fatalf("pid file of the running daemon was touched: %q %v", data, err)
	}
	target, err := os.Readlink(filepath.Join(cfg.Paths.LogDir, "shortcast.log"))
	if err != nil || target != running {
		t.Fatalf("log pointer moved to %q (%v)", target, err)
	}
}

func TestRemoveOwnPIDFileKeepsForeignPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(PIDPath(cfg), []byte("424242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	removeOwnPIDFile(cfg)
	if _, err := os.Stat(PIDPath(cfg)); err != nil {
		t.Fatalf("foreign pid file removed: %v", err)
	}

	if err := writePIDFile(PIDPath(cfg)); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	removeOwnPIDFile(cfg)
	if _, err := os.Stat(PIDPath(cfg)); !os.IsNotExist(err) {
		t.Fatalf("expected own pid file removed, got %v", err)
	}
}
