package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/server"
)

type staticConfig struct {
	cfg config.Config
}

func (s staticConfig) Get() config.Config { return s.cfg }

// fakeConsole records directives and answers save-all the way a server would.
type fakeConsole struct {
	mu       sync.Mutex
	commands []string
	svc      *Service
	// hold, when set, keeps save-all flush from completing until it is closed.
	hold    chan struct{}
	entered chan struct{}
	silent  bool
}

func (c *fakeConsole) Execute(_ context.Context, command string) error {
	c.mu.Lock()
	c.commands = append(c.commands, command)
	c.mu.Unlock()

	if command != cmdSaveFlush {
		return nil
	}
	if c.entered != nil {
		close(c.entered)
		c.entered = nil
	}
	if c.hold != nil {
		<-c.hold
	}
	if !c.silent {
		c.svc.ObserveInfo(server.Info{Thread: "Server thread", Level: "INFO", Content: "Saved the game"})
	}
	return nil
}

func (c *fakeConsole) count(command string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, got := range c.commands {
		if got == command {
			n++
		}
	}
	return n
}

type fakeSource struct {
	mu      sync.Mutex
	name    string
	player  bool
	replies []string
}

func (s *fakeSource) Name() string   { return s.name }
func (s *fakeSource) IsPlayer() bool { return s.player }
func (s *fakeSource) Reply(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, msg)
}

func (s *fakeSource) got(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.replies, func(r string) bool { return strings.HasPrefix(r, prefix) })
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []string
}

func (b *fakeBroadcaster) Broadcast(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	serverDir := t.TempDir()
	world := filepath.Join(serverDir, "world")
	if err := os.MkdirAll(filepath.Join(world, "region"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, body := range map[string]string{
		"level.dat":        "level",
		"session.lock":     "lock",
		"region/r.0.0.mca": "chunks",
	} {
		if err := os.WriteFile(filepath.Join(world, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	cfg := config.Default()
	cfg.ServerPath = serverDir
	cfg.BackupPath = filepath.Join(t.TempDir(), "perma_backup")
	cfg.CompressionLevel = config.TierSpeed
	return cfg
}

func newTestService(cfg config.Config, console *fakeConsole, opts ...Option) *Service {
	opts = append([]Option{WithConsole(console), WithPollInterval(time.Millisecond)}, opts...)
	svc := NewService(staticConfig{cfg}, opts...)
	console.svc = svc
	return svc
}

func zipCount(t *testing.T, dir string) int {
	t.Helper()
	total, _, err := List(dir, ListAll)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	return total
}

func TestRun_Success(t *testing.T) {
	cfg := testConfig(t)
	console := &fakeConsole{}
	svc := newTestService(cfg, console)
	src := &fakeSource{name: "console"}

	record, err := svc.Run(context.Background(), src, "nightly")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{cmdSaveOff, cmdSaveFlush, cmdSaveOn}
	if !slices.Equal(console.commands, want) {
		t.Errorf("console commands = %v, want %v", console.commands, want)
	}
	if record.Status != OutcomeSuccess || record.Files != 2 {
		t.Errorf("record = %+v, want success with 2 files", record)
	}
	if !strings.HasPrefix(record.Archive, "backup_") || !strings.HasSuffix(record.Archive, ".zip") {
		t.Errorf("archive name = %q", record.Archive)
	}
	if _, err := os.Stat(filepath.Join(cfg.BackupPath, record.Archive)); err != nil {
		t.Errorf("archive not written: %v", err)
	}
	for _, prefix := range []string{"Backing up", "Creating archive", "Backup done in"} {
		if !src.got(prefix) {
			t.Errorf("missing reply starting with %q in %v", prefix, src.replies)
		}
	}

	saved, err := LoadMetadata(cfg.BackupPath)
	if err != nil {
		t.Fatalf("LoadMetadata returned error: %v", err)
	}
	if saved.ID != record.ID || saved.Comment != "nightly" || saved.Status != OutcomeSuccess {
		t.Errorf("stored metadata = %+v", saved)
	}
}

func TestRun_AutoSaveLeftAloneWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.TurnOffAutoSave = false
	console := &fakeConsole{}
	svc := newTestService(cfg, console)

	if _, err := svc.Run(context.Background(), &fakeSource{name: "console"}, ""); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if console.count(cmdSaveOff) != 0 || console.count(cmdSaveOn) != 0 {
		t.Errorf("auto save toggled although disabled: %v", console.commands)
	}
}

func TestStart_RejectsConcurrentRequests(t *testing.T) {
	cfg := testConfig(t)
	hold := make(chan struct{})
	entered := make(chan struct{})
	console := &fakeConsole{hold: hold, entered: entered}
	svc := newTestService(cfg, console)

	first := &fakeSource{name: "console"}
	if err := svc.Start(context.Background(), first, ""); err != nil {
		t.Fatalf("first Start returned error: %v", err)
	}
	<-entered

	second := &fakeSource{name: "Steve", player: true}
	if err := svc.Start(context.Background(), second, ""); !errors.Is(err, ErrBackupInProgress) {
		t.Fatalf("expected ErrBackupInProgress, got %v", err)
	}
	if !second.got("A backup is already running") {
		t.Errorf("rejected requester was not told: %v", second.replies)
	}

	close(hold)
	svc.Wait()

	if got := zipCount(t, cfg.BackupPath); got != 1 {
		t.Errorf("archives = %d, want 1", got)
	}
	if svc.Busy() {
		t.Errorf("service still busy after the backup finished")
	}
}

func TestRun_CancelledHandshakeReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	console := &fakeConsole{silent: true}
	svc := newTestService(cfg, console)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, &fakeSource{name: "console"}, "")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if got := console.count(cmdSaveOn); got != 1 {
		t.Errorf("save-on issued %d times, want 1", got)
	}
	if got := zipCount(t, cfg.BackupPath); got != 0 {
		t.Errorf("archives = %d, want 0", got)
	}

	console.silent = false
	if _, err := svc.Run(context.Background(), &fakeSource{name: "console"}, ""); err != nil {
		t.Fatalf("lock not released after cancellation: %v", err)
	}
}

func TestShutdown_InterruptsHandshake(t *testing.T) {
	cfg := testConfig(t)
	entered := make(chan struct{})
	console := &fakeConsole{silent: true, entered: entered}
	svc := newTestService(cfg, console)
	src := &fakeSource{name: "console"}

	if err := svc.Start(context.Background(), src, ""); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-entered

	if !svc.Shutdown(2 * time.Second) {
		t.Fatal("Shutdown reported a backup still running")
	}
	if !src.got("Plugin unloading") {
		t.Errorf("requester not told about the interruption: %v", src.replies)
	}
	if got := console.count(cmdSaveOn); got != 1 {
		t.Errorf("save-on issued %d times, want 1", got)
	}
	if got := zipCount(t, cfg.BackupPath); got != 0 {
		t.Errorf("archives = %d, want 0", got)
	}
	if err := svc.Start(context.Background(), src, ""); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected new requests to be refused after shutdown, got %v", err)
	}
}

func TestShutdown_TimesOut(t *testing.T) {
	cfg := testConfig(t)
	hold := make(chan struct{})
	entered := make(chan struct{})
	console := &fakeConsole{hold: hold, entered: entered}
	svc := newTestService(cfg, console)

	if err := svc.Start(context.Background(), &fakeSource{name: "console"}, ""); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-entered

	if svc.Shutdown(20 * time.Millisecond) {
		t.Errorf("Shutdown returned true while the backup was blocked")
	}
	close(hold)
	svc.Wait()
}

func TestRun_FailureIsReported(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.BackupPath = filepath.Join(blocker, "backups")
	console := &fakeConsole{}
	svc := newTestService(cfg, console)
	src := &fakeSource{name: "console"}

	record, err := svc.Run(context.Background(), src, "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if record.Status != OutcomeFailed {
		t.Errorf("status = %q, want failed", record.Status)
	}
	if !src.got("Backup failed") && !src.got("Permission error") {
		t.Errorf("failure not reported: %v", src.replies)
	}
	if got := console.count(cmdSaveOn); got != 1 {
		t.Errorf("save-on issued %d times, want 1", got)
	}
	if svc.Busy() {
		t.Errorf("lock held after failure")
	}
}

func TestAnnounce_BroadcastsToPlayers(t *testing.T) {
	cfg := testConfig(t)
	b := &fakeBroadcaster{}
	svc := newTestService(cfg, &fakeConsole{}, WithBroadcaster(b))

	player := &fakeSource{name: "Steve", player: true}
	if _, err := svc.Run(context.Background(), player, ""); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(player.replies) != 0 {
		t.Errorf("player received direct replies on top of broadcasts: %v", player.replies)
	}
	if len(b.msgs) != 3 {
		t.Errorf("broadcasts = %v, want start, creating and done", b.msgs)
	}

	console := &fakeSource{name: "console"}
	if _, err := svc.Run(context.Background(), console, ""); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(console.replies) != 3 {
		t.Errorf("console replies = %v, want the broadcasts echoed", console.replies)
	}
}

func TestRun_OfflineSkipsHandshake(t *testing.T) {
	cfg := testConfig(t)
	svc := NewService(staticConfig{cfg})

	record, err := svc.Run(context.Background(), &fakeSource{name: "cli"}, "")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if record.Status != OutcomeSuccess {
		t.Errorf("status = %q", record.Status)
	}
}

func TestRun_RecordsDurationInMilliseconds(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)
	calls := 0
	clock := func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}
	svc := newTestService(cfg, &fakeConsole{}, WithClock(clock))

	record, err := svc.Run(context.Background(), &fakeSource{name: "console"}, "")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if want := ArchiveName(start); record.Archive != want {
		t.Errorf("archive = %q, want %q", record.Archive, want)
	}
	if record.DurationMs != 1500 || record.Duration() != 1500*time.Millisecond {
		t.Errorf("duration = %dms, want 1500ms", record.DurationMs)
	}

	raw, err := os.ReadFile(filepath.Join(cfg.BackupPath, MetadataFilename))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if got := fields["duration_ms"]; got != float64(1500) {
		t.Errorf("duration_ms = %v, want 1500", got)
	}
}

func TestShutdown_WaitsWhileLockHeld(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(cfg, &fakeConsole{})

	// The lock is taken before the running flag is set.
	if !svc.sem.TryAcquire(1) {
		t.Fatal("semaphore unexpectedly held")
	}
	if svc.Shutdown(20 * time.Millisecond) {
		t.Errorf("Shutdown reported idle while the lock was held")
	}

	svc.sem.Release(1)
	if !svc.Shutdown(20 * time.Millisecond) {
		t.Errorf("Shutdown reported busy after the lock was released")
	}
}
