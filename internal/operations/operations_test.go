package operations

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kebairia/zipbackup/internal/backup"
	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
	"github.com/kebairia/zipbackup/internal/server"
)

// fakeController records directives and prints "Saved the game" after a flush.
type fakeController struct {
	mu       sync.Mutex
	commands []string
	op       *Operator
}

func (c *fakeController) Execute(ctx context.Context, command string) error {
	c.mu.Lock()
	c.commands = append(c.commands, command)
	c.mu.Unlock()
	if command == "save-all flush" && c.op != nil {
		c.op.HandleLine(ctx, "[12:00:00] [Server thread/INFO]: Saved the game")
	}
	return nil
}

func (c *fakeController) Run(ctx context.Context, _ server.LineHandler) error {
	<-ctx.Done()
	return nil
}

func (c *fakeController) Close() error { return nil }

func (c *fakeController) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func (c *fakeController) tellraws(target string) []string {
	var out []string
	for _, cmd := range c.sent() {
		if strings.HasPrefix(cmd, "tellraw "+target+" ") {
			out = append(out, cmd)
		}
	}
	return out
}

type fixture struct {
	op    *Operator
	store *config.Store
	out   *bytes.Buffer
	root  string
}

func newFixture(t *testing.T, ctrl server.Controller, mutate func(*config.Config)) fixture {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.BackupPath = filepath.Join(root, "backups")
	cfg.ServerPath = filepath.Join(root, "server")
	cfg.AutoBackupEnabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	path := filepath.Join(root, "config", "zip_backup.json")
	if err := config.Write(path, cfg); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store := config.NewStore(path, cfg)
	out := &bytes.Buffer{}
	op := NewOperator(store, ctrl,
		WithLogger(logger.Nop()),
		WithOutput(out),
		WithPollInterval(time.Millisecond),
	)
	t.Cleanup(func() {
		op.Unload()
		op.Stop(5 * time.Second)
	})
	return fixture{op: op, store: store, out: out, root: root}
}

func (f fixture) dispatch(t *testing.T, line string) {
	t.Helper()
	_ = f.op.Dispatch(context.Background(), line)
}

func writeWorld(t *testing.T, serverPath string) {
	t.Helper()
	world := filepath.Join(serverPath, "world", "region")
	if err := os.MkdirAll(world, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(world, "r.0.0.mca"), []byte("chunk data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(serverPath, "world", "session.lock"), []byte("lock"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSetIntervalReschedules(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.AutoBackupEnabled = true })
	if err := f.op.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	f.dispatch(t, "!!zb time interval 2 h")
	job, ok := f.op.scheduler.Active()
	if !ok {
		t.Fatal("no job installed")
	}
	if job.Trigger.Interval != 7200*time.Second {
		t.Errorf("interval = %s, want 2h", job.Trigger.Interval)
	}

	f.dispatch(t, "!!zb time interval 2 d")
	job, _ = f.op.scheduler.Active()
	if job.Trigger.Interval != 172800*time.Second {
		t.Errorf("interval = %s, want 48h", job.Trigger.Interval)
	}

	got := f.store.Get()
	if got.AutoBackupInterval != 2 || got.AutoBackupUnit != config.UnitDays || got.AutoBackupMode != config.ModeInterval {
		t.Errorf("persisted %d%s %s", got.AutoBackupInterval, got.AutoBackupUnit, got.AutoBackupMode)
	}
	reloaded, _, err := config.Load(f.store.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AutoBackupUnit != config.UnitDays {
		t.Errorf("file unit = %q, want d", reloaded.AutoBackupUnit)
	}
	if !strings.Contains(f.out.String(), "Auto backup interval set to 2d") {
		t.Errorf("missing reply in %q", f.out.String())
	}
}

func TestSetIntervalRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil, nil)
	before, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatal(err)
	}

	f.dispatch(t, "!!zb time interval 2 w")
	f.dispatch(t, "!!zb time interval 0 h")

	after, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("config file changed after rejected input")
	}
	out := f.out.String()
	for _, want := range []string{"Invalid time unit", "The interval must be a positive number"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestSetIntervalRejectsOverflow(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.AutoBackupEnabled = true })
	if err := f.op.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.dispatch(t, "!!zb time interval 2 h")
	before, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatal(err)
	}
	f.out.Reset()

	f.dispatch(t, "!!zb time interval 200000000 d")

	after, err := os.ReadFile(f.store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("config file changed after an interval that overflows")
	}
	got := f.store.Get()
	if got.AutoBackupInterval != 2 || got.AutoBackupUnit != config.UnitHours {
		t.Errorf("in-memory interval = %d%s, want 2h", got.AutoBackupInterval, got.AutoBackupUnit)
	}
	job, ok := f.op.scheduler.Active()
	if !ok || job.Trigger.Interval != 2*time.Hour {
		t.Errorf("job interval = %s, want 2h", job.Trigger.Interval)
	}
	out := f.out.String()
	if strings.Contains(out, "Auto backup interval set to") {
		t.Errorf("overflowing interval was acknowledged: %q", out)
	}
	if !strings.Contains(out, "The interval is too long") {
		t.Errorf("missing rejection in %q", out)
	}
}

func TestSetDateAndChangeMode(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.AutoBackupEnabled = true })
	if err := f.op.Load(); err != nil {
		t.Fatal(err)
	}

	f.dispatch(t, "!!zb time date weekly")
	job, ok := f.op.scheduler.Active()
	if !ok || job.Trigger.Mode != config.ModeDate || job.Trigger.Cadence != config.CadenceWeekly {
		t.Fatalf("job = %+v, %v", job.Trigger, ok)
	}

	f.dispatch(t, "!!zb time change date")
	if !strings.Contains(f.out.String(), "Already in date mode") {
		t.Errorf("missing already-in-mode reply in %q", f.out.String())
	}

	f.dispatch(t, "!!zb time change interval")
	job, _ = f.op.scheduler.Active()
	if job.Trigger.Mode != config.ModeInterval {
		t.Errorf("mode = %s, want interval", job.Trigger.Mode)
	}
	if f.store.Get().AutoBackupDateType != config.CadenceWeekly {
		t.Error("cadence should be kept when switching modes")
	}
}

func TestEnableDisable(t *testing.T) {
	f := newFixture(t, nil, nil)
	if err := f.op.Load(); err != nil {
		t.Fatal(err)
	}
	if f.op.scheduler.Enabled() {
		t.Fatal("scheduler enabled before time enable")
	}

	f.dispatch(t, "!!zb time enable")
	if !f.op.scheduler.Enabled() || !f.store.Get().AutoBackupEnabled {
		t.Fatal("time enable did not start the scheduler")
	}
	if _, ok := f.op.scheduler.NextRun(); !ok {
		t.Error("no next run after enable")
	}

	f.dispatch(t, "!!zb time disable")
	if f.op.scheduler.Enabled() || f.store.Get().AutoBackupEnabled {
		t.Fatal("time disable did not stop the scheduler")
	}

	// Changing the schedule while disabled only persists it.
	f.dispatch(t, "!!zb time interval 5 m")
	if f.op.scheduler.Enabled() {
		t.Error("interval change enabled the scheduler")
	}
}

func TestSetCompressionLevel(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.dispatch(t, "!!zb ziplevel speed")
	if got := f.store.Get().CompressionLevel; got != config.TierSpeed {
		t.Errorf("tier = %q, want speed", got)
	}
	f.dispatch(t, "!!zb ziplevel fast")
	if got := f.store.Get().CompressionLevel; got != config.TierSpeed {
		t.Errorf("tier = %q after invalid input, want speed", got)
	}
	if !strings.Contains(f.out.String(), "Invalid compression level") {
		t.Errorf("missing rejection in %q", f.out.String())
	}
}

func TestList(t *testing.T) {
	f := newFixture(t, nil, nil)
	dir := f.store.Get().BackupPath
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"backup_a.zip", "backup_b.zip", "backup_c.zip"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, make([]byte, (i+1)*1024*1024), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := f.op.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"3 backups in total", "1. backup_c.zip 3.0MB", "2. backup_b.zip 2.0MB"}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("List(2) = %q, want %q", lines, want)
	}

	lines, err = f.op.List(backup.ListAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 4 {
		t.Errorf("List(all) returned %d lines, want 4", len(lines))
	}

	f.out.Reset()
	f.dispatch(t, "!!zb list -1")
	if got := strings.TrimSpace(f.out.String()); got != "3 backups in total" {
		t.Errorf("list -1 replied %q, want only the total", got)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil, nil)
	stats := strings.Join(f.op.Stats(), "\n")
	for _, want := range []string{"Auto backup: disabled", "Mode: interval", "Interval: 3600s", "Compression level: best ratio (lzma)"} {
		if !strings.Contains(stats, want) {
			t.Errorf("stats missing %q:\n%s", want, stats)
		}
	}
	if strings.Contains(stats, "Next backup") {
		t.Errorf("disabled schedule reported a next run:\n%s", stats)
	}
}

func TestPlayerMakeBackup(t *testing.T) {
	ctrl := &fakeController{}
	f := newFixture(t, ctrl, func(c *config.Config) {
		c.Permissions = map[string]int{"steve": 2}
	})
	ctrl.op = f.op
	writeWorld(t, f.store.Get().ServerPath)

	f.op.HandleLine(context.Background(), "[12:00:00] [Server thread/INFO]: <Steve> !!zb make before update")
	f.op.backups.Wait()

	total, archives, err := backup.List(f.store.Get().BackupPath, backup.ListAll)
	if err != nil || total != 1 {
		t.Fatalf("List = %d, %v", total, err)
	}
	meta, err := backup.LoadMetadata(f.store.Get().BackupPath)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta.Archive != archives[0].Name || meta.Requester != "Steve" || meta.Comment != "before update" {
		t.Errorf("metadata = %+v", meta)
	}

	sent := ctrl.sent()
	order := []string{"save-off", "save-all flush", "save-on"}
	idx := 0
	for _, cmd := range sent {
		if idx < len(order) && cmd == order[idx] {
			idx++
		}
	}
	if idx != len(order) {
		t.Errorf("directives out of order: %q", sent)
	}
	if len(ctrl.tellraws(server.AllPlayers)) == 0 {
		t.Error("backup was not announced to all players")
	}
}

func TestPlayerPermissionDenied(t *testing.T) {
	ctrl := &fakeController{}
	f := newFixture(t, ctrl, nil)
	ctrl.op = f.op

	f.op.HandleLine(context.Background(), "[12:00:00] [Server thread/INFO]: <Alex> !!zb make")
	f.op.backups.Wait()

	replies := ctrl.tellraws("Alex")
	if len(replies) != 1 || !strings.Contains(replies[0], "Permission denied") {
		t.Errorf("replies to Alex = %q", replies)
	}
	if _, err := os.Stat(f.store.Get().BackupPath); err == nil {
		if total, _, _ := backup.List(f.store.Get().BackupPath, backup.ListAll); total != 0 {
			t.Errorf("%d archives written after denial", total)
		}
	}
}

func TestAutoBackupFire(t *testing.T) {
	ctrl := &fakeController{}
	f := newFixture(t, ctrl, nil)
	ctrl.op = f.op
	writeWorld(t, f.store.Get().ServerPath)

	if err := f.op.autoBackup(context.Background()); err != nil {
		t.Fatalf("autoBackup: %v", err)
	}
	f.op.backups.Wait()

	all := ctrl.tellraws(server.AllPlayers)
	if len(all) == 0 || !strings.Contains(all[0], msgAutoBackup) {
		t.Errorf("broadcasts = %q", all)
	}
	if total, _, _ := backup.List(f.store.Get().BackupPath, backup.ListAll); total != 1 {
		t.Errorf("archives = %d, want 1", total)
	}
}

func TestHandleConsole(t *testing.T) {
	ctrl := &fakeController{}
	f := newFixture(t, ctrl, nil)

	f.op.HandleConsole(context.Background(), "say hello")
	f.op.HandleConsole(context.Background(), "   ")
	f.op.HandleConsole(context.Background(), "!!zb stats")

	sent := ctrl.sent()
	if len(sent) != 1 || sent[0] != "say hello" {
		t.Errorf("forwarded = %q, want [say hello]", sent)
	}
	if !strings.Contains(f.out.String(), "[zip_backup] Auto backup: disabled") {
		t.Errorf("stats not written to console: %q", f.out.String())
	}

	offline := newFixture(t, nil, nil)
	offline.op.HandleConsole(context.Background(), "say hello")
	if !strings.Contains(offline.out.String(), "No server attached") {
		t.Errorf("offline console reply = %q", offline.out.String())
	}
}

func TestRunBackupOffline(t *testing.T) {
	f := newFixture(t, nil, func(c *config.Config) { c.CompressionLevel = config.TierSpeed })
	writeWorld(t, f.store.Get().ServerPath)

	meta, err := f.op.RunBackup(context.Background(), "manual")
	if err != nil {
		t.Fatalf("RunBackup: %v", err)
	}
	if meta.Status != backup.OutcomeSuccess || meta.Comment != "manual" {
		t.Errorf("metadata = %+v", meta)
	}
	if _, err := os.Stat(filepath.Join(f.store.Get().BackupPath, meta.Archive)); err != nil {
		t.Errorf("archive missing: %v", err)
	}
}
