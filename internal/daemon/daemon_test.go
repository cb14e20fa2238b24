package daemon

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/ingest"
	"github.com/chatvault/chatvault/internal/schema"
	"github.com/chatvault/chatvault/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

func writeExport(t *testing.T, dir, id string) {
	t.Helper()
	now := time.Now()
	conv := &schema.Conversation{
		ID:        id,
		SourceID:  "claude-3",
		Title:     "Export " + id,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
		Messages: []schema.Message{
			{ID: id + "-m1", ConversationID: id, Role: schema.RoleUser, Content: "hello", Timestamp: now},
		},
		MessageCount: 1,
	}
	data, err := json.Marshal(conv)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SyncInterval = time.Hour // only the immediate pass runs during tests
	cfg.DebounceInterval = 50 * time.Millisecond
	cfg.Limiter = ingest.NewRateLimiter(1000, time.Second, 0, 0)
	cfg.Logger = log.New(os.Stderr, "[daemon-test] ", log.LstdFlags)
	return cfg
}

func TestNew_Validation(t *testing.T) {
	s := openTestStore(t)
	source := ingest.NewDirSource(t.TempDir())

	if _, err := New(nil, source, nil); err == nil {
		t.Error("New() accepted a nil store")
	}
	if _, err := New(s, nil, nil); err == nil {
		t.Error("New() accepted a nil source")
	}
	if _, err := New(s, source, nil); err != nil {
		t.Errorf("New() with defaults failed: %v", err)
	}
}

func TestNew_BadRulesFile(t *testing.T) {
	s := openTestStore(t)
	source := ingest.NewDirSource(t.TempDir())

	rulesPath := filepath.Join(t.TempDir(), "rules.toml")
	if err := os.WriteFile(rulesPath, []byte("[[rules]"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg := testConfig()
	cfg.RulesPath = rulesPath
	if _, err := New(s, source, cfg); err == nil {
		t.Error("New() accepted an unparseable rules file")
	}
}

func TestDaemon_InitialSyncPass(t *testing.T) {
	s := openTestStore(t)
	exportDir := t.TempDir()
	writeExport(t, exportDir, "conv_1")
	writeExport(t, exportDir, "conv_2")

	d, err := New(s, ingest.NewDirSource(exportDir), testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// The immediate pass should land both conversations
	deadline := time.After(5 * time.Second)
	for {
		count, err := s.ConversationCount(context.Background())
		if err != nil {
			t.Fatalf("ConversationCount() failed: %v", err)
		}
		if count == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("daemon synced %d conversations, want 2", count)
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
}

func TestDaemon_RulesReload(t *testing.T) {
	s := openTestStore(t)

	rulesDir := t.TempDir()
	rulesPath := filepath.Join(rulesDir, "rules.toml")
	first := `
[[rules]]
name = "Greetings"
category = "Greetings"
keywords = ["hello"]
confidence = 0.9
`
	if err := os.WriteFile(rulesPath, []byte(first), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg := testConfig()
	cfg.RulesPath = rulesPath

	exportDir := t.TempDir()
	d, err := New(s, ingest.NewDirSource(exportDir), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	// Rewrite the rules and wait past the debounce window
	second := `
[[rules]]
name = "Farewells"
category = "Farewells"
keywords = ["goodbye"]
confidence = 0.9
`
	if err := os.WriteFile(rulesPath, []byte(second), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	d.classifierMu.RLock()
	classifier := d.classifier
	d.classifierMu.RUnlock()

	if _, ok := classifier.Suggest("goodbye for now"); !ok {
		t.Error("classifier not reloaded with the new rules")
	}
	if _, ok := classifier.Suggest("hello there friend"); ok {
		t.Error("classifier still matches the old rules")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
}

func TestDaemon_BadReloadKeepsOldRules(t *testing.T) {
	s := openTestStore(t)

	rulesDir := t.TempDir()
	rulesPath := filepath.Join(rulesDir, "rules.toml")
	good := `
[[rules]]
name = "Greetings"
category = "Greetings"
keywords = ["hello"]
confidence = 0.9
`
	if err := os.WriteFile(rulesPath, []byte(good), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg := testConfig()
	cfg.RulesPath = rulesPath

	d, err := New(s, ingest.NewDirSource(t.TempDir()), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(rulesPath, []byte("[[rules]"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	d.classifierMu.RLock()
	classifier := d.classifier
	d.classifierMu.RUnlock()

	if _, ok := classifier.Suggest("hello there friend"); !ok {
		t.Error("previous rules lost after a failed reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
}
