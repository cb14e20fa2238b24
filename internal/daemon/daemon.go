// Package daemon provides the background process that keeps the archive fresh.
//
// The daemon:
// 1. Runs a sync against the ingest source on a fixed interval
// 2. Watches the category rules file and hot-reloads the classifier on change
// 3. Broadcasts sync and categorization activity to the live dashboard
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/chatvault/chatvault/internal/classify"
	"github.com/chatvault/chatvault/internal/dashboard"
	"github.com/chatvault/chatvault/internal/ingest"
	"github.com/chatvault/chatvault/internal/schema"
	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/syncer"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a sync pass
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a rules file change before
	// reloading, batching rapid editor writes together
	DebounceInterval time.Duration

	// RulesPath is the category rules TOML file to watch. Empty disables
	// watching and uses the built-in rules.
	RulesPath string

	// SinceDays bounds each sync pass's discovery window
	SinceDays int

	// SourceIDs limits sync to specific agents. Empty syncs all.
	SourceIDs []string

	// MinConfidence is the categorization acceptance threshold
	MinConfidence float64

	// Limiter paces ingest calls across all sync passes
	Limiter *ingest.RateLimiter

	// DashboardPort enables the live dashboard when non-zero
	DashboardPort int

	// LogPath enables rotating file logging when set
	LogPath string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     30 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		SinceDays:        7,
		MinConfidence:    classify.DefaultMinConfidence,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates periodic sync, rules watching, and the dashboard.
type Daemon struct {
	store  *store.Store
	source ingest.Source
	config *Config
	logger *log.Logger

	watcher *fsnotify.Watcher

	classifierMu sync.RWMutex
	classifier   *classify.Classifier

	server  *dashboard.Server
	handler *dashboard.Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. The store and source are required.
func New(st *store.Store, source ingest.Source, config *Config) (*Daemon, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Minute
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.LogPath != "" {
		logger = log.New(&lumberjack.Logger{
			Filename:   config.LogPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		store:  st,
		source: source,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := d.reloadClassifier(); err != nil {
		cancel()
		return nil, err
	}

	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon runs one sync immediately, then on every tick of SyncInterval.
// This blocks until ctx is cancelled or startup fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	if d.config.DashboardPort > 0 {
		d.server = dashboard.NewServer(&dashboard.Config{
			Port:   d.config.DashboardPort,
			Logger: d.logger,
		})
		if err := d.server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		d.handler = dashboard.NewHandler(d.server, d.logger)
	}

	if d.config.RulesPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		d.watcher = watcher

		// Watch the directory, not the file: editors replace files on save,
		// which drops a watch placed on the file itself.
		if err := watcher.Add(filepath.Dir(d.config.RulesPath)); err != nil {
			return fmt.Errorf("failed to watch rules directory: %w", err)
		}
		d.logger.Printf("Watching rules file: %s", d.config.RulesPath)

		d.wg.Add(1)
		go d.watchRules()
	}

	d.wg.Add(1)
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for background work to finish.
func (d *Daemon) Stop() error {
	d.cancel()

	if d.watcher != nil {
		_ = d.watcher.Close()
	}

	d.wg.Wait()

	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Printf("Dashboard stop error: %v", err)
		}
	}

	d.logger.Println("Daemon stopped")
	return nil
}

// syncLoop runs a sync pass immediately and then on every tick.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	d.runSync()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.runSync()
		}
	}
}

// runSync executes one sync pass with the current classifier.
func (d *Daemon) runSync() {
	d.classifierMu.RLock()
	classifier := d.classifier
	d.classifierMu.RUnlock()

	cfg := &syncer.Config{
		Limiter:    d.config.Limiter,
		Classifier: classifier,
		Logger:     d.logger,
	}
	if d.handler != nil {
		cfg.OnProgress = d.handler.OnSyncProgress
	}

	coord := syncer.New(d.source, d.store, cfg)

	start := time.Now()
	stats, err := coord.Run(d.ctx, syncer.Options{
		SourceIDs: d.config.SourceIDs,
		SinceDays: d.config.SinceDays,
	})
	if err != nil {
		d.logger.Printf("Sync pass failed: %v", err)
		return
	}

	if d.handler != nil {
		d.handler.OnSyncComplete(stats, time.Since(start))
		d.broadcastArchiveStats()
	}
}

// broadcastArchiveStats pushes current archive totals to dashboard clients.
func (d *Daemon) broadcastArchiveStats() {
	count, err := d.store.ConversationCount(d.ctx)
	if err != nil {
		d.logger.Printf("Failed to count conversations: %v", err)
		return
	}
	agents, err := d.store.ListAgents(d.ctx)
	if err != nil {
		d.logger.Printf("Failed to list agents: %v", err)
		return
	}
	d.handler.UpdateStats(count, len(agents))
}

// watchRules debounces rules file events and hot-reloads the classifier.
func (d *Daemon) watchRules() {
	defer d.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	target := filepath.Clean(d.config.RulesPath)

	for {
		select {
		case <-d.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(d.config.DebounceInterval)
				timerC = timer.C
			} else {
				timer.Reset(d.config.DebounceInterval)
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Printf("Watcher error: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := d.reloadClassifier(); err != nil {
				d.logger.Printf("Rules reload failed, keeping previous rules: %v", err)
				continue
			}
			d.logger.Println("Category rules reloaded")
		}
	}
}

// reloadClassifier rebuilds the classifier from the rules file, or from the
// built-in defaults when no file is configured.
func (d *Daemon) reloadClassifier() error {
	rules := schema.DefaultRules()
	if d.config.RulesPath != "" {
		loaded, err := schema.LoadRulesFile(d.config.RulesPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load rules: %w", err)
			}
			// No file yet: fall back to defaults until one appears.
		} else {
			rules = loaded
		}
	}

	cfg := &classify.Config{
		Writer: d.store,
		Logger: d.logger,
	}
	if d.handler != nil {
		cfg.OnProgress = d.handler.OnClassifyProgress
	}

	classifier, err := classify.New(rules, d.config.MinConfidence, cfg)
	if err != nil {
		return err
	}

	d.classifierMu.Lock()
	d.classifier = classifier
	d.classifierMu.Unlock()
	return nil
}
