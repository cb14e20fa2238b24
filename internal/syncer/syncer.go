// Package syncer reconciles the local archive with a remote ingest source.
//
// One run walks a list of candidate conversation ids strictly in order,
// fetching and saving each under a shared rate budget. Transient fetch
// failures retry in place with exponential backoff and jitter; permanent
// failures and store write failures are counted and skipped. A run is
// cooperatively cancellable between ids and always reports accurate partial
// statistics.
//
// Only one run may be active per coordinator at a time; the rate limiter's
// window is the single piece of mutable shared state within a run and is
// never shared across runs.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"sync/atomic"
	"time"

	"github.com/chatvault/chatvault/internal/classify"
	"github.com/chatvault/chatvault/internal/ingest"
	"github.com/chatvault/chatvault/internal/schema"
)

// ErrSyncInProgress is returned when Run is called while another run is
// still active on the same coordinator.
var ErrSyncInProgress = errors.New("syncer: a sync run is already in progress")

// Archive is the slice of the conversation store the coordinator writes to.
type Archive interface {
	UpsertConversation(ctx context.Context, conv *schema.Conversation) (created bool, err error)
}

// Progress is a run observability update.
type Progress struct {
	Percent int
	Status  string
}

// Backoff configures the retry policy for transient fetch failures.
// Delay for attempt n is BaseDelay*2^n capped at MaxDelay, scaled by a
// random factor in [JitterLow, JitterHigh].
type Backoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	JitterLow  float64
	JitterHigh float64
}

// DefaultBackoff mirrors the conservative policy used against the remote
// service: 5s doubling to a 60s cap, three retries, +/-50% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:  5 * time.Second,
		MaxDelay:   60 * time.Second,
		MaxRetries: 3,
		JitterLow:  0.5,
		JitterHigh: 1.5,
	}
}

// delay computes the jittered backoff for a zero-based attempt number.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.BaseDelay << attempt
	if d > b.MaxDelay || d <= 0 {
		d = b.MaxDelay
	}
	lo, hi := b.JitterLow, b.JitterHigh
	if hi <= lo {
		return d
	}
	factor := lo + rand.Float64()*(hi-lo)
	return time.Duration(float64(d) * factor)
}

// Options configures one run.
type Options struct {
	// SourceIDs is the set of agents to discover conversations for when no
	// explicit id list is given.
	SourceIDs []string

	// ConversationIDs bypasses discovery entirely.
	ConversationIDs []string

	// SinceDays bounds discovery when ConversationIDs is empty (default 7).
	SinceDays int
}

// DefaultSinceDays bounds discovery when the caller doesn't say.
const DefaultSinceDays = 7

// Config holds coordinator collaborators and policy.
type Config struct {
	// Limiter paces calls to the ingest source. Nil gets a conservative
	// default of 8 calls per minute with a short inter-call pause.
	Limiter *ingest.RateLimiter

	// Backoff is the transient-failure retry policy. Zero value gets
	// DefaultBackoff.
	Backoff Backoff

	// Classifier, when set, categorizes freshly-synced conversations that
	// arrived without a category once the run completes.
	Classifier *classify.Classifier

	// OnProgress receives percentage-complete updates during the run.
	OnProgress func(Progress)

	// OnConversationSynced is invoked after each successful save.
	OnConversationSynced func(conv *schema.Conversation, created bool)

	// Logger for run activity. Nil gets a stderr logger.
	Logger *log.Logger
}

// Coordinator drives sync runs against one source and one archive.
type Coordinator struct {
	source  ingest.Source
	archive Archive

	limiter    *ingest.RateLimiter
	backoff    Backoff
	classifier *classify.Classifier

	onProgress func(Progress)
	onSynced   func(*schema.Conversation, bool)
	logger     *log.Logger

	running atomic.Bool
}

// New creates a coordinator. The source and archive are required.
func New(source ingest.Source, archive Archive, cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = &Config{}
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ingest.NewRateLimiter(8, time.Minute, 100*time.Millisecond, 500*time.Millisecond)
	}

	backoff := cfg.Backoff
	if backoff.BaseDelay == 0 {
		backoff = DefaultBackoff()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Coordinator{
		source:     source,
		archive:    archive,
		limiter:    limiter,
		backoff:    backoff,
		classifier: cfg.Classifier,
		onProgress: cfg.OnProgress,
		onSynced:   cfg.OnConversationSynced,
		logger:     logger,
	}
}

// Running reports whether a run is currently active.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run executes one sync pass and returns its statistics.
//
// Candidates come from Options.ConversationIDs when given, otherwise from
// listing each configured source over the SinceDays window. Conversations
// are processed strictly in listing order. Cancelling the context between
// ids stops the run early; the returned stats then cover exactly the ids
// processed before the stop, and no error is reported for the stop itself.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*schema.SyncRunStats, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer c.running.Store(false)

	stats := &schema.SyncRunStats{}

	c.progress(0, "Listing conversations...")
	ids, err := c.listCandidates(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		c.progress(100, "No conversations found")
		return stats, nil
	}

	c.logger.Printf("Starting sync of %d conversations", len(ids))

	agents := make(map[string]struct{})
	var synced []*schema.Conversation

	for i, id := range ids {
		if ctx.Err() != nil {
			c.logger.Printf("Sync stopped after %d of %d", i, len(ids))
			break
		}

		c.progress(i*100/len(ids), fmt.Sprintf("Syncing conversation %d/%d", i+1, len(ids)))

		conv, err := c.fetchWithRetry(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-fetch: don't count the aborted id.
				c.logger.Printf("Sync stopped after %d of %d", i, len(ids))
				break
			}
			stats.Failed++
			stats.Total++
			c.logger.Printf("WARNING: failed to fetch %s: %v", id, err)
			continue
		}

		created, err := c.archive.UpsertConversation(ctx, conv)
		if err != nil {
			// A store write error is a local environment problem, not a
			// remote one: count it failed, report it, never retry the fetch.
			stats.Failed++
			stats.Total++
			c.logger.Printf("ERROR: local save failed for %s: %v", id, err)
			continue
		}

		if created {
			stats.New++
		} else {
			stats.Updated++
		}
		stats.Total++
		agents[conv.SourceID] = struct{}{}

		if conv.Category == "" {
			synced = append(synced, conv)
		}
		if c.onSynced != nil {
			c.onSynced(conv, created)
		}
	}

	stats.Agents = len(agents)

	if c.classifier != nil && len(synced) > 0 && ctx.Err() == nil {
		c.progress(100, "Categorizing synced conversations...")
		if _, err := c.classifier.ClassifyBatch(ctx, synced); err != nil {
			c.logger.Printf("WARNING: post-sync classification failed: %v", err)
		}
	}

	c.progress(100, fmt.Sprintf("Sync complete: %d new, %d updated, %d failed",
		stats.New, stats.Updated, stats.Failed))
	c.logger.Printf("Sync complete: new=%d updated=%d failed=%d total=%d agents=%d",
		stats.New, stats.Updated, stats.Failed, stats.Total, stats.Agents)

	return stats, nil
}

// listCandidates resolves the ordered id list for a run.
func (c *Coordinator) listCandidates(ctx context.Context, opts Options) ([]string, error) {
	if len(opts.ConversationIDs) > 0 {
		return opts.ConversationIDs, nil
	}

	sinceDays := opts.SinceDays
	if sinceDays <= 0 {
		sinceDays = DefaultSinceDays
	}

	sources := opts.SourceIDs
	if len(sources) == 0 {
		sources = []string{""} // aggregate listing across all sources
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, sourceID := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		listed, err := c.source.ListCandidateIDs(ctx, sourceID, sinceDays)
		if err != nil {
			c.logger.Printf("WARNING: listing failed for source %q: %v", sourceID, err)
			continue
		}
		for _, id := range listed {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fetchWithRetry pulls one conversation, retrying transient failures in
// place with backoff. Permanent failures return immediately.
func (c *Coordinator) fetchWithRetry(ctx context.Context, id string) (*schema.Conversation, error) {
	var lastErr error
	for attempt := 0; attempt <= c.backoff.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		conv, err := c.source.FetchConversation(ctx, id)
		if err == nil {
			return conv, nil
		}
		lastErr = err

		if !ingest.IsTransient(err) {
			return nil, err
		}
		if attempt == c.backoff.MaxRetries {
			break
		}

		delay := c.backoff.delay(attempt)
		c.logger.Printf("Transient failure for %s (attempt %d/%d), retrying in %v: %v",
			id, attempt+1, c.backoff.MaxRetries+1, delay.Round(time.Millisecond), err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Coordinator) progress(percent int, status string) {
	if c.onProgress != nil {
		c.onProgress(Progress{Percent: percent, Status: status})
	}
}
