package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/ingest"
	"github.com/chatvault/chatvault/internal/schema"
)

// fakeSource serves canned conversations with scripted failures
type fakeSource struct {
	mu            sync.Mutex
	conversations map[string]*schema.Conversation
	transientLeft map[string]int // id -> transient failures before success
	permanent     map[string]error
	fetchCounts   map[string]int
	listCalls     int
	blockFetch    chan struct{} // when set, FetchConversation blocks until closed
}

func newFakeSource(ids ...string) *fakeSource {
	src := &fakeSource{
		conversations: make(map[string]*schema.Conversation),
		transientLeft: make(map[string]int),
		permanent:     make(map[string]error),
		fetchCounts:   make(map[string]int),
	}
	now := time.Now()
	for _, id := range ids {
		src.conversations[id] = &schema.Conversation{
			ID:        id,
			SourceID:  "claude-3",
			Title:     "Conversation " + id,
			CreatedAt: now.Add(-time.Hour),
			UpdatedAt: now,
			Messages: []schema.Message{
				{ID: id + "-m1", ConversationID: id, Role: schema.RoleUser, Content: "hello", Timestamp: now},
			},
			MessageCount: 1,
		}
	}
	return src
}

func (f *fakeSource) ListCandidateIDs(ctx context.Context, sourceID string, sinceDays int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	var ids []string
	for id := range f.conversations {
		ids = append(ids, id)
	}
	for id := range f.permanent {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) FetchConversation(ctx context.Context, id string) (*schema.Conversation, error) {
	f.mu.Lock()
	f.fetchCounts[id]++
	block := f.blockFetch
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.permanent[id]; ok {
		return nil, err
	}
	if f.transientLeft[id] > 0 {
		f.transientLeft[id]--
		return nil, ingest.Transient(fmt.Errorf("throttled"))
	}
	conv, ok := f.conversations[id]
	if !ok {
		return nil, ingest.ErrNotFound
	}
	return conv, nil
}

func (f *fakeSource) fetches(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCounts[id]
}

// fakeArchive records upserts in memory
type fakeArchive struct {
	mu     sync.Mutex
	saved  map[string]*schema.Conversation
	failID string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{saved: make(map[string]*schema.Conversation)}
}

func (a *fakeArchive) UpsertConversation(ctx context.Context, conv *schema.Conversation) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if conv.ID == a.failID {
		return false, fmt.Errorf("disk full")
	}
	_, existed := a.saved[conv.ID]
	a.saved[conv.ID] = conv
	return !existed, nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

// fastConfig keeps retry delays short enough for tests
func fastConfig() *Config {
	return &Config{
		Limiter: ingest.NewRateLimiter(1000, time.Second, 0, 0),
		Backoff: Backoff{
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			MaxRetries: 3,
			JitterLow:  0.5,
			JitterHigh: 1.5,
		},
		Logger: log.New(testWriter{}, "", 0),
	}
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRun_NewAndUpdated(t *testing.T) {
	source := newFakeSource("c1", "c2", "c3")
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	stats, err := coord.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.New != 3 || stats.Updated != 0 || stats.Failed != 0 || stats.Total != 3 {
		t.Errorf("first run stats = %+v, want 3 new", stats)
	}
	if stats.Agents != 1 {
		t.Errorf("Agents = %d, want 1", stats.Agents)
	}

	// Second run over the same content reports updates, not new saves
	stats, err = coord.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if stats.New != 0 || stats.Updated != 3 {
		t.Errorf("second run stats = %+v, want 3 updated", stats)
	}
	if archive.count() != 3 {
		t.Errorf("archive holds %d conversations, want 3", archive.count())
	}
}

func TestRun_TransientRetriesThenSucceeds(t *testing.T) {
	source := newFakeSource("flaky")
	source.transientLeft["flaky"] = 2
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	start := time.Now()
	stats, err := coord.Run(context.Background(), Options{ConversationIDs: []string{"flaky"}})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	elapsed := time.Since(start)

	if stats.New != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want the flaky fetch to succeed", stats)
	}
	if got := source.fetches("flaky"); got != 3 {
		t.Errorf("fetch attempts = %d, want 3", got)
	}

	// Two backoff waits at 10ms and 20ms, scaled by jitter no lower than 0.5
	if elapsed < 15*time.Millisecond {
		t.Errorf("run took %v, want at least 15ms of backoff", elapsed)
	}
}

func TestRun_TransientRetriesExhausted(t *testing.T) {
	source := newFakeSource("doomed")
	source.transientLeft["doomed"] = 100
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	stats, err := coord.Run(context.Background(), Options{ConversationIDs: []string{"doomed"}})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.Failed != 1 || stats.Total != 1 {
		t.Errorf("stats = %+v, want 1 failed", stats)
	}
	// Initial attempt plus MaxRetries
	if got := source.fetches("doomed"); got != 4 {
		t.Errorf("fetch attempts = %d, want 4", got)
	}
}

func TestRun_PermanentFailureNoRetry(t *testing.T) {
	source := newFakeSource("good")
	source.permanent["gone"] = ingest.ErrNotFound
	source.permanent["broken"] = fmt.Errorf("%w: bad payload", ingest.ErrMalformed)
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	stats, err := coord.Run(context.Background(), Options{
		ConversationIDs: []string{"gone", "broken", "good"},
	})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if stats.Failed != 2 || stats.New != 1 || stats.Total != 3 {
		t.Errorf("stats = %+v, want 2 failed and 1 new", stats)
	}
	for _, id := range []string{"gone", "broken"} {
		if got := source.fetches(id); got != 1 {
			t.Errorf("permanent failure %s fetched %d times, want 1", id, got)
		}
	}
}

func TestRun_SaveFailureCountedNotRetried(t *testing.T) {
	source := newFakeSource("c1", "c2")
	archive := newFakeArchive()
	archive.failID = "c1"
	coord := New(source, archive, fastConfig())

	stats, err := coord.Run(context.Background(), Options{ConversationIDs: []string{"c1", "c2"}})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if stats.Failed != 1 || stats.New != 1 {
		t.Errorf("stats = %+v, want 1 failed and 1 new", stats)
	}
	// The fetch itself succeeded; the local save failure must not trigger
	// another remote call
	if got := source.fetches("c1"); got != 1 {
		t.Errorf("c1 fetched %d times, want 1", got)
	}
}

func TestRun_CancelBetweenConversations(t *testing.T) {
	source := newFakeSource("c1", "c2", "c3", "c4", "c5")
	archive := newFakeArchive()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	synced := 0
	cfg.OnConversationSynced = func(conv *schema.Conversation, created bool) {
		synced++
		if synced == 2 {
			cancel()
		}
	}
	coord := New(source, archive, cfg)

	stats, err := coord.Run(ctx, Options{ConversationIDs: []string{"c1", "c2", "c3", "c4", "c5"}})
	if err != nil {
		t.Fatalf("Run() returned error on cancellation: %v", err)
	}

	if stats.Total != 2 || stats.New != 2 {
		t.Errorf("stats = %+v, want exactly the 2 processed before the stop", stats)
	}
	if archive.count() != 2 {
		t.Errorf("archive holds %d conversations, want 2", archive.count())
	}
}

func TestRun_SingleRunGuard(t *testing.T) {
	source := newFakeSource("c1")
	block := make(chan struct{})
	source.blockFetch = block
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = coord.Run(ctx, Options{ConversationIDs: []string{"c1"}})
	}()

	// Wait until the first run is inside its fetch
	for i := 0; i < 100 && source.fetches("c1") == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if !coord.Running() {
		t.Fatal("Running() = false while a run is active")
	}

	_, err := coord.Run(ctx, Options{ConversationIDs: []string{"c1"}})
	if !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent Run() err = %v, want ErrSyncInProgress", err)
	}

	close(block)
	<-done

	if coord.Running() {
		t.Error("Running() = true after the run finished")
	}

	// A fresh run is allowed once the first completes
	if _, err := coord.Run(context.Background(), Options{ConversationIDs: []string{"c1"}}); err != nil {
		t.Errorf("Run() after completion failed: %v", err)
	}
}

func TestRun_ExplicitIDsBypassDiscovery(t *testing.T) {
	source := newFakeSource("c1", "c2")
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	_, err := coord.Run(context.Background(), Options{ConversationIDs: []string{"c1"}})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if source.listCalls != 0 {
		t.Errorf("listCalls = %d, want 0 when ids are explicit", source.listCalls)
	}
	if archive.count() != 1 {
		t.Errorf("archive holds %d conversations, want 1", archive.count())
	}
}

func TestRun_EmptyCandidates(t *testing.T) {
	source := newFakeSource()
	archive := newFakeArchive()
	coord := New(source, archive, fastConfig())

	stats, err := coord.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("stats = %+v, want zeros", stats)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   40 * time.Millisecond,
		MaxRetries: 5,
		JitterLow:  0.5,
		JitterHigh: 1.5,
	}

	for attempt := 0; attempt < 6; attempt++ {
		d := b.delay(attempt)
		if d < 5*time.Millisecond {
			t.Errorf("delay(%d) = %v, below the jitter floor", attempt, d)
		}
		if d > 60*time.Millisecond {
			t.Errorf("delay(%d) = %v, above the capped ceiling", attempt, d)
		}
	}

	// Without a jitter span the delay is exact
	exact := Backoff{BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, JitterLow: 1, JitterHigh: 1}
	if d := exact.delay(1); d != 20*time.Millisecond {
		t.Errorf("delay(1) = %v, want 20ms", d)
	}
	if d := exact.delay(4); d != 40*time.Millisecond {
		t.Errorf("delay(4) = %v, want the 40ms cap", d)
	}
}
