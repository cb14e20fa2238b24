package syncer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/classify"
	"github.com/chatvault/chatvault/internal/ingest"
	"github.com/chatvault/chatvault/internal/schema"
	"github.com/chatvault/chatvault/internal/store"
)

// TestFullPipeline drives export files through sync, storage, classification,
// and search with the real store underneath.
func TestFullPipeline(t *testing.T) {
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()
	if err := st.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	exportDir := t.TempDir()
	now := time.Now()

	exports := []*schema.Conversation{
		{
			ID:        "conv_python",
			SourceID:  "claude-3",
			Title:     "Python debugging session",
			CreatedAt: now.Add(-2 * time.Hour),
			UpdatedAt: now.Add(-time.Hour),
			Messages: []schema.Message{
				{ID: "p1", Role: schema.RoleUser, Content: "My python code throws an import error, help me debug this function", Timestamp: now.Add(-2 * time.Hour)},
				{ID: "p2", Role: schema.RoleAgent, Content: "Check whether the package is installed and the import path is right", Timestamp: now.Add(-time.Hour)},
			},
		},
		{
			ID:        "conv_recipe",
			SourceID:  "gpt-4",
			Title:     "Dinner ideas",
			Category:  "Creative", // already tagged at the source
			CreatedAt: now.Add(-3 * time.Hour),
			UpdatedAt: now.Add(-90 * time.Minute),
			Messages: []schema.Message{
				{ID: "r1", Role: schema.RoleUser, Content: "Suggest a creative pasta recipe for tonight", Timestamp: now.Add(-3 * time.Hour)},
			},
		},
		{
			ID:        "conv_study",
			SourceID:  "claude-3",
			Title:     "Exam preparation",
			CreatedAt: now.Add(-4 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
			Messages: []schema.Message{
				{ID: "s1", Role: schema.RoleUser, Content: "How should I study for my university research course this semester", Timestamp: now.Add(-4 * time.Hour)},
				{ID: "s2", Role: schema.RoleAgent, Content: "Build a study schedule around the academic topics you find hardest", Timestamp: now.Add(-30 * time.Minute)},
			},
		},
	}
	for _, conv := range exports {
		conv.SetDefaults()
		data, err := json.Marshal(conv)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if err := os.WriteFile(filepath.Join(exportDir, conv.ID+".json"), data, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	classifier, err := classify.New(schema.DefaultRules(), 0.5, &classify.Config{Writer: st})
	if err != nil {
		t.Fatalf("classify.New() failed: %v", err)
	}

	cfg := fastConfig()
	cfg.Classifier = classifier
	coord := New(ingest.NewDirSource(exportDir), st, cfg)

	stats, err := coord.Run(ctx, Options{SinceDays: 7})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if stats.New != 3 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 3 new", stats)
	}
	if stats.Agents != 2 {
		t.Errorf("Agents = %d, want 2", stats.Agents)
	}

	// The pre-tagged conversation keeps its source category
	recipe, err := st.GetConversation(ctx, "conv_recipe")
	if err != nil {
		t.Fatalf("GetConversation() failed: %v", err)
	}
	if recipe.Category != "Creative" {
		t.Errorf("conv_recipe category = %q, want Creative", recipe.Category)
	}

	// The untagged conversations were classified after the run
	python, _ := st.GetConversation(ctx, "conv_python")
	if python.Category != "Technical" {
		t.Errorf("conv_python category = %q, want Technical", python.Category)
	}
	study, _ := st.GetConversation(ctx, "conv_study")
	if study.Category != "Education" {
		t.Errorf("conv_study category = %q, want Education", study.Category)
	}

	// Agent summaries reflect the synced content
	agents, err := st.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents() failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}

	// Search reaches the synced messages with conversation context attached
	results, err := st.SearchMessages(ctx, "pasta", store.SearchFilter{})
	if err != nil {
		t.Fatalf("SearchMessages() failed: %v", err)
	}
	if len(results) != 1 || results[0].ConversationID != "conv_recipe" {
		t.Fatalf("search results = %+v, want the recipe message", results)
	}
	if results[0].ConversationSource != "gpt-4" {
		t.Errorf("result source = %q, want gpt-4", results[0].ConversationSource)
	}

	// A second run over unchanged exports is a pure update pass
	stats, err = coord.Run(ctx, Options{SinceDays: 7})
	if err != nil {
		t.Fatalf("second Run() failed: %v", err)
	}
	if stats.New != 0 || stats.Updated != 3 {
		t.Errorf("second run stats = %+v, want 3 updated", stats)
	}
	count, _ := st.ConversationCount(ctx)
	if count != 3 {
		t.Errorf("count = %d after resync, want 3", count)
	}
}
