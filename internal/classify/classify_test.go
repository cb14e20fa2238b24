package classify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/schema"
)

func testRules() []schema.CategoryRule {
	return []schema.CategoryRule{
		{
			Name:       "Technical",
			Category:   "Technical",
			Keywords:   []string{"code", "python", "debug", "function"},
			Pattern:    `\b(def|import|func)\b`,
			Confidence: 0.7,
			Enabled:    true,
		},
		{
			Name:       "Cooking",
			Category:   "Cooking",
			Keywords:   []string{"recipe", "bake", "oven", "flour"},
			Confidence: 0.7,
			Enabled:    true,
		},
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	return diff < 1e-9 && diff > -1e-9
}

func newTestClassifier(t *testing.T, minConfidence float64, cfg *Config) *Classifier {
	t.Helper()
	c, err := New(testRules(), minConfidence, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func TestNew_ConfigurationErrors(t *testing.T) {
	if _, err := New(nil, 0.5, nil); err == nil {
		t.Error("New() accepted an empty rule set")
	}

	disabled := testRules()
	for i := range disabled {
		disabled[i].Enabled = false
	}
	if _, err := New(disabled, 0.5, nil); err == nil {
		t.Error("New() accepted a rule set with nothing enabled")
	}

	if _, err := New(testRules(), 1.5, nil); err == nil {
		t.Error("New() accepted threshold above 1")
	}

	bad := testRules()
	bad[0].Pattern = `(unclosed`
	if _, err := New(bad, 0.5, nil); err == nil {
		t.Error("New() accepted an uncompilable pattern")
	}
}

func TestSuggest_PatternOutranksKeywords(t *testing.T) {
	c := newTestClassifier(t, 0.5, nil)

	// The pattern hit awards base confidence plus the bonus
	s, ok := c.Suggest("here is some text with def inside it")
	if !ok {
		t.Fatal("Suggest() rejected a pattern match")
	}
	if s.Category != "Technical" {
		t.Errorf("category = %q, want Technical", s.Category)
	}
	if !almostEqual(s.Confidence, 0.9) {
		t.Errorf("confidence = %v, want 0.9", s.Confidence)
	}

	// Pattern matching is case-insensitive
	s2, ok := c.Suggest("DEF at the start")
	if !ok || s2.Confidence != s.Confidence {
		t.Error("pattern match should be case-insensitive")
	}
}

func TestSuggest_KeywordScoring(t *testing.T) {
	c := newTestClassifier(t, 0.1, nil)

	// Two of four cooking keywords: base 2/4 = 0.5, and the density bonus
	// saturates at its 0.3 cap for text this short
	text := "this recipe needs you to bake it for an hour today"
	s, ok := c.Suggest(text)
	if !ok {
		t.Fatal("Suggest() rejected a keyword match")
	}
	if s.Category != "Cooking" {
		t.Errorf("category = %q, want Cooking", s.Category)
	}
	if !almostEqual(s.Confidence, 0.8) {
		t.Errorf("confidence = %v, want 0.8", s.Confidence)
	}
}

func TestSuggest_Deterministic(t *testing.T) {
	c := newTestClassifier(t, 0.1, nil)
	text := "python code with a recipe for debug flour"

	first, okFirst := c.Suggest(text)
	for i := 0; i < 10; i++ {
		got, ok := c.Suggest(text)
		if ok != okFirst || got != first {
			t.Fatalf("run %d: Suggest() = %+v/%v, first run %+v/%v", i, got, ok, first, okFirst)
		}
	}
}

func TestSuggest_Threshold(t *testing.T) {
	c := newTestClassifier(t, 0.95, nil)

	// One keyword out of four scores well below 0.95
	if _, ok := c.Suggest("long discussion that mentions python once among many other words here"); ok {
		t.Error("Suggest() accepted a score below the threshold")
	}
}

func TestSuggest_NoMatch(t *testing.T) {
	c := newTestClassifier(t, 0.1, nil)

	if _, ok := c.Suggest("completely unrelated prose about gardening"); ok {
		t.Error("Suggest() matched text with no rule signal")
	}
	if _, ok := c.Suggest(""); ok {
		t.Error("Suggest() matched empty text")
	}
}

func TestSuggest_TieGoesToFirstRule(t *testing.T) {
	rules := []schema.CategoryRule{
		{Name: "First", Category: "First", Keywords: []string{"shared"}, Confidence: 0.7, Enabled: true},
		{Name: "Second", Category: "Second", Keywords: []string{"shared"}, Confidence: 0.7, Enabled: true},
	}
	c, err := New(rules, 0.1, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	s, ok := c.Suggest("text containing shared keyword")
	if !ok {
		t.Fatal("Suggest() rejected the match")
	}
	if s.Category != "First" {
		t.Errorf("tie went to %q, want First", s.Category)
	}
}

// memWriter records category assignments, optionally failing specific ids
type memWriter struct {
	assigned map[string]string
	failID   string
}

func (w *memWriter) UpdateCategory(ctx context.Context, id, category string) error {
	if id == w.failID {
		return fmt.Errorf("simulated write failure")
	}
	if w.assigned == nil {
		w.assigned = make(map[string]string)
	}
	w.assigned[id] = category
	return nil
}

func batchConversation(id, category, content string) *schema.Conversation {
	now := time.Now()
	return &schema.Conversation{
		ID:        id,
		SourceID:  "claude-3",
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []schema.Message{
			{ID: id + "-m1", ConversationID: id, Role: schema.RoleUser, Content: content, Timestamp: now},
		},
		MessageCount: 1,
	}
}

func TestClassifyBatch_Counts(t *testing.T) {
	writer := &memWriter{failID: "failing"}
	c := newTestClassifier(t, 0.5, &Config{Writer: writer})

	conversations := []*schema.Conversation{
		batchConversation("tech", "", "import python code and debug the function"),
		batchConversation("already", "Technical", "import python code and debug the function"),
		batchConversation("nomatch", "", "nothing relevant here at all"),
		batchConversation("failing", "", "import python code and debug the function"),
		nil,
	}

	stats, err := c.ClassifyBatch(context.Background(), conversations)
	if err != nil {
		t.Fatalf("ClassifyBatch() failed: %v", err)
	}

	if stats.Categorized != 1 {
		t.Errorf("Categorized = %d, want 1", stats.Categorized)
	}
	if stats.Unchanged != 2 {
		t.Errorf("Unchanged = %d, want 2", stats.Unchanged)
	}
	if stats.Failed != 2 {
		t.Errorf("Failed = %d, want 2", stats.Failed)
	}
	if stats.Total != 5 {
		t.Errorf("Total = %d, want 5", stats.Total)
	}

	if writer.assigned["tech"] != "Technical" {
		t.Errorf("tech assigned %q, want Technical", writer.assigned["tech"])
	}
	if _, ok := writer.assigned["already"]; ok {
		t.Error("unchanged conversation was written")
	}
}

func TestClassifyBatch_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	processed := 0
	writer := &memWriter{}
	c := newTestClassifier(t, 0.5, &Config{
		Writer: writer,
		OnResult: func(id, category string, confidence float64) {
			processed++
			if processed == 2 {
				cancel()
			}
		},
	})

	var conversations []*schema.Conversation
	for i := 0; i < 5; i++ {
		conversations = append(conversations,
			batchConversation(fmt.Sprintf("c%d", i), "", "import python code and debug the function"))
	}

	stats, err := c.ClassifyBatch(ctx, conversations)
	if err != nil {
		t.Fatalf("ClassifyBatch() failed: %v", err)
	}

	// Cancelled after the second item: stats cover exactly what was processed
	if stats.Total != 2 || stats.Categorized != 2 {
		t.Errorf("stats = %+v, want Total=2 Categorized=2", stats)
	}
	if len(writer.assigned) != 2 {
		t.Errorf("writer saw %d assignments, want 2", len(writer.assigned))
	}
}

func TestClassifyBatch_Empty(t *testing.T) {
	c := newTestClassifier(t, 0.5, nil)

	stats, err := c.ClassifyBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("ClassifyBatch() failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
}
