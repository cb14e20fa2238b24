package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chatvault/chatvault/internal/schema"
)

// SeedSampleData populates an archive with a few fixed conversations so the
// CLI has something to show before the first real sync. Used by tests too.
func (s *Store) SeedSampleData(ctx context.Context) error {
	ts := func(v string) time.Time {
		t, _ := time.Parse(time.RFC3339, v)
		return t
	}

	samples := []*schema.Conversation{
		{
			ID:        "sample_001",
			SourceID:  "claude-3",
			Title:     "Python Programming Help",
			Category:  "Technical",
			CreatedAt: ts("2024-01-15T10:30:00Z"),
			UpdatedAt: ts("2024-01-15T11:45:00Z"),
			Messages: []schema.Message{
				{ID: "msg_001_1", Role: schema.RoleUser, Content: "How do I implement binary search in Python?", Timestamp: ts("2024-01-15T10:30:00Z")},
				{ID: "msg_001_2", Role: schema.RoleAgent, Content: "Binary search is an efficient algorithm for finding elements in a sorted array. Split the range in half each step.", Timestamp: ts("2024-01-15T10:32:00Z")},
				{ID: "msg_001_3", Role: schema.RoleUser, Content: "What's the time complexity?", Timestamp: ts("2024-01-15T11:30:00Z")},
				{ID: "msg_001_4", Role: schema.RoleAgent, Content: "Binary search has O(log n) time complexity, which makes it very efficient for large datasets.", Timestamp: ts("2024-01-15T11:32:00Z")},
			},
		},
		{
			ID:        "sample_002",
			SourceID:  "gpt-4",
			Title:     "JavaScript Async/Await Explanation",
			CreatedAt: ts("2024-01-16T14:20:00Z"),
			UpdatedAt: ts("2024-01-16T15:10:00Z"),
			Messages: []schema.Message{
				{ID: "msg_002_1", Role: schema.RoleUser, Content: "Can you explain async/await in JavaScript?", Timestamp: ts("2024-01-16T14:20:00Z")},
				{ID: "msg_002_2", Role: schema.RoleAgent, Content: "Async/await is syntax for handling promises that makes asynchronous code read like synchronous code.", Timestamp: ts("2024-01-16T14:25:00Z")},
				{ID: "msg_002_3", Role: schema.RoleUser, Content: "Thanks! That's much clearer than callbacks.", Timestamp: ts("2024-01-16T15:10:00Z")},
			},
		},
		{
			ID:        "sample_003",
			SourceID:  "claude-3",
			Title:     "Machine Learning Basics",
			CreatedAt: ts("2024-01-17T09:15:00Z"),
			UpdatedAt: ts("2024-01-17T10:30:00Z"),
			Messages: []schema.Message{
				{ID: "msg_003_1", Role: schema.RoleUser, Content: "What's the difference between supervised and unsupervised learning?", Timestamp: ts("2024-01-17T09:15:00Z")},
				{ID: "msg_003_2", Role: schema.RoleAgent, Content: "Supervised learning maps inputs to known labeled outputs. Unsupervised learning finds structure without labels.", Timestamp: ts("2024-01-17T09:18:00Z")},
				{ID: "msg_003_3", Role: schema.RoleUser, Content: "Which should I study first?", Timestamp: ts("2024-01-17T10:30:00Z")},
			},
		},
	}

	for _, conv := range samples {
		conv.SetDefaults()
		if _, err := s.UpsertConversation(ctx, conv); err != nil {
			return fmt.Errorf("failed to seed %s: %w", conv.ID, err)
		}
	}

	s.logger.Printf("Seeded %d sample conversations", len(samples))
	return nil
}
