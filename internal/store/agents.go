package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chatvault/chatvault/internal/schema"
)

// ListAgents returns the derived agent summaries, most recently used first,
// with ties broken by conversation count descending.
func (s *Store) ListAgents(ctx context.Context) ([]*schema.AgentSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT source_id, first_seen, last_used, conversation_count, message_count
	FROM agents
	ORDER BY last_used DESC, conversation_count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*schema.AgentSummary
	for rows.Next() {
		var a schema.AgentSummary
		var firstSeen, lastUsed string
		if err := rows.Scan(&a.SourceID, &firstSeen, &lastUsed, &a.ConversationCount, &a.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		a.FirstSeen = parseTime(firstSeen)
		a.LastUsed = parseTime(lastUsed)
		agents = append(agents, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}

// Analytics is a windowed aggregate over a trailing period, computed on
// demand and never cached.
type Analytics struct {
	Period                string    `json:"period"`
	StartDate             time.Time `json:"start_date"`
	TotalConversations    int       `json:"total_conversations"`
	ActiveAgents          int       `json:"active_agents"`
	MessagesSent          int       `json:"messages_sent"`
	AvgConversationLength float64   `json:"avg_conversation_length"`
}

// ComputeAnalytics aggregates archive activity over a trailing period, one
// of "day", "week", "month", or "year". Unknown periods fall back to month.
func (s *Store) ComputeAnalytics(ctx context.Context, period string) (*Analytics, error) {
	now := time.Now()
	var start time.Time
	switch period {
	case "day":
		start = now.AddDate(0, 0, -1)
	case "week":
		start = now.AddDate(0, 0, -7)
	case "month":
		start = now.AddDate(0, 0, -30)
	case "year":
		start = now.AddDate(0, 0, -365)
	default:
		period = "month"
		start = now.AddDate(0, 0, -30)
	}
	cutoff := formatTime(start)

	a := &Analytics{Period: period, StartDate: start}

	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE created_at >= ?", cutoff).
		Scan(&a.TotalConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	err = s.conn.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT source_id) FROM conversations WHERE created_at >= ?", cutoff).
		Scan(&a.ActiveAgents)
	if err != nil {
		return nil, fmt.Errorf("failed to count active agents: %w", err)
	}

	err = s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE role = 'user' AND timestamp >= ?", cutoff).
		Scan(&a.MessagesSent)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	err = s.conn.QueryRowContext(ctx, `
	SELECT COALESCE(AVG(message_count), 0) FROM conversations
	WHERE created_at >= ? AND message_count > 0
	`, cutoff).Scan(&a.AvgConversationLength)
	if err != nil {
		return nil, fmt.Errorf("failed to average conversation length: %w", err)
	}

	return a, nil
}
