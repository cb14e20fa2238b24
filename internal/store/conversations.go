package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/chatvault/chatvault/internal/schema"
)

// UpsertConversation inserts or replaces a conversation and all of its
// messages as one atomic unit, then recomputes the agent summary row for the
// conversation's source inside the same transaction. A reader never observes
// a header without its messages or vice versa.
//
// Returns true when the conversation id did not previously exist (a "new"
// save) and false when it replaced an existing row. Idempotent: saving the
// same conversation twice leaves identical observable state.
func (s *Store) UpsertConversation(ctx context.Context, conv *schema.Conversation) (bool, error) {
	if err := conv.Validate(); err != nil {
		return false, fmt.Errorf("invalid conversation: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE id = ?", conv.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation %s: %w", conv.ID, err)
	}
	created := exists == 0

	_, err = tx.ExecContext(ctx, `
	INSERT INTO conversations (id, source_id, title, category, created_at, updated_at, message_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		source_id = excluded.source_id,
		title = excluded.title,
		category = excluded.category,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		message_count = excluded.message_count
	`,
		conv.ID,
		conv.SourceID,
		conv.Title,
		nullString(conv.Category),
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
		len(conv.Messages),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert conversation %s: %w", conv.ID, err)
	}

	// Replace the message set wholesale. The FTS triggers keep the index in
	// step, and message_count stays exact by construction.
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return false, fmt.Errorf("failed to clear messages for %s: %w", conv.ID, err)
	}

	for i := range conv.Messages {
		msg := &conv.Messages[i]
		_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, timestamp, source_id)
		VALUES (?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			conv.ID,
			string(msg.Role),
			msg.Content,
			formatTime(msg.Timestamp),
			nullString(msg.SourceID),
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert message %s: %w", msg.ID, err)
		}
	}

	if err := refreshAgentSummary(ctx, tx, conv.SourceID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit conversation %s: %w", conv.ID, err)
	}

	return created, nil
}

// refreshAgentSummary recomputes the derived summary row for one source id
// from the conversation and message tables.
func refreshAgentSummary(ctx context.Context, tx *sql.Tx, sourceID string) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO agents (source_id, first_seen, last_used, conversation_count, message_count)
	SELECT
		?,
		MIN(created_at),
		MAX(updated_at),
		COUNT(*),
		(SELECT COUNT(*) FROM messages m
		 JOIN conversations c ON m.conversation_id = c.id
		 WHERE c.source_id = ?)
	FROM conversations WHERE source_id = ?
	ON CONFLICT(source_id) DO UPDATE SET
		first_seen = excluded.first_seen,
		last_used = excluded.last_used,
		conversation_count = excluded.conversation_count,
		message_count = excluded.message_count
	`, sourceID, sourceID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to refresh agent summary for %s: %w", sourceID, err)
	}
	return nil
}

// GetConversation retrieves a conversation and its messages by id.
// Returns (nil, nil) when the id does not exist; absence is not an error.
func (s *Store) GetConversation(ctx context.Context, id string) (*schema.Conversation, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, source_id, title, category, created_at, updated_at, message_count
	FROM conversations
	WHERE id = ?
	`, id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}

	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, conversation_id, role, content, timestamp, source_id
	FROM messages
	WHERE conversation_id = ?
	ORDER BY timestamp ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg schema.Message
		var role, timestamp string
		var source sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &timestamp, &source); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = schema.Role(role)
		msg.Timestamp = parseTime(timestamp)
		msg.SourceID = source.String
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return conv, nil
}

// ListFilter configures the ListConversations query. All set filters compose
// with logical AND.
type ListFilter struct {
	// SourceID restricts results to one agent (empty = all)
	SourceID string
	// SinceDays restricts to conversations created within the last N days.
	// The bound is inclusive: created_at >= now - N days. (0 = no bound)
	SinceDays int
	// Uncategorized restricts to conversations without a category
	Uncategorized bool
	// Limit caps the result count without affecting ordering (0 = no limit)
	Limit int
}

// ListConversations returns conversation headers (no messages) ordered by
// updated_at descending, most recent first.
func (s *Store) ListConversations(ctx context.Context, filter ListFilter) ([]*schema.Conversation, error) {
	var conditions []string
	var args []interface{}

	if filter.SourceID != "" {
		conditions = append(conditions, "source_id = ?")
		args = append(args, filter.SourceID)
	}

	if filter.SinceDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -filter.SinceDays)
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(cutoff))
	}

	if filter.Uncategorized {
		conditions = append(conditions, "(category IS NULL OR category = '')")
	}

	query := `
	SELECT id, source_id, title, category, created_at, updated_at, message_count
	FROM conversations
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*schema.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}

	return conversations, nil
}

// UpdateCategory sets the category of a single conversation. A missing id is
// a logged no-op, not an error; callers that need existence confirmation
// should call GetConversation first.
func (s *Store) UpdateCategory(ctx context.Context, id, category string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx,
		"UPDATE conversations SET category = ? WHERE id = ?",
		nullString(category), id)
	if err != nil {
		return fmt.Errorf("failed to update category for %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Printf("UpdateCategory: conversation %s not found, skipping", id)
	}
	return nil
}

// ConversationCount returns the total number of conversations in the archive.
func (s *Store) ConversationCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return count, nil
}

// Clear removes every conversation, message, and agent summary from the
// archive. This is the only delete path; the store never evicts on its own.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// messages first so the FTS delete triggers fire row by row
	for _, stmt := range []string{
		"DELETE FROM messages",
		"DELETE FROM conversations",
		"DELETE FROM agents",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear archive: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}

	s.logger.Printf("Archive cleared")
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanConversation.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*schema.Conversation, error) {
	var conv schema.Conversation
	var category sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&conv.ID,
		&conv.SourceID,
		&conv.Title,
		&category,
		&createdAt,
		&updatedAt,
		&conv.MessageCount,
	)
	if err != nil {
		return nil, err
	}

	conv.Category = category.String
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}
