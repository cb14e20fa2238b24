package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chatvault/chatvault/internal/schema"
)

// SearchResult is one full-text match. It carries the parent conversation's
// title and source so callers never need a follow-up lookup.
type SearchResult struct {
	schema.Message
	ConversationTitle  string  `json:"conversation_title"`
	ConversationSource string  `json:"conversation_source"`
	Rank               float64 `json:"rank"`
}

// SearchFilter configures SearchMessages.
type SearchFilter struct {
	// SourceID restricts matches to one agent's conversations (empty = all)
	SourceID string
	// Limit caps the result count (0 = default of 50)
	Limit int
}

const defaultSearchLimit = 50

// SearchMessages runs a case-insensitive full-text search over message
// content, ranked by relevance with ties broken by recency. Queries with
// punctuation or FTS operator characters are sanitized to literal terms
// rather than raising a syntax error; an empty query returns no matches.
func (s *Store) SearchMessages(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		s.logger.Printf("SearchMessages: empty query, returning no results")
		return nil, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	sqlQuery := `
	SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp, m.source_id,
	       c.title, c.source_id, fts.rank
	FROM messages_fts fts
	JOIN messages m ON m.rowid = fts.rowid
	JOIN conversations c ON c.id = m.conversation_id
	WHERE messages_fts MATCH ?
	`
	args := []interface{}{ftsQuery}

	if filter.SourceID != "" {
		sqlQuery += " AND c.source_id = ?"
		args = append(args, filter.SourceID)
	}

	sqlQuery += " ORDER BY fts.rank, m.timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var role, timestamp string
		var msgSource sql.NullString
		if err := rows.Scan(
			&r.ID, &r.ConversationID, &role, &r.Content, &timestamp, &msgSource,
			&r.ConversationTitle, &r.ConversationSource, &r.Rank,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Role = schema.Role(role)
		r.Timestamp = parseTime(timestamp)
		r.SourceID = msgSource.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// sanitizeFTSQuery wraps each term in quotes so FTS5 doesn't choke on
// special characters or operator syntax. "what's rate-limiting?" becomes
// `"what's" "rate-limiting?"`.
func sanitizeFTSQuery(query string) string {
	words := strings.Fields(query)
	quoted := words[:0]
	for _, w := range words {
		w = strings.ReplaceAll(strings.Trim(w, `"`), `"`, "")
		if w == "" {
			continue
		}
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " ")
}
