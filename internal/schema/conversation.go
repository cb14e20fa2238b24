// Package schema provides the data structures shared by the chatvault store,
// sync coordinator, and classifier.
package schema

import (
	"fmt"
	"time"
)

// Role identifies the author side of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleSystem:
		return true
	}
	return false
}

// Conversation is one archived chat thread and its messages.
//
// The conversation owns its messages: a message is never persisted without
// its parent, and MessageCount always matches the number of persisted
// messages for this id.
type Conversation struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Origin =====
	SourceID string `json:"source_id"` // agent/bot name the conversation belongs to

	// ===== Content =====
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"` // empty until classified

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ===== Derived =====
	MessageCount int `json:"message_count"`

	Messages []Message `json:"messages,omitempty"`
}

// Message is a single utterance within a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`

	// SourceID overrides the conversation's source for multi-agent threads.
	SourceID string `json:"source_id,omitempty"`
}

// AgentSummary is the derived per-agent aggregate. It is recomputed from
// conversation and message rows, never independently authoritative.
type AgentSummary struct {
	SourceID          string    `json:"source_id"`
	FirstSeen         time.Time `json:"first_seen"`
	LastUsed          time.Time `json:"last_used"`
	ConversationCount int       `json:"conversation_count"`
	MessageCount      int       `json:"message_count"`
}

// SyncRunStats summarizes one sync coordinator run. The counters are
// ephemeral: they are reported to the caller and never persisted.
type SyncRunStats struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
	Agents  int `json:"agents"` // distinct source identifiers covered
}

// Validate checks that the conversation is a well-formed unit for persistence.
// Payloads from the ingest source are rejected here rather than stored ad hoc.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if c.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if c.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	if c.UpdatedAt.Before(c.CreatedAt) {
		return fmt.Errorf("updated_at %s precedes created_at %s", c.UpdatedAt.Format(time.RFC3339), c.CreatedAt.Format(time.RFC3339))
	}
	for i := range c.Messages {
		if err := c.Messages[i].Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if c.Messages[i].ConversationID != "" && c.Messages[i].ConversationID != c.ID {
			return fmt.Errorf("message %d references conversation %s, want %s", i, c.Messages[i].ConversationID, c.ID)
		}
	}
	return nil
}

// Validate checks the message fields.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("role %q is not one of user, agent, system", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("content is required")
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// SetDefaults fills derived and optional fields so partially-populated
// payloads behave consistently.
func (c *Conversation) SetDefaults() {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	for i := range c.Messages {
		if c.Messages[i].ConversationID == "" {
			c.Messages[i].ConversationID = c.ID
		}
		if c.Messages[i].Timestamp.IsZero() {
			c.Messages[i].Timestamp = c.UpdatedAt
		}
	}
	c.MessageCount = len(c.Messages)
}

// Text concatenates the title and message bodies into the single blob the
// classifier scores.
func (c *Conversation) Text() string {
	n := len(c.Title)
	for i := range c.Messages {
		n += len(c.Messages[i].Content) + 1
	}
	buf := make([]byte, 0, n)
	buf = append(buf, c.Title...)
	for i := range c.Messages {
		buf = append(buf, ' ')
		buf = append(buf, c.Messages[i].Content...)
	}
	return string(buf)
}
