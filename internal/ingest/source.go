// Package ingest defines the contract between the sync coordinator and the
// external collaborator that lists and fetches raw conversation content from
// the remote chat service.
//
// Error taxonomy: ErrNotFound and ErrMalformed are permanent - the
// coordinator counts them failed without retry. A TransientError (rate
// limiting, transport trouble) is expected to succeed on retry and is
// subject to backoff.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatvault/chatvault/internal/schema"
)

// Source lists candidate conversation identifiers and fetches full content.
// Implementations perform the actual network or filesystem access; the
// coordinator only sequences calls and applies the rate budget.
type Source interface {
	// ListCandidateIDs returns the identifiers of conversations for one
	// source id whose activity falls within the last sinceDays days.
	ListCandidateIDs(ctx context.Context, sourceID string, sinceDays int) ([]string, error)

	// FetchConversation retrieves the full conversation for an identifier.
	// Returns ErrNotFound for unknown ids, ErrMalformed for payloads that
	// don't parse into the schema, and a TransientError for failures worth
	// retrying.
	FetchConversation(ctx context.Context, id string) (*schema.Conversation, error)
}

// Permanent failure sentinels.
var (
	ErrNotFound  = errors.New("ingest: conversation not found")
	ErrMalformed = errors.New("ingest: malformed conversation payload")
)

// TransientError marks a failure that is expected to succeed on retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
