package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chatvault/chatvault/internal/schema"
)

// DirSource reads conversation exports from a local directory, one
// {id}.json file per conversation. It exists so the sync pipeline can be
// exercised without the remote service: point it at a directory of exported
// payloads and sync normally.
type DirSource struct {
	dir string
}

// NewDirSource creates a Source over a directory of conversation JSON files.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// ListCandidateIDs scans the directory for conversations belonging to
// sourceID whose created_at falls within the last sinceDays days (inclusive
// bound). An empty sourceID matches every file. Unreadable files are skipped;
// they surface later as fetch failures if their ids are requested directly.
func (d *DirSource) ListCandidateIDs(ctx context.Context, sourceID string, sinceDays int) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var cutoff time.Time
	if sinceDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -sinceDays)
	}

	type candidate struct {
		id      string
		updated time.Time
	}
	var found []candidate

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		conv, err := readConversationFile(filepath.Join(d.dir, entry.Name()))
		if err != nil {
			continue
		}
		if sourceID != "" && conv.SourceID != sourceID {
			continue
		}
		if !cutoff.IsZero() && conv.CreatedAt.Before(cutoff) {
			continue
		}
		found = append(found, candidate{id: conv.ID, updated: conv.UpdatedAt})
	}

	// Most recently updated first, matching the remote listing order.
	sort.Slice(found, func(i, j int) bool {
		return found[i].updated.After(found[j].updated)
	})

	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = c.id
	}
	return ids, nil
}

// FetchConversation reads and parses {id}.json from the export directory.
func (d *DirSource) FetchConversation(ctx context.Context, id string) (*schema.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(d.dir, id+".json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	conv, err := readConversationFile(path)
	if err != nil {
		return nil, err
	}
	if conv.ID != id {
		return nil, fmt.Errorf("%w: file %s declares id %s", ErrMalformed, path, conv.ID)
	}
	return conv, nil
}

// readConversationFile parses one export file into the strict schema.
// Shapes that don't validate are rejected here rather than persisted ad hoc.
func readConversationFile(path string) (*schema.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var conv schema.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	conv.SetDefaults()
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return &conv, nil
}
