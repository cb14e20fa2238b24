// Package dashboard provides event handling and message formatting for the dashboard.
package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/chatvault/chatvault/internal/classify"
	"github.com/chatvault/chatvault/internal/schema"
	"github.com/chatvault/chatvault/internal/syncer"
)

// Handler bridges sync and categorization callbacks into dashboard messages.
// Wire its On* methods into syncer.Config and classify.Config; each broadcast
// goes to every connected WebSocket client.
type Handler struct {
	server *Server
	logger *log.Logger

	// Statistics tracking
	stats ArchiveStatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// OnSyncProgress handles incremental sync progress updates
func (h *Handler) OnSyncProgress(p syncer.Progress) {
	h.broadcastData(MessageTypeSyncProgress, ProgressData{
		Percent: p.Percent,
		Status:  p.Status,
	})
}

// OnSyncComplete handles sync run completion
func (h *Handler) OnSyncComplete(stats *schema.SyncRunStats, duration time.Duration) {
	h.logger.Printf("Sync complete: %d new, %d updated, %d failed in %v",
		stats.New, stats.Updated, stats.Failed, duration)

	h.broadcastData(MessageTypeSyncComplete, SyncCompleteData{
		New:      stats.New,
		Updated:  stats.Updated,
		Failed:   stats.Failed,
		Total:    stats.Total,
		Agents:   stats.Agents,
		Duration: duration,
	})
}

// OnClassifyProgress handles incremental categorization progress updates
func (h *Handler) OnClassifyProgress(p classify.Progress) {
	h.broadcastData(MessageTypeClassifyProgress, ProgressData{
		Percent: p.Percent,
		Status:  p.Status,
	})
}

// OnClassifyComplete handles categorization pass completion
func (h *Handler) OnClassifyComplete(stats *classify.BatchStats) {
	h.logger.Printf("Categorization complete: %d categorized, %d unchanged, %d failed",
		stats.Categorized, stats.Unchanged, stats.Failed)

	h.broadcastData(MessageTypeClassifyComplete, ClassifyCompleteData{
		Categorized: stats.Categorized,
		Unchanged:   stats.Unchanged,
		Failed:      stats.Failed,
		Total:       stats.Total,
	})
}

// UpdateStats broadcasts fresh archive statistics to all clients
func (h *Handler) UpdateStats(conversations, agents int) {
	h.stats.Conversations = conversations
	h.stats.Agents = agents

	h.broadcastData(MessageTypeArchiveStats, h.stats)
}

// GetStats returns the last broadcast archive statistics
func (h *Handler) GetStats() ArchiveStatsData {
	return h.stats
}

// broadcastData marshals a payload and broadcasts it under the given type
func (h *Handler) broadcastData(typ MessageType, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
