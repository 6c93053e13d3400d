// api/handlers/track_handlers.go
package handlers

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storepulse/api/aggregator"
	"storepulse/api/channel"
	"storepulse/api/middleware"
	"storepulse/api/models"
)

const maxTrackBody = 256 << 10

type AnalyticsHandlers struct {
	Registry  *aggregator.Registry
	Channel   channel.Channel
	Script    ScriptConfig
	StartedAt time.Time
	Now       func() time.Time
}

func NewAnalyticsHandlers(registry *aggregator.Registry, ch channel.Channel, script ScriptConfig) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		Registry:  registry,
		Channel:   ch,
		Script:    script,
		StartedAt: time.Now(),
		Now:       time.Now,
	}
}

// TrackEvent accepts one envelope or an array of them. Beacons may arrive as
// text/plain, so the body is decoded by hand rather than bound by content type.
// Unknown event types are accepted; the aggregator only logs them.
func (h *AnalyticsHandlers) TrackEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTrackBody)
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	envelopes, err := decodeEnvelopes(body)
	if err != nil {
		log.Printf("Error decoding tracking payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	fallbackStore := middleware.StoreID(c)
	now := h.Now()
	for _, env := range envelopes {
		evt := env.TrackingEvent(now)
		if evt.StoreID == "" {
			evt.StoreID = fallbackStore
		}
		h.Channel.Publish(evt)
	}

	c.Status(http.StatusNoContent)
}

func decodeEnvelopes(body []byte) ([]models.Envelope, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var envs []models.Envelope
		if err := json.Unmarshal(body, &envs); err != nil {
			return nil, err
		}
		return envs, nil
	}
	var env models.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return []models.Envelope{env}, nil
}

func (h *AnalyticsHandlers) GetMetrics(c *gin.Context) {
	agg := h.Registry.Get(c.Request.Context(), middleware.StoreID(c))
	c.JSON(http.StatusOK, agg.Snapshot())
}

func (h *AnalyticsHandlers) GetRecentEvents(c *gin.Context) {
	agg := h.Registry.Get(c.Request.Context(), middleware.StoreID(c))
	events := agg.RecentEvents()

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be a positive integer."})
			return
		}
		if limit < len(events) {
			events = events[:limit]
		}
	}
	c.JSON(http.StatusOK, events)
}

func (h *AnalyticsHandlers) GetTimeSeries(c *gin.Context) {
	agg := h.Registry.Get(c.Request.Context(), middleware.StoreID(c))
	c.JSON(http.StatusOK, agg.TimeSeries())
}

func (h *AnalyticsHandlers) GetProducts(c *gin.Context) {
	agg := h.Registry.Get(c.Request.Context(), middleware.StoreID(c))
	c.JSON(http.StatusOK, agg.Snapshot().Products)
}

func (h *AnalyticsHandlers) ResetStore(c *gin.Context) {
	storeID := middleware.StoreID(c)
	if !h.Registry.Reset(c.Request.Context(), storeID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown store"})
		return
	}
	log.Printf("Metrics reset for store %s", storeID)
	c.Status(http.StatusNoContent)
}

func (h *AnalyticsHandlers) ListStores(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stores": h.Registry.Stores()})
}

func (h *AnalyticsHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"stores":         len(h.Registry.Stores()),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
