package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sensorchat-backend/internal/model"
	"sensorchat-backend/internal/sensorapi"
	"sensorchat-backend/internal/store"
)

type chatRequest struct {
	Question   string  `json:"question" binding:"required"`
	DeviceID   string  `json:"device_id"`
	SensorType string  `json:"sensor_type"`
	Limit      int     `json:"limit"`
	Hours      float64 `json:"hours"`
}

// PostChat handles the POST /api/chat request: fetch the relevant sensor
// data, hand it to the answer generator, and record the exchange. When the
// gateway is down the persisted snapshots serve as a stale data source so
// the conversation can still be answered, clearly flagged.
func (h *Handler) PostChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	ctx := c.Request.Context()

	ok, reason, err := h.quota.CanRequest(ctx, h.llm.Model())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "quota_exceeded", "message": reason})
		return
	}

	readings, stale, err := h.collectData(c, req)
	if err != nil {
		abortUnreachable(c, err)
		return
	}

	answer := h.llm.Generate(ctx, req.Question, readings)

	if !answer.Degraded {
		if err := h.quota.Track(ctx, answer.Model, answer.TokensUsed); err != nil {
			log.Printf("Error tracking LLM usage: %v", err)
		}
	}

	conv := model.Conversation{
		Question: req.Question,
		Answer:   answer.Text,
		Model:    answer.Model,
		Degraded: answer.Degraded,
	}
	if err := h.store.SaveConversation(ctx, &conv); err != nil {
		log.Printf("Error saving conversation: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":     answer.Text,
		"model":      answer.Model,
		"degraded":   answer.Degraded,
		"data_count": len(readings),
		"stale_data": stale,
	})
}

// collectData fetches readings for a chat question, falling back to the
// poller's persisted snapshots when the gateway is unreachable. The error is
// non-nil only when both sources come up empty-handed.
func (h *Handler) collectData(c *gin.Context, req chatRequest) ([]model.Reading, bool, error) {
	ctx := c.Request.Context()
	result, err := h.gateway.Readings(ctx, sensorapi.ReadingsQuery{
		DeviceID:   req.DeviceID,
		SensorType: req.SensorType,
		Limit:      req.Limit,
		Hours:      req.Hours,
	})
	if err == nil {
		return result.Readings, false, nil
	}
	if !isUnreachable(err) {
		return nil, false, err
	}

	log.Printf("Gateway unreachable for chat query, trying persisted snapshots: %v", err)
	cached, cacheErr := h.store.RecentReadings(ctx, store.SnapshotQuery{
		DeviceID:   req.DeviceID,
		SensorType: req.SensorType,
		Limit:      req.Limit,
	})
	if cacheErr != nil || len(cached) == 0 {
		return nil, false, err
	}
	return cached, true, nil
}

// GetConversations handles the GET /api/conversations request.
func (h *Handler) GetConversations(c *gin.Context) {
	limit := 20
	convs, err := h.store.RecentConversations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}
