package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/poller"
	"github.com/Awuah-B/report-bot/internal/registry"
	"github.com/Awuah-B/report-bot/internal/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)

	// ListStages enumerates the processing stages
	// GET /api/v1/stages
	ListStages(c *gin.Context)

	// ListStageRecords returns a stage's newest live records
	// GET /api/v1/stages/:stage/records?limit=<n>
	ListStageRecords(c *gin.Context)

	// SearchRecords looks a BRV number up across every stage
	// GET /api/v1/records/search?brv=<number>
	SearchRecords(c *gin.Context)

	// ListRecentEvents returns the rolling new-record feed
	// GET /api/v1/events/recent?limit=<n>
	ListRecentEvents(c *gin.Context)

	// GetStats returns per-stage live counts, poll cursors and subscriber count
	// GET /api/v1/stats
	GetStats(c *gin.Context)

	// TriggerCheck runs one stage's poll cycle immediately (requires authentication)
	// POST /api/v1/stages/:stage/check
	TriggerCheck(c *gin.Context)

	// ListSubscriptions lists notification targets (requires authentication)
	// GET /api/v1/subscriptions
	ListSubscriptions(c *gin.Context)

	// Subscribe registers a chat as a notification target (requires authentication)
	// POST /api/v1/subscriptions
	Subscribe(c *gin.Context)

	// Unsubscribe removes a chat from the notification targets (requires authentication)
	// DELETE /api/v1/subscriptions/:chat_id?actor_id=<id>
	Unsubscribe(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store    store.Store
	registry *registry.Registry
	trigger  poller.Trigger
}

// NewHandler creates a new REST API handler. trigger may be nil when the API
// runs without an in-process poller; the manual-check endpoint then responds
// 404.
func NewHandler(st store.Store, reg *registry.Registry, trigger poller.Trigger) Handler {
	return &handler{
		store:    st,
		registry: reg,
		trigger:  trigger,
	}
}

// recordDTO is the wire shape of one live record
type recordDTO struct {
	OrderDate   string  `json:"order_date"`
	OrderNumber string  `json:"order_number"`
	Products    string  `json:"products"`
	Volume      int64   `json:"volume"`
	ExRefPrice  float64 `json:"ex_ref_price"`
	BRVNumber   string  `json:"brv_number"`
	BDC         string  `json:"bdc"`
	ContentHash string  `json:"content_hash"`
	CreatedAt   string  `json:"created_at"`
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListStages enumerates the processing stages
func (h *handler) ListStages(c *gin.Context) {
	stages := make([]gin.H, 0, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		stages = append(stages, gin.H{
			"name":    string(stage),
			"display": stage.Display(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"stages": stages})
}

// ListStageRecords returns a stage's newest live records
func (h *handler) ListStageRecords(c *gin.Context) {
	stage, ok := h.parseStage(c)
	if !ok {
		return
	}

	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	rows, err := h.store.ListRecent(c.Request.Context(), stage, limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list records", zap.String("stage", string(stage)))
		return
	}

	records := make([]recordDTO, 0, len(rows))
	for _, row := range rows {
		records = append(records, recordDTO{
			OrderDate:   row.OrderDate.Format("2006-01-02"),
			OrderNumber: row.OrderNumber,
			Products:    row.Products,
			Volume:      row.Volume,
			ExRefPrice:  row.ExRefPrice,
			BRVNumber:   row.BRVNumber,
			BDC:         row.BDC,
			ContentHash: row.ContentHash,
			CreatedAt:   row.CreatedAt.UTC().Format(timeFormat),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"stage":   string(stage),
		"records": records,
	})
}

// SearchRecords looks a BRV number up across every stage
func (h *handler) SearchRecords(c *gin.Context) {
	brv := c.Query("brv")
	if brv == "" {
		respondBadRequest(c, "Query parameter 'brv' is required")
		return
	}

	matches, err := h.store.SearchBRV(c.Request.Context(), brv)
	if err != nil {
		respondInternalError(c, err, "Failed to search records", zap.String("brv", brv))
		return
	}

	results := gin.H{}
	total := 0
	for stage, rows := range matches {
		records := make([]recordDTO, 0, len(rows))
		for _, row := range rows {
			records = append(records, recordDTO{
				OrderDate:   row.OrderDate.Format("2006-01-02"),
				OrderNumber: row.OrderNumber,
				Products:    row.Products,
				Volume:      row.Volume,
				ExRefPrice:  row.ExRefPrice,
				BRVNumber:   row.BRVNumber,
				BDC:         row.BDC,
				ContentHash: row.ContentHash,
				CreatedAt:   row.CreatedAt.UTC().Format(timeFormat),
			})
		}
		results[string(stage)] = records
		total += len(rows)
	}

	c.JSON(http.StatusOK, gin.H{
		"brv_number": brv,
		"total":      total,
		"stages":     results,
	})
}

// ListRecentEvents returns the rolling new-record feed
func (h *handler) ListRecentEvents(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	rows, err := h.store.ListRecentEvents(c.Request.Context(), limit)
	if err != nil {
		respondInternalError(c, err, "Failed to list recent events")
		return
	}

	events := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		events = append(events, gin.H{
			"event_id":    row.EventID,
			"stage":       row.Stage,
			"record":      json.RawMessage(row.Payload),
			"detected_at": row.DetectedAt.UTC().Format(timeFormat),
		})
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetStats returns per-stage live counts, poll cursors and subscriber count
func (h *handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.store.CountAll(ctx)
	if err != nil {
		respondInternalError(c, err, "Failed to count records")
		return
	}

	stages := make([]gin.H, 0, len(domain.Stages()))
	for _, stage := range domain.Stages() {
		entry := gin.H{
			"stage": string(stage),
			"count": counts[stage],
		}
		if cursor, err := h.store.GetPollCursor(ctx, stage); err == nil && !cursor.IsZero() {
			entry["last_checked"] = cursor.UTC().Format(timeFormat)
		}
		stages = append(stages, entry)
	}

	subs, err := h.registry.Targets(ctx)
	if err != nil {
		respondInternalError(c, err, "Failed to count subscribers")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stages":      stages,
		"subscribers": len(subs),
	})
}

// TriggerCheck runs one stage's poll cycle immediately
func (h *handler) TriggerCheck(c *gin.Context) {
	if h.trigger == nil {
		respondNotFound(c, "Manual checks are not available on this instance")
		return
	}

	stage, ok := h.parseStage(c)
	if !ok {
		return
	}

	err := h.trigger.TriggerNow(c.Request.Context(), stage)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"stage":  string(stage),
			"status": "completed",
		})
	case errors.Is(err, domain.ErrCycleInFlight):
		respondConflict(c, "A check for this stage is already running")
	default:
		respondInternalError(c, err, "Check failed", zap.String("stage", string(stage)))
	}
}

// ListSubscriptions lists notification targets
func (h *handler) ListSubscriptions(c *gin.Context) {
	targets, err := h.registry.Targets(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list subscriptions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": targets})
}

// subscriptionRequest is the body of subscribe calls
type subscriptionRequest struct {
	ChatID  string `json:"chat_id" binding:"required"`
	ActorID string `json:"actor_id" binding:"required"`
}

// Subscribe registers a chat as a notification target
func (h *handler) Subscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	err := h.registry.Subscribe(c.Request.Context(), req.ChatID, req.ActorID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"chat_id": req.ChatID, "status": "subscribed"})
	case errors.Is(err, domain.ErrUnauthorized):
		respondForbidden(c, "Actor is not authorized to manage this chat's subscription")
	case errors.Is(err, domain.ErrAlreadySubscribed):
		respondConflict(c, "Chat is already subscribed")
	default:
		respondInternalError(c, err, "Failed to subscribe", zap.String("chat_id", req.ChatID))
	}
}

// Unsubscribe removes a chat from the notification targets
func (h *handler) Unsubscribe(c *gin.Context) {
	chatID := c.Param("chat_id")
	actorID := c.Query("actor_id")
	if actorID == "" {
		respondBadRequest(c, "Query parameter 'actor_id' is required")
		return
	}

	err := h.registry.Unsubscribe(c.Request.Context(), chatID, actorID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "status": "unsubscribed"})
	case errors.Is(err, domain.ErrUnauthorized):
		respondForbidden(c, "Actor is not authorized to manage this chat's subscription")
	case errors.Is(err, domain.ErrNotSubscribed):
		respondNotFound(c, "Chat is not subscribed")
	default:
		respondInternalError(c, err, "Failed to unsubscribe", zap.String("chat_id", chatID))
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func (h *handler) parseStage(c *gin.Context) (domain.Stage, bool) {
	stage, err := domain.ParseStage(c.Param("stage"))
	if err != nil {
		respondNotFound(c, "Unknown stage", c.Param("stage"))
		return "", false
	}
	return stage, true
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		respondBadRequest(c, "Query parameter 'limit' must be a positive integer")
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}
