package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
)

// ItemUsecase is the item operations the handler exposes
type ItemUsecase interface {
	CreateItem(ctx context.Context, request *domain.CreateItemRequest) (*domain.Item, error)
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListItems(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error)
	ProcessItem(ctx context.Context, id string) ([]domain.Match, error)
}

// MatchUsecase is the match operations the handler exposes
type MatchUsecase interface {
	GetMatches(ctx context.Context, itemID string) ([]domain.MatchWithItem, error)
	ResolveMatch(ctx context.Context, matchID string) (*domain.Match, error)
}

// Enqueuer schedules background processing of a new item
type Enqueuer interface {
	Enqueue(itemID string) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	items   ItemUsecase
	matches MatchUsecase
	queue   Enqueuer
	logger  logger.Logger
}

// NewHandler creates a new HTTP handler. queue may be nil, in which case
// items are only processed through the process endpoint.
func NewHandler(items ItemUsecase, matches MatchUsecase, queue Enqueuer, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Handler{
		items:   items,
		matches: matches,
		queue:   queue,
		logger:  log.WithFields(map[string]interface{}{"component": "http_handler"}),
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "lostfound-backend",
		"version": "1.0.0",
	})
}

// CreateItem stores a new report and schedules it for matching
func (h *Handler) CreateItem(c *gin.Context) {
	var request domain.CreateItemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	item, err := h.items.CreateItem(c.Request.Context(), &request)
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := "Item created; matching has been scheduled"
	if h.queue == nil {
		message = "Item created"
	} else if err := h.queue.Enqueue(item.ID); err != nil {
		h.logger.Warn("failed to schedule item processing", map[string]interface{}{
			"itemId": item.ID,
			"error":  err,
		})
		message = "Item created; matching is delayed, retry via the process endpoint"
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"itemId":  item.ID,
		"message": message,
	})
}

// ListItems lists reports by type and status
func (h *Handler) ListItems(c *gin.Context) {
	filter := domain.ItemFilter{
		Type:   domain.ItemType(c.Query("type")),
		Status: domain.ItemStatus(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	items, err := h.items.ListItems(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items, "count": len(items)})
}

// GetItem returns a single report
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
}

// ProcessItem runs feature extraction and matching synchronously
func (h *Handler) ProcessItem(c *gin.Context) {
	matches, err := h.items.ProcessItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "matches": matches, "count": len(matches)})
}

// GetMatches returns an item's matches, highest confidence first
func (h *Handler) GetMatches(c *gin.Context) {
	matches, err := h.matches.GetMatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "matches": matches, "count": len(matches)})
}

// ResolveMatch confirms a match
func (h *Handler) ResolveMatch(c *gin.Context) {
	match, err := h.matches.ResolveMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "match": match})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"path":  c.FullPath(),
			"error": err,
		})
		c.JSON(status, gin.H{"success": false, "error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrItemNotFound), errors.Is(err, domain.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMatchAlreadyResolved), errors.Is(err, domain.ErrItemNotOpen):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrFeatureExtraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
