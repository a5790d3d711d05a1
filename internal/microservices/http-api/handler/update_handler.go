package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab-insight/internal/microservices/http-api/dto"
	"gitlab-insight/internal/microservices/http-api/middleware"
	"gitlab-insight/internal/microservices/websocket"
	"gitlab-insight/pkg/realtime"
)

// UpdateHandler accepts live updates from CI hooks and admin tools and pushes
// them to connected dashboards
type UpdateHandler struct {
	publisher websocket.Publisher
	logger    *slog.Logger
}

func NewUpdateHandler(publisher websocket.Publisher, logger *slog.Logger) *UpdateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateHandler{publisher: publisher, logger: logger}
}

func (h *UpdateHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Publish)
}

// Publish wraps the payload in a frame and hands it to the publisher.
// Delivery is asynchronous so the response is 202.
func (h *UpdateHandler) Publish(c *gin.Context) {
	var req dto.PublishUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	env, err := realtime.NewEnvelope(req.Type, req.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := websocket.NewDelivery(env, req.UserIDs...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.publisher.Publish(ctx, d); err != nil {
		h.logger.Error("Failed to publish update", "error", err, "type", req.Type)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates unavailable"})
		return
	}

	h.logger.Info("Update published",
		"type", req.Type,
		"recipients", len(req.UserIDs),
		"by", c.GetString(middleware.UsernameKey),
	)
	c.JSON(http.StatusAccepted, dto.PublishUpdateResponse{Type: req.Type, Recipients: len(req.UserIDs)})
}
