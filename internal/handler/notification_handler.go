package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-iqa/iqa-notify-api/internal/dto"
	"github.com/campus-iqa/iqa-notify-api/internal/models"
	appErrors "github.com/campus-iqa/iqa-notify-api/pkg/errors"
	"github.com/campus-iqa/iqa-notify-api/pkg/response"
)

// NotificationFeed is the service surface the handler needs.
type NotificationFeed interface {
	ListForUser(ctx context.Context, userID string, page, pageSize int) ([]models.Notification, *models.Pagination, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	CreateFromRequest(ctx context.Context, req dto.CreateNotificationRequest) (*models.Notification, error)
}

// NotificationHandler exposes a user's notification feed and the admin
// creation endpoint.
type NotificationHandler struct {
	notifications NotificationFeed
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(notifications NotificationFeed) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List returns the authenticated user's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, pagination, err := h.notifications.ListForUser(c.Request.Context(), claims.UserID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount returns the badge counter for the authenticated user.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	count, err := h.notifications.CountUnread(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead marks one of the authenticated user's notifications as read.
// Ownership is enforced; marking another user's notification is a 404.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	if err := h.notifications.MarkRead(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Create persists an administratively submitted notification. The record
// enters the pending queue and is delivered by the next flush.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req dto.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}

	n, err := h.notifications.CreateFromRequest(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, n, nil)
}
