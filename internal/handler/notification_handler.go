package handler

import (
	"net/http"

	"mentorbook/internal/middleware"
	"mentorbook/internal/repository"
	"mentorbook/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications *service.NotificationService
	users         *repository.UserRepository
	log           *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, users *repository.UserRepository, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, users: users, log: log.Named("http.notifications")}
}

func (h *NotificationHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	list, unread, err := h.notifications.List(c.Request.Context(), middleware.GetUserID(c), page, limit)
	if err != nil {
		respondError(c, h.log, err, "list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, h.log, err, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.notifications.MarkAllRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, h.log, err, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterFCMToken saves the device token used for push notifications.
func (h *NotificationHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	if err := h.users.UpdateFCMToken(c.Request.Context(), middleware.GetUserID(c), req.Token); err != nil {
		respondError(c, h.log, err, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
