package handler

import (
	"net/http"
	"time"

	"mentorbook/internal/middleware"
	"mentorbook/internal/models"
	"mentorbook/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionHandler struct {
	sessions *service.SessionService
	log      *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, log: log.Named("http.sessions")}
}

type bookRequest struct {
	DeveloperID     uint      `json:"developer_id" binding:"required"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required"`
	Topic           string    `json:"topic"`
}

// Book creates a pending session request for the caller.
func (h *SessionHandler) Book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "developer_id, start_time and duration_minutes required"})
		return
	}
	s, err := h.sessions.Book(c.Request.Context(), service.BookInput{
		UserID:          middleware.GetUserID(c),
		DeveloperID:     req.DeveloperID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Topic:           req.Topic,
	})
	if err != nil {
		respondError(c, h.log, err, "booking failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s})
}

func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.sessions.Get(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		respondError(c, h.log, err, "load session failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

// ListMine returns sessions the caller booked or hosts.
func (h *SessionHandler) ListMine(c *gin.Context) {
	page, limit := pageParams(c)
	list, total, err := h.sessions.List(c.Request.Context(), middleware.GetActor(c), service.ListFilter{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		respondError(c, h.log, err, "list sessions failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list, "total": total, "page": page, "limit": limit})
}

// Delete removes a still pending request made by the caller.
func (h *SessionHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.DeletePending(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondError(c, h.log, err, "delete session failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *SessionHandler) Accept(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.sessions.Accept(c.Request.Context(), id, middleware.GetUserID(c))
	h.respond(c, s, err, "accept session failed")
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *SessionHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	s, err := h.sessions.Reject(c.Request.Context(), id, middleware.GetUserID(c), req.Reason)
	h.respond(c, s, err, "reject session failed")
}

func (h *SessionHandler) Start(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.sessions.Start(c.Request.Context(), id, middleware.GetActor(c))
	h.respond(c, s, err, "start session failed")
}

func (h *SessionHandler) Complete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	s, err := h.sessions.Complete(c.Request.Context(), id, middleware.GetActor(c))
	h.respond(c, s, err, "complete session failed")
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	s, err := h.sessions.Cancel(c.Request.Context(), id, middleware.GetActor(c), req.Reason)
	h.respond(c, s, err, "cancel session failed")
}

func (h *SessionHandler) respond(c *gin.Context, s *models.Session, err error, fallback string) {
	if err != nil {
		respondError(c, h.log, err, fallback)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}
