package handler

import (
	"net/http"
	"strconv"
	"time"

	"mentorbook/internal/middleware"
	"mentorbook/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AvailabilityHandler struct {
	slots    *service.SlotService
	identity *service.IdentityService
	log      *zap.Logger
}

func NewAvailabilityHandler(slots *service.SlotService, identity *service.IdentityService, log *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{slots: slots, identity: identity, log: log.Named("http.availability")}
}

// Check answers whether a developer can take a session starting at ?start= (RFC3339) for ?duration= minutes.
func (h *AvailabilityHandler) Check(c *gin.Context) {
	devID, ok := paramID(c, "id")
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
		return
	}
	duration, err := strconv.Atoi(c.DefaultQuery("duration", "30"))
	if err != nil || duration <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a positive number of minutes"})
		return
	}
	date := h.slots.Day(start)
	free, err := h.slots.IsAvailable(c.Request.Context(), devID, date, start, duration)
	if err != nil {
		respondError(c, h.log, err, "availability check failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"developer_id": devID, "date": date, "available": free})
}

// Unavailable lists the blocked slot markers of a developer on ?date=YYYY-MM-DD.
func (h *AvailabilityHandler) Unavailable(c *gin.Context) {
	devID, ok := paramID(c, "id")
	if !ok {
		return
	}
	date := c.DefaultQuery("date", h.slots.Today())
	slots, err := h.slots.UnavailableSlots(c.Request.Context(), devID, date)
	if err != nil {
		respondError(c, h.log, err, "load unavailable slots failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"developer_id": devID, "date": date, "slots": slots})
}

type slotsRequest struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// SetMine replaces the caller's blocked slots for one day.
func (h *AvailabilityHandler) SetMine(c *gin.Context) {
	var req slotsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date and slots required"})
		return
	}
	dev, err := h.identity.DeveloperForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err, "load developer failed")
		return
	}
	slots, err := h.slots.SetUnavailableSlots(c.Request.Context(), dev.ID, req.Date, req.Slots)
	if err != nil {
		respondError(c, h.log, err, "update unavailable slots failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"developer_id": dev.ID, "date": req.Date, "slots": slots})
}

// SetDefaults replaces the caller's recurring blocked slots.
func (h *AvailabilityHandler) SetDefaults(c *gin.Context) {
	var req slotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "slots required"})
		return
	}
	dev, err := h.identity.DeveloperForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err, "load developer failed")
		return
	}
	slots, err := h.slots.SetDefaultUnavailableSlots(c.Request.Context(), dev.ID, req.Slots)
	if err != nil {
		respondError(c, h.log, err, "update default slots failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"developer_id": dev.ID, "slots": slots})
}
