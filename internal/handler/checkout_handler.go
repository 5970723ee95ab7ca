package handler

import (
	"net/http"

	"mentorbook/internal/middleware"
	"mentorbook/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	settlement *service.SettlementService
	log        *zap.Logger
}

func NewCheckoutHandler(settlement *service.SettlementService, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{settlement: settlement, log: log.Named("http.checkout")}
}

// Create opens a hosted checkout for an approved session booked by the caller.
func (h *CheckoutHandler) Create(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}
	_ = c.ShouldBindJSON(&req)
	res, err := h.settlement.CreateCheckout(c.Request.Context(), id, middleware.GetUserID(c), service.CheckoutURLs{
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		respondMoneyError(c, h.log, err, "could not start payment")
		return
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, res)
}
