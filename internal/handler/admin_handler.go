package handler

import (
	"net/http"

	"mentorbook/internal/middleware"
	"mentorbook/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	ledger     *service.LedgerService
	settlement *service.SettlementService
	log        *zap.Logger
}

func NewAdminHandler(ledger *service.LedgerService, settlement *service.SettlementService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{ledger: ledger, settlement: settlement, log: log.Named("http.admin")}
}

// PlatformWallet shows the platform wallet with its most recent entries.
func (h *AdminHandler) PlatformWallet(c *gin.Context) {
	w, err := h.ledger.PlatformWallet(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "platform wallet error")
		return
	}
	page, limit := pageParams(c)
	list, total, err := h.ledger.Transactions(c.Request.Context(), w.ID, page, limit)
	if err != nil {
		respondError(c, h.log, err, "list transactions failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet":       w,
		"transactions": list,
		"total":        total,
	})
}

func (h *AdminHandler) Reconcile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rec, err := h.ledger.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "reconcile failed")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Transfer pays a settled session out to the developer's wallet.
func (h *AdminHandler) Transfer(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.settlement.TransferToDeveloper(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondMoneyError(c, h.log, err, "transfer failed")
		return
	}
	c.JSON(http.StatusOK, res)
}
