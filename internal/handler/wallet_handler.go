package handler

import (
	"net/http"

	"mentorbook/internal/middleware"
	"mentorbook/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WalletHandler struct {
	ledger *service.LedgerService
	log    *zap.Logger
}

func NewWalletHandler(ledger *service.LedgerService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{ledger: ledger, log: log.Named("http.wallet")}
}

// GetBalance returns the caller's wallet, creating an empty one on first use.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	w, err := h.ledger.WalletForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err, "wallet error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet_id": w.ID, "balance": w.Balance.StringFixed(2), "currency": w.Currency})
}

func (h *WalletHandler) GetTransactions(c *gin.Context) {
	w, err := h.ledger.WalletForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err, "wallet error")
		return
	}
	page, limit := pageParams(c)
	list, total, err := h.ledger.Transactions(c.Request.Context(), w.ID, page, limit)
	if err != nil {
		respondError(c, h.log, err, "list transactions failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list, "total": total, "page": page, "limit": limit})
}
