package handler

import (
	"errors"
	"net/http"
	"strconv"

	"mentorbook/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Client-facing kinds keep their message;
// everything else is logged and answered with fallback.
func respondError(c *gin.Context, log *zap.Logger, err error, fallback string) {
	status := statusFor(err)
	var de *domain.Error
	msg := fallback
	if status < http.StatusInternalServerError && errors.As(err, &de) {
		msg = de.Error()
		if de.Msg != "" {
			msg = de.Msg
		}
	}
	if status >= http.StatusInternalServerError || status == http.StatusPaymentRequired {
		log.Error(fallback,
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

// respondMoneyError hides the cause of payment and transfer failures from the caller.
func respondMoneyError(c *gin.Context, log *zap.Logger, err error, generic string) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound, http.StatusForbidden, http.StatusBadRequest:
		respondError(c, log, err, generic)
		return
	}
	log.Error(generic, zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": generic})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}
