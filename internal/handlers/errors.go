package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/ledger"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
	"github.com/atharvakonge/crypto-academy/internal/prices"
	"github.com/atharvakonge/crypto-academy/internal/progress"
	"github.com/atharvakonge/crypto-academy/internal/trading"
)

var errForbidden = errors.New("not allowed to act on this user")

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, ledger.ErrInsufficientHoldings),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, trading.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden),
		errors.Is(err, progress.ErrTierRequired):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound),
		errors.Is(err, progress.ErrLessonNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, prices.ErrPriceUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trading.ErrProcessorStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Server-side failures get a generic message
// and are logged with the request id.
func respondError(c *gin.Context, l logger.Logger, err error) {
	respondStatus(c, l, statusFor(err), err)
}

func respondStatus(c *gin.Context, l logger.Logger, status int, err error) {
	if status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	l.With("request_id", c.GetString(requestIDKey)).Errorf("%s %s: %s", c.Request.Method, c.FullPath(), err)

	msg := "Internal server error"
	switch {
	case errors.Is(err, prices.ErrUpstreamFetch):
		msg = "Failed to fetch prices"
	case errors.Is(err, trading.ErrProcessorStopped):
		msg = "Server is shutting down"
	}
	c.JSON(status, gin.H{"error": msg})
}
