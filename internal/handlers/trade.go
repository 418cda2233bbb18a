package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/crypto-academy/internal/ledger"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
	"github.com/atharvakonge/crypto-academy/internal/trading"
)

type TradeHandler struct {
	processor *trading.TradeProcessor
	executor  *trading.Executor
	ledger    *ledger.Ledger

	logger logger.Logger
}

func NewTradeHandler(processor *trading.TradeProcessor, executor *trading.Executor, l *ledger.Ledger, logger logger.Logger) *TradeHandler {
	return &TradeHandler{
		processor: processor,
		executor:  executor,
		ledger:    l,
		logger:    logger,
	}
}

// CreateTrade handles POST /api/trades
func (h *TradeHandler) CreateTrade(c *gin.Context) {
	var req models.TradeRequest

	// Parse JSON request body
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %s", models.ErrValidation, err))
		return
	}
	if err := authorize(c, req.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.processor.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTradeHistory handles GET /api/trades/:userId
func (h *TradeHandler) GetTradeHistory(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(c, h.logger, fmt.Errorf("%w: invalid limit %q", models.ErrValidation, raw))
			return
		}
	}

	trades, err := h.executor.History(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, trades)
}

// GetPortfolio handles GET /api/portfolio/:userId
func (h *TradeHandler) GetPortfolio(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	includeClosed, _ := strconv.ParseBool(c.Query("includeClosed"))
	positions, err := h.ledger.Positions(c.Request.Context(), userID, includeClosed)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, positions)
}

// GetPortfolioSummary handles GET /api/portfolio/:userId/summary
func (h *TradeHandler) GetPortfolioSummary(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	summary, err := h.executor.Summary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
