package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/prices"
)

type PriceHandler struct {
	prices *prices.Store

	logger logger.Logger
}

func NewPriceHandler(store *prices.Store, logger logger.Logger) *PriceHandler {
	return &PriceHandler{prices: store, logger: logger}
}

// ListPrices handles GET /api/prices
func (h *PriceHandler) ListPrices(c *gin.Context) {
	list, err := h.prices.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetPrice handles GET /api/prices/:symbol
func (h *PriceHandler) GetPrice(c *gin.Context) {
	p, err := h.prices.Get(c.Request.Context(), c.Param("symbol"))
	if errors.Is(err, prices.ErrPriceUnavailable) {
		respondStatus(c, h.logger, http.StatusNotFound, err)
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdatePrices handles POST /api/prices/update
func (h *PriceHandler) UpdatePrices(c *gin.Context) {
	list, err := h.prices.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
