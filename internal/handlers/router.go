package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/ledger"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/prices"
	"github.com/atharvakonge/crypto-academy/internal/progress"
	"github.com/atharvakonge/crypto-academy/internal/trading"
	"github.com/atharvakonge/crypto-academy/internal/users"
)

type Deps struct {
	Store     db.Store
	StoreKind string
	Prices    *prices.Store
	Hub       *prices.Hub
	Ledger    *ledger.Ledger
	Executor  *trading.Executor
	Processor *trading.TradeProcessor
	Tracker   *progress.Tracker
	Users     *users.Service
	JWTSecret string // empty disables auth

	Logger logger.Logger
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(d.Logger))

	priceHandler := NewPriceHandler(d.Prices, d.Logger)
	tradeHandler := NewTradeHandler(d.Processor, d.Executor, d.Ledger, d.Logger)
	progressHandler := NewProgressHandler(d.Tracker, d.Logger)
	userHandler := NewUserHandler(d.Users, d.Logger)

	// API routes
	api := router.Group("/api")
	{
		// Public market data and course catalog
		api.GET("/prices", priceHandler.ListPrices)
		api.GET("/prices/:symbol", priceHandler.GetPrice)
		api.POST("/prices/update", priceHandler.UpdatePrices)
		api.GET("/lessons", progressHandler.ListLessons)
		api.POST("/users", userHandler.CreateUser)
	}

	private := api.Group("")
	if d.JWTSecret != "" {
		private.Use(Auth(d.JWTSecret))
	}
	{
		// Trading endpoints
		private.POST("/trades", tradeHandler.CreateTrade)
		private.GET("/trades/:userId", tradeHandler.GetTradeHistory)
		private.GET("/portfolio/:userId", tradeHandler.GetPortfolio)
		private.GET("/portfolio/:userId/summary", tradeHandler.GetPortfolioSummary)

		// Learning endpoints
		private.PUT("/progress/:userId/:lessonId", progressHandler.UpdateProgress)
		private.GET("/progress/:userId", progressHandler.GetProgress)
		private.GET("/users/:userId", userHandler.GetUser)
		private.POST("/users/:userId/xp", progressHandler.AddXP)
	}

	// WebSocket endpoint
	router.GET("/ws/prices", PriceStream(d.Hub, d.Prices, d.Logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := d.Store.Ping(ctx); err != nil {
			d.Logger.Errorf("%s: health check failed", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "store": d.StoreKind})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "store": d.StoreKind})
	})

	return router
}
