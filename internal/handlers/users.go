package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
	"github.com/atharvakonge/crypto-academy/internal/users"
)

type UserHandler struct {
	users *users.Service

	logger logger.Logger
}

func NewUserHandler(users *users.Service, logger logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// CreateUser handles POST /api/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %s", models.ErrValidation, err))
		return
	}

	u, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

// GetUser handles GET /api/users/:userId
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	u, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
