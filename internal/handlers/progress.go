package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/models"
	"github.com/atharvakonge/crypto-academy/internal/progress"
)

type ProgressHandler struct {
	tracker *progress.Tracker

	logger logger.Logger
}

func NewProgressHandler(tracker *progress.Tracker, logger logger.Logger) *ProgressHandler {
	return &ProgressHandler{tracker: tracker, logger: logger}
}

// UpdateProgress handles PUT /api/progress/:userId/:lessonId
func (h *ProgressHandler) UpdateProgress(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	lessonID, err := idParam(c, "lessonId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %s", models.ErrValidation, err))
		return
	}

	up, err := h.tracker.RecordCompletion(c.Request.Context(), userID, lessonID, req.Progress, req.Completed, req.QuizScore)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, up)
}

// GetProgress handles GET /api/progress/:userId
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	rows, err := h.tracker.Progress(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// ListLessons handles GET /api/lessons
func (h *ProgressHandler) ListLessons(c *gin.Context) {
	lessons, err := h.tracker.Lessons(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

// AddXP handles POST /api/users/:userId/xp
func (h *ProgressHandler) AddXP(c *gin.Context) {
	userID, err := userIDParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req models.AddXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %s", models.ErrValidation, err))
		return
	}

	u, err := h.tracker.AddXP(c.Request.Context(), userID, req.Amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
