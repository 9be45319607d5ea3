package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quizsession/middleware"
	"quizsession/services"
	"quizsession/session"
)

type SubmissionHandler struct {
	grading *services.GradingService
}

func NewSubmissionHandler(grading *services.GradingService) *SubmissionHandler {
	return &SubmissionHandler{grading: grading}
}

func (h *SubmissionHandler) SubmitQuiz(c *gin.Context) {
	if _, ok := paramID(c, "id"); !ok {
		return
	}
	var sub session.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.grading.SubmitQuiz(c.Request.Context(), middleware.UserID(c), c.Param("id"), sub)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SubmissionHandler) GetAttempt(c *gin.Context) {
	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}
	attempt, err := h.grading.GetAttempt(c.Request.Context(), middleware.UserID(c), attemptID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}
