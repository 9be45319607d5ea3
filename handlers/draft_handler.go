package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"quizsession/middleware"
	"quizsession/services"
	"quizsession/session"
)

// DraftHandler exposes a student's saved progress on a quiz.
type DraftHandler struct {
	drafts services.DraftStore
}

func NewDraftHandler(drafts services.DraftStore) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

type SaveAnswerRequest struct {
	Value string `json:"value"`
}

func (h *DraftHandler) SaveAnswer(c *gin.Context) {
	if _, ok := paramID(c, "id"); !ok {
		return
	}
	var req SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.drafts.SaveAnswer(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("questionId"), req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DraftHandler) SaveProgress(c *gin.Context) {
	if _, ok := paramID(c, "id"); !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := services.ValidateDraft(body); err != nil {
		respondError(c, err)
		return
	}
	var draft session.Draft
	if err := json.Unmarshal(body, &draft); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.drafts.SaveProgress(c.Request.Context(), middleware.UserID(c), c.Param("id"), draft); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DraftHandler) GetProgress(c *gin.Context) {
	if _, ok := paramID(c, "id"); !ok {
		return
	}
	draft, err := h.drafts.LoadDraft(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No saved progress"})
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (h *DraftHandler) ClearProgress(c *gin.Context) {
	if _, ok := paramID(c, "id"); !ok {
		return
	}
	if err := h.drafts.ClearDraft(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
