package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quizsession/middleware"
	"quizsession/services"
)

type QuizHandler struct {
	quizService *services.QuizService
}

func NewQuizHandler(quizService *services.QuizService) *QuizHandler {
	return &QuizHandler{
		quizService: quizService,
	}
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req services.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.quizService.CreateQuiz(middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) GetUserQuizzes(c *gin.Context) {
	quizzes, err := h.quizService.GetUserQuizzes(middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quizzes)
}

// GetQuizByID is the owner's view, answer key included.
func (h *QuizHandler) GetQuizByID(c *gin.Context) {
	quizID, ok := paramID(c, "id")
	if !ok {
		return
	}

	quiz, err := h.quizService.GetQuizByID(quizID, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

// GetQuizContent is the student's view of any quiz.
func (h *QuizHandler) GetQuizContent(c *gin.Context) {
	quiz, err := h.quizService.FetchQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	quizID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.quizService.DeleteQuiz(quizID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Quiz deleted successfully"})
}
