package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quizsession/handlers"
	"quizsession/middleware"
)

type Handlers struct {
	Quiz       *handlers.QuizHandler
	Draft      *handlers.DraftHandler
	Submission *handlers.SubmissionHandler
	Session    *handlers.SessionHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	auth := middleware.AuthMiddleware(jwtSecret)

	api := router.Group("/api")
	api.Use(auth)
	{
		quizzes := api.Group("/quizzes")
		{
			quizzes.GET("", h.Quiz.GetUserQuizzes)
			quizzes.POST("", h.Quiz.CreateQuiz)
			quizzes.GET("/:id", h.Quiz.GetQuizByID)
			quizzes.DELETE("/:id", h.Quiz.DeleteQuiz)
			quizzes.GET("/:id/content", h.Quiz.GetQuizContent)

			quizzes.PUT("/:id/answers/:questionId", h.Draft.SaveAnswer)
			quizzes.PUT("/:id/progress", h.Draft.SaveProgress)
			quizzes.GET("/:id/progress", h.Draft.GetProgress)
			quizzes.DELETE("/:id/progress", h.Draft.ClearProgress)

			quizzes.POST("/:id/submit", h.Submission.SubmitQuiz)
		}

		api.GET("/attempts/:id", h.Submission.GetAttempt)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.Session.Open)
			sessions.GET("/:id", h.Session.Get)
			sessions.DELETE("/:id", h.Session.Close)
			sessions.POST("/:id/start", h.Session.Start)
			sessions.POST("/:id/pause", h.Session.Pause)
			sessions.POST("/:id/resume", h.Session.Resume)
			sessions.POST("/:id/submit", h.Session.Submit)
			sessions.POST("/:id/hint", h.Session.Hint)
			sessions.POST("/:id/goto", h.Session.GoTo)
			sessions.PUT("/:id/answers/:questionId", h.Session.Answer)
			sessions.DELETE("/:id/answers/:questionId", h.Session.ClearAnswer)
			sessions.POST("/:id/flags/:questionId", h.Session.ToggleFlag)
		}
	}

	// token travels in the query string for websocket upgrades
	router.GET("/ws/sessions/:id", auth, h.Session.Watch)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
