package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"quizsession/middleware"
	"quizsession/services"
	"quizsession/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by CORS and the token
	},
}

// SessionHandler drives server-hosted quiz sessions.
type SessionHandler struct {
	sessions *services.SessionManager
	hub      *services.Hub
}

func NewSessionHandler(sessions *services.SessionManager, hub *services.Hub) *SessionHandler {
	return &SessionHandler{sessions: sessions, hub: hub}
}

type OpenSessionRequest struct {
	QuizID string `json:"quiz_id" binding:"required"`
}

type SessionResponse struct {
	SessionID string `json:"sessionId"`
	session.Snapshot
}

type GoToRequest struct {
	Index *int `json:"index" binding:"required"`
}

func (h *SessionHandler) Open(c *gin.Context) {
	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), middleware.UserID(c), req.QuizID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, respond(s))
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, respond(s))
}

func (h *SessionHandler) Start(c *gin.Context) {
	h.act(c, func(ctrl *session.Controller) error { return ctrl.Start() })
}

func (h *SessionHandler) Pause(c *gin.Context) {
	h.act(c, func(ctrl *session.Controller) error { return ctrl.Pause() })
}

func (h *SessionHandler) Resume(c *gin.Context) {
	h.act(c, func(ctrl *session.Controller) error { return ctrl.Resume() })
}

func (h *SessionHandler) Answer(c *gin.Context) {
	var req SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.act(c, func(ctrl *session.Controller) error { return ctrl.Answer(c.Param("questionId"), req.Value) })
}

func (h *SessionHandler) ClearAnswer(c *gin.Context) {
	h.act(c, func(ctrl *session.Controller) error { return ctrl.ClearAnswer(c.Param("questionId")) })
}

func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	flagged, err := s.Controller.ToggleFlag(c.Param("questionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questionId": c.Param("questionId"), "flagged": flagged})
}

func (h *SessionHandler) GoTo(c *gin.Context) {
	var req GoToRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.act(c, func(ctrl *session.Controller) error { return ctrl.GoTo(*req.Index) })
}

func (h *SessionHandler) Hint(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	hint, err := s.Controller.RevealHint()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hint": hint})
}

func (h *SessionHandler) Submit(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	res, err := s.Controller.Submit(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

// Watch upgrades to a websocket that streams the session's events.
func (h *SessionHandler) Watch(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.Warningf("websocket upgrade failed for session %s: %v", s.ID, err)
		return
	}
	h.hub.RegisterClient(conn, s.ID, s.StudentID)
}

func (h *SessionHandler) lookup(c *gin.Context) (*services.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) act(c *gin.Context, fn func(*session.Controller) error) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := fn(s.Controller); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, respond(s))
}

func respond(s *services.Session) SessionResponse {
	return SessionResponse{SessionID: s.ID, Snapshot: s.Controller.Snapshot()}
}
