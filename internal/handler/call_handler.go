package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/call-service/internal/errs"
	"github.com/psds-microservice/call-service/internal/model"
	"github.com/psds-microservice/call-service/internal/service"
)

// CallHandler handles REST API for call sessions.
type CallHandler struct {
	svc service.CallServicer
	cfg *service.WSConfig
}

// NewCallHandler creates a call handler (D: принимает CallServicer).
func NewCallHandler(svc service.CallServicer, wsBaseURL string) *CallHandler {
	return &CallHandler{
		svc: svc,
		cfg: &service.WSConfig{BaseURL: wsBaseURL},
	}
}

// CreateCall godoc
// POST /calls
func (h *CallHandler) CreateCall(c *gin.Context) {
	var req model.CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	sess, err := h.svc.Initiate(req.CallerID, req.CalleeID, model.CallKind(req.CallKind))
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrAlreadyInCall):
			c.JSON(http.StatusConflict, gin.H{"error": "user busy"})
		case errors.Is(err, errs.ErrSelfCall), errors.Is(err, errs.ErrInvalidKind):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create call"})
		}
		return
	}
	c.JSON(http.StatusCreated, model.CreateCallResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		WSURL:     h.cfg.CallURL(sess.ID, req.CallerID),
	})
}

// GetCall godoc
// GET /calls/:id
func (h *CallHandler) GetCall(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	sess, err := h.svc.Get(sessionID)
	if err != nil {
		if errors.Is(err, errs.ErrUnknownSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get call"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// HangupCall godoc
// DELETE /calls/:id?actor_id=...
// Routes a call-end (or call-reject from the callee while ringing is the WS path).
func (h *CallHandler) HangupCall(c *gin.Context) {
	sessionID := c.Param("id")
	actorID := c.Query("actor_id")
	if sessionID == "" || actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and actor_id required"})
		return
	}
	err := h.svc.Route(&model.SignalMessage{
		SessionID: sessionID,
		SenderID:  actorID,
		Kind:      model.SignalCallEnd,
	})
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUnknownSession):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, errs.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		case errors.Is(err, errs.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "call already ended"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end call"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}
