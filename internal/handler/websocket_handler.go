package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/psds-microservice/call-service/internal/errs"
	"github.com/psds-microservice/call-service/internal/model"
	"github.com/psds-microservice/call-service/internal/service"
	"go.uber.org/zap"
)

// SignalWSHandler handles the two WebSocket surfaces:
//
//	/ws/presence/:user_id            — incoming-call notices
//	/ws/call/:session_id/:user_id    — session-scoped signaling
type SignalWSHandler struct {
	hub    service.SignalHubForHandler
	svc    service.CallServicer
	logger *zap.Logger
}

// wsError is written back to the sender when the relay rejects a message; the
// client surfaces it instead of retrying.
type wsError struct {
	Event     string `json:"event"` // always "error"
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// NewSignalWSHandler creates the WebSocket signaling handler.
func NewSignalWSHandler(hub service.SignalHubForHandler, svc service.CallServicer, logger *zap.Logger) *SignalWSHandler {
	return &SignalWSHandler{hub: hub, svc: svc, logger: logger}
}

// ServePresence upgrades the request and subscribes the user's presence
// channel. The client only reads from it; incoming frames are discarded.
func (h *SignalWSHandler) ServePresence(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer, cleanup := h.hub.RegisterPresence(userID, conn)
	defer cleanup()

	go h.writePump(peer)
	h.drainPump(peer)
}

// ServeCall upgrades the request to the session-scoped signaling channel.
// The session must exist, the user must be a participant, and the session
// must not be ended.
func (h *SignalWSHandler) ServeCall(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.Param("user_id")
	if sessionID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and user_id required"})
		return
	}

	sess, err := h.svc.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if !sess.IsParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	if sess.Status == model.CallStatusEnded {
		c.JSON(http.StatusGone, gin.H{"error": "call already ended"})
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	peer, cleanup := h.hub.RegisterSession(sessionID, userID, conn)
	defer cleanup()

	go h.writePump(peer)
	h.readPump(peer)
}

// readPump receives signaling messages from the participant and routes them.
// session_id and sender_id are forced from the channel's path parameters so a
// client cannot speak for anyone else.
func (h *SignalWSHandler) readPump(p *service.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for {
		_, data, err := p.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("read error", zap.Error(err))
			}
			break
		}
		var msg model.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(p, "malformed signaling message")
			continue
		}
		msg.SessionID = p.SessionID
		msg.SenderID = p.UserID
		if msg.Kind == model.SignalCallInitiate {
			// Initiation happens over REST or presence, never on an
			// established session channel.
			h.sendError(p, errs.ErrInvalidTransition.Error())
			continue
		}
		if err := h.svc.Route(&msg); err != nil {
			h.routeRejected(p, &msg, err)
		}
	}
}

// drainPump discards client frames until the connection closes (keepalive only).
func (h *SignalWSHandler) drainPump(p *service.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for {
		if _, _, err := p.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump sends from peer.Send to the connection.
func (h *SignalWSHandler) writePump(p *service.Peer) {
	defer func() {
		_ = p.Conn.Close()
	}()
	for data := range p.Send {
		if err := p.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
}

func (h *SignalWSHandler) routeRejected(p *service.Peer, msg *model.SignalMessage, err error) {
	switch {
	case errors.Is(err, errs.ErrNotParticipant):
		// Security-relevant; already logged by the relay. Nothing goes back.
	case errors.Is(err, errs.ErrUnknownSession),
		errors.Is(err, errs.ErrInvalidTransition):
		h.sendError(p, err.Error())
	default:
		h.logger.Warn("route failed",
			zap.String("session_id", msg.SessionID),
			zap.String("kind", string(msg.Kind)),
			zap.Error(err))
		h.sendError(p, "internal error")
	}
}

func (h *SignalWSHandler) sendError(p *service.Peer, reason string) {
	raw, _ := json.Marshal(wsError{Event: "error", SessionID: p.SessionID, Reason: reason})
	_ = p.TrySend(raw)
}
