package service

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Peer represents a WebSocket connection subscribed to a channel: either a
// user's presence channel (SessionID empty) or a session-scoped channel.
type Peer struct {
	SessionID string
	UserID    string
	Conn      *websocket.Conn
	Send      chan []byte

	mu     sync.Mutex
	closed bool
}

// TrySend enqueues data unless the peer is closed or its buffer is full.
// Safe against a concurrent channel close.
func (p *Peer) TrySend(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once.
func (p *Peer) closeSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.Send)
	}
}

// SignalHubForHandler — интерфейс для WebSocket handler (D: зависимость от абстракции).
type SignalHubForHandler interface {
	RegisterPresence(userID string, conn *websocket.Conn) (*Peer, func())
	RegisterSession(sessionID, userID string, conn *websocket.Conn) (*Peer, func())
	Upgrader() *websocket.Upgrader
}

// SignalHub owns the presence channels and the session-scoped channels. All
// sends are non-blocking: a full buffer or an absent subscriber means the
// message is dropped, never queued (a stale negotiation payload delivered late
// is worse than a dropped one).
type SignalHub struct {
	mu         sync.RWMutex
	presence   map[string]map[*Peer]struct{} // userID -> presence peers
	sessions   map[string]map[*Peer]struct{} // sessionID -> session peers
	upgrader   websocket.Upgrader
	maxMsgSize int64
	sendBuffer int
	log        *zap.Logger
}

// NewSignalHub creates a new signal hub.
func NewSignalHub(maxMessageSize int64, sendBuffer int, log *zap.Logger) *SignalHub {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &SignalHub{
		presence:   make(map[string]map[*Peer]struct{}),
		sessions:   make(map[string]map[*Peer]struct{}),
		maxMsgSize: maxMessageSize,
		sendBuffer: sendBuffer,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 4,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
	}
}

// RegisterPresence subscribes a connection to the user's presence channel and
// returns a cleanup function.
func (h *SignalHub) RegisterPresence(userID string, conn *websocket.Conn) (*Peer, func()) {
	p := h.newPeer("", userID, conn)
	h.mu.Lock()
	if h.presence[userID] == nil {
		h.presence[userID] = make(map[*Peer]struct{})
	}
	h.presence[userID][p] = struct{}{}
	h.mu.Unlock()

	h.log.Info("presence subscribed", zap.String("user_id", userID))
	return p, func() { h.unregisterPresence(p) }
}

// RegisterSession subscribes a connection to a session-scoped channel and
// returns a cleanup function.
func (h *SignalHub) RegisterSession(sessionID, userID string, conn *websocket.Conn) (*Peer, func()) {
	p := h.newPeer(sessionID, userID, conn)
	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Peer]struct{})
	}
	h.sessions[sessionID][p] = struct{}{}
	h.mu.Unlock()

	h.log.Info("session peer subscribed",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return p, func() { h.unregisterSession(p) }
}

// Notify pushes data to every presence subscription of the user. No
// subscriber means a silent drop; the caller's ringing timeout owns discovery
// of an unreachable callee.
func (h *SignalHub) Notify(userID string, data []byte) {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.presence[userID]))
	for p := range h.presence[userID] {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		h.push(p, data)
	}
}

// SendToUser pushes data to the user's subscriptions on the session channel.
func (h *SignalHub) SendToUser(sessionID, userID string, data []byte) {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.sessions[sessionID]))
	for p := range h.sessions[sessionID] {
		if p.UserID == userID {
			peers = append(peers, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range peers {
		h.push(p, data)
	}
}

// CloseSession closes all session-scoped connections of a session and removes
// them. Presence channels are untouched.
func (h *SignalHub) CloseSession(sessionID string) {
	h.mu.Lock()
	m, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for p := range m {
		p.closeSend()
	}
	h.log.Info("session channels closed", zap.String("session_id", sessionID))
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *SignalHub) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}

// PeerCount returns the number of peers on a session channel (for debugging).
func (h *SignalHub) PeerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *SignalHub) newPeer(sessionID, userID string, conn *websocket.Conn) *Peer {
	if conn != nil && h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}
	return &Peer{
		SessionID: sessionID,
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, h.sendBuffer),
	}
}

func (h *SignalHub) push(p *Peer, data []byte) {
	if !p.TrySend(data) {
		h.log.Warn("send buffer full or peer gone, dropping message",
			zap.String("user_id", p.UserID),
			zap.String("session_id", p.SessionID))
	}
}

func (h *SignalHub) unregisterPresence(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.presence[p.UserID]; ok {
		if _, live := m[p]; !live {
			return
		}
		delete(m, p)
		if len(m) == 0 {
			delete(h.presence, p.UserID)
		}
	}
	p.closeSend()
	h.log.Info("presence unsubscribed", zap.String("user_id", p.UserID))
}

func (h *SignalHub) unregisterSession(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.sessions[p.SessionID]
	if !ok {
		// CloseSession already removed and closed this peer.
		return
	}
	if _, live := m[p]; !live {
		return
	}
	delete(m, p)
	if len(m) == 0 {
		delete(h.sessions, p.SessionID)
	}
	p.closeSend()
	h.log.Info("session peer unsubscribed",
		zap.String("session_id", p.SessionID),
		zap.String("user_id", p.UserID))
}
