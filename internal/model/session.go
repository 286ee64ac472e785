package model

import "time"

// CallStatus represents call session state.
type CallStatus string

const (
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusConnected CallStatus = "connected"
	CallStatusEnded     CallStatus = "ended"
)

// CallKind is audio or video, fixed at session creation.
type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)

// ValidKind reports whether k is a known call kind.
func ValidKind(k CallKind) bool {
	return k == CallKindAudio || k == CallKindVideo
}

// Session is the API view of a call session (not GORM entity).
type Session struct {
	ID        string     `json:"id"`
	CallerID  string     `json:"caller_id"`
	CalleeID  string     `json:"callee_id"`
	Kind      CallKind   `json:"call_kind"`
	Status    CallStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Other returns the peer of userID in the session, or "" if userID is not a participant.
func (s *Session) Other(userID string) string {
	switch userID {
	case s.CallerID:
		return s.CalleeID
	case s.CalleeID:
		return s.CallerID
	}
	return ""
}

// IsParticipant reports whether userID is one of the two participants.
func (s *Session) IsParticipant(userID string) bool {
	return userID == s.CallerID || userID == s.CalleeID
}

// CreateCallRequest is the request body for POST /calls.
type CreateCallRequest struct {
	CallerID string `json:"caller_id" binding:"required"`
	CalleeID string `json:"callee_id" binding:"required"`
	CallKind string `json:"call_kind" binding:"required"`
}

// CreateCallResponse is the response for POST /calls.
type CreateCallResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	WSURL     string `json:"ws_url"`
}
