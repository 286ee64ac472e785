package model

import (
	"encoding/json"
	"time"
)

// SignalKind identifies the kind of signaling message.
type SignalKind string

const (
	SignalCallInitiate         SignalKind = "call-initiate"
	SignalCallAnswer           SignalKind = "call-answer"
	SignalCallReject           SignalKind = "call-reject"
	SignalCallEnd              SignalKind = "call-end"
	SignalNegotiationOffer     SignalKind = "negotiation-offer"
	SignalNegotiationAnswer    SignalKind = "negotiation-answer"
	SignalNegotiationCandidate SignalKind = "negotiation-candidate"
)

// SignalMessage is the unit relayed between the two participants of a session.
// Payload is an opaque blob for negotiation kinds and empty otherwise; the
// relay forwards it without interpreting its contents. RoutedAt is stamped by
// the relay on forward, for diagnostics only.
type SignalMessage struct {
	SessionID string          `json:"session_id"`
	SenderID  string          `json:"sender_id"`
	Kind      SignalKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RoutedAt  time.Time       `json:"routed_at,omitempty"`
}

// InitiatePayload is the payload of a call-initiate message.
type InitiatePayload struct {
	CalleeID string   `json:"callee_id"`
	CallKind CallKind `json:"call_kind"`
}

// IncomingCallNotice is pushed to the callee's presence channel on call-initiate.
type IncomingCallNotice struct {
	Event     string   `json:"event"` // always "incoming-call"
	SessionID string   `json:"session_id"`
	CallerID  string   `json:"caller_id"`
	CallKind  CallKind `json:"call_kind"`
}

// EventIncomingCall is the Event value of IncomingCallNotice.
const EventIncomingCall = "incoming-call"
