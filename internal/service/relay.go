package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/psds-microservice/call-service/internal/errs"
	"github.com/psds-microservice/call-service/internal/model"
	"go.uber.org/zap"
)

// Forwarder delivers relayed bytes to subscribers. Implemented by SignalHub;
// delivery is fire-and-forget: a slow or absent recipient never blocks Route.
type Forwarder interface {
	// Notify pushes to the user's presence channel.
	Notify(userID string, data []byte)
	// SendToUser pushes to the user's session-scoped channel.
	SendToUser(sessionID, userID string, data []byte)
	// CloseSession tears down all session-scoped channels of a session.
	CloseSession(sessionID string)
}

// CallServicer — интерфейс relay для handlers (D: зависимость от абстракции).
type CallServicer interface {
	Initiate(callerID, calleeID string, kind model.CallKind) (*model.Session, error)
	Route(msg *model.SignalMessage) error
	Get(sessionID string) (*model.Session, error)
}

// SignalRelay validates signaling messages against the session state machine
// and forwards them, unmodified apart from the routed_at stamp, to the other
// participant. It never mutates a session directly; lifecycle kinds go through
// the registry's transition rules.
type SignalRelay struct {
	registry *SessionRegistry
	fwd      Forwarder
	log      *zap.Logger
}

// NewSignalRelay creates the relay.
func NewSignalRelay(registry *SessionRegistry, fwd Forwarder, log *zap.Logger) *SignalRelay {
	return &SignalRelay{registry: registry, fwd: fwd, log: log}
}

// initiate creates a session in ringing and pushes the incoming-call notice to
// the callee's presence channel. sessionID comes from the caller's
// call-initiate or is empty for the REST path.
func (r *SignalRelay) initiate(sessionID, callerID, calleeID string, kind model.CallKind) (*model.Session, error) {
	sess, err := r.registry.Create(sessionID, callerID, calleeID, kind)
	if err != nil {
		return nil, err
	}
	notice := model.IncomingCallNotice{
		Event:     model.EventIncomingCall,
		SessionID: sess.ID,
		CallerID:  sess.CallerID,
		CallKind:  sess.Kind,
	}
	raw, _ := json.Marshal(notice)
	r.fwd.Notify(calleeID, raw)
	return sess, nil
}

// Initiate is the REST-path entry: the registry allocates the session id.
func (r *SignalRelay) Initiate(callerID, calleeID string, kind model.CallKind) (*model.Session, error) {
	return r.initiate("", callerID, calleeID, kind)
}

// Get is a read-only session lookup, passed through to the registry.
func (r *SignalRelay) Get(sessionID string) (*model.Session, error) {
	return r.registry.Get(sessionID)
}

// Route validates and forwards one signaling message. Validation order:
// session exists, sender is a participant, kind is legal for the current
// status; lifecycle kinds additionally drive the registry transition. The
// whole of validate-transition-forward runs under the session's lock, so
// messages for one session are delivered in Route invocation order.
func (r *SignalRelay) Route(msg *model.SignalMessage) error {
	if msg.Kind == model.SignalCallInitiate {
		return r.routeInitiate(msg)
	}

	e := r.registry.entry(msg.SessionID)
	if e == nil {
		return errs.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.sess
	if !sess.IsParticipant(msg.SenderID) {
		// Spoofed or misrouted sender id: drop, no retry.
		r.log.Warn("signal from non-participant",
			zap.String("session_id", msg.SessionID),
			zap.String("sender_id", msg.SenderID),
			zap.String("kind", string(msg.Kind)))
		return errs.ErrNotParticipant
	}
	if !model.KindAllowed(sess.Status, msg.Kind) {
		return errs.ErrInvalidTransition
	}

	if to := model.LifecycleTarget(msg.Kind); to != "" {
		if err := r.registry.applyTransition(e, msg.SenderID, to); err != nil {
			return err
		}
	}

	out := *msg
	out.RoutedAt = time.Now()
	raw, err := json.Marshal(&out)
	if err != nil {
		return err
	}

	if model.IsTerminal(e.sess.Status) {
		// Hangup and reject are broadcast to both sides, then the session
		// channels are closed.
		r.fwd.SendToUser(sess.ID, sess.CallerID, raw)
		r.fwd.SendToUser(sess.ID, sess.CalleeID, raw)
		r.fwd.CloseSession(sess.ID)
	} else {
		r.fwd.SendToUser(sess.ID, sess.Other(msg.SenderID), raw)
	}

	r.log.Debug("signal routed",
		zap.String("session_id", sess.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("kind", string(msg.Kind)))
	return nil
}

// routeInitiate handles call-initiate: the payload names the callee, the
// message's session id becomes the session's id.
func (r *SignalRelay) routeInitiate(msg *model.SignalMessage) error {
	var p model.InitiatePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("call-initiate payload: %w", err)
	}
	_, err := r.initiate(msg.SessionID, msg.SenderID, p.CalleeID, p.CallKind)
	return err
}
