// Package client implements the per-client session controller: the local half
// of the call state machine. It drives call initiation, answers, and feeds
// negotiation payloads into the local media pipeline. Media capture and the
// peer connection internals stay behind the MediaPipeline contract.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/call-service/internal/model"
	"go.uber.org/zap"
)

// MediaPipeline is the local media engine owned by the controller for the
// duration of one call. Created on initiate/incoming-call, closed on
// termination; never shared between calls.
type MediaPipeline interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	SetRemoteDescription(sdp json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	// OnRemoteTrack registers the callback fired when the remote media track
	// becomes available, i.e. the connection is live.
	OnRemoteTrack(fn func())
	Close() error
}

// PipelineFactory creates a fresh pipeline for one call.
type PipelineFactory func(kind model.CallKind) (MediaPipeline, error)

// SignalSender delivers a signaling message to the relay (WebSocket in
// production, the relay itself in tests).
type SignalSender interface {
	Send(ctx context.Context, msg *model.SignalMessage) error
}

// Transitioner reports the controller-observed connected state to the registry.
type Transitioner interface {
	Transition(sessionID, actorID string, to model.CallStatus) error
}

// ErrBusy is returned when a call is attempted while another one is active locally.
var ErrBusy = errors.New("another call is active")

// activeCall is the controller's per-call state.
type activeCall struct {
	sessionID string
	peerID    string
	kind      model.CallKind
	caller    bool
	pipe      MediaPipeline
	ringTimer *time.Timer
	ctx       context.Context
	cancel    context.CancelFunc
}

// Controller drives one user's side of at most one call at a time.
type Controller struct {
	userID      string
	newPipe     PipelineFactory
	sender      SignalSender
	registry    Transitioner
	ringTimeout time.Duration
	log         *zap.Logger

	mu   sync.Mutex
	call *activeCall
}

// NewController creates a controller for the given user identity.
func NewController(userID string, factory PipelineFactory, sender SignalSender, registry Transitioner, ringTimeout time.Duration, log *zap.Logger) *Controller {
	return &Controller{
		userID:      userID,
		newPipe:     factory,
		sender:      sender,
		registry:    registry,
		ringTimeout: ringTimeout,
		log:         log,
	}
}

// Initiate starts an outbound call and returns the new session id. The
// negotiation offer is produced once the callee's call-answer is observed. A
// callee that never answers is resolved by the ringing timer, which hangs up
// with call-end.
func (c *Controller) Initiate(ctx context.Context, calleeID string, kind model.CallKind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != nil {
		return "", ErrBusy
	}

	pipe, err := c.newPipe(kind)
	if err != nil {
		return "", err
	}
	sessionID := uuid.New().String()

	payload, _ := json.Marshal(model.InitiatePayload{CalleeID: calleeID, CallKind: kind})
	msg := &model.SignalMessage{
		SessionID: sessionID,
		SenderID:  c.userID,
		Kind:      model.SignalCallInitiate,
		Payload:   payload,
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		_ = pipe.Close()
		return "", err
	}

	callCtx, cancel := context.WithCancel(context.Background())
	call := &activeCall{
		sessionID: sessionID,
		peerID:    calleeID,
		kind:      kind,
		caller:    true,
		pipe:      pipe,
		ctx:       callCtx,
		cancel:    cancel,
	}
	pipe.OnRemoteTrack(func() { c.reportConnected(sessionID) })
	if c.ringTimeout > 0 {
		call.ringTimer = time.AfterFunc(c.ringTimeout, func() { c.ringingExpired(sessionID) })
	}
	c.call = call

	c.log.Info("call initiated",
		zap.String("session_id", sessionID),
		zap.String("callee_id", calleeID),
		zap.String("call_kind", string(kind)))
	return sessionID, nil
}

// HandleIncomingCall reacts to an incoming-call presence notice: it prepares
// the local pipeline and leaves the decision to Accept or Reject. If another
// call is active locally, the new one is rejected right away.
func (c *Controller) HandleIncomingCall(ctx context.Context, notice model.IncomingCallNotice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != nil {
		_ = c.send(ctx, notice.SessionID, model.SignalCallReject, nil)
		return ErrBusy
	}

	pipe, err := c.newPipe(notice.CallKind)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithCancel(context.Background())
	c.call = &activeCall{
		sessionID: notice.SessionID,
		peerID:    notice.CallerID,
		kind:      notice.CallKind,
		pipe:      pipe,
		ctx:       callCtx,
		cancel:    cancel,
	}
	pipe.OnRemoteTrack(func() { c.reportConnected(notice.SessionID) })

	c.log.Info("incoming call",
		zap.String("session_id", notice.SessionID),
		zap.String("caller_id", notice.CallerID),
		zap.String("call_kind", string(notice.CallKind)))
	return nil
}

// Accept answers the ringing call.
func (c *Controller) Accept(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil || c.call.caller {
		return errors.New("no incoming call to accept")
	}
	return c.send(ctx, c.call.sessionID, model.SignalCallAnswer, nil)
}

// Reject declines the ringing call and releases local media.
func (c *Controller) Reject(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil || c.call.caller {
		return errors.New("no incoming call to reject")
	}
	sessionID := c.call.sessionID
	c.teardownLocked()
	return c.send(ctx, sessionID, model.SignalCallReject, nil)
}

// HandleSignal dispatches a forwarded signaling message into the local media
// pipeline. Messages for a session other than the active one are ignored:
// they are stale by definition.
func (c *Controller) HandleSignal(ctx context.Context, msg *model.SignalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.call
	if call == nil || call.sessionID != msg.SessionID {
		return nil
	}

	switch msg.Kind {
	case model.SignalCallAnswer:
		if call.ringTimer != nil {
			call.ringTimer.Stop()
		}
		offer, err := call.pipe.CreateOffer(call.ctx)
		if err != nil {
			return err
		}
		return c.send(ctx, call.sessionID, model.SignalNegotiationOffer, offer)

	case model.SignalNegotiationOffer:
		answer, err := call.pipe.CreateAnswer(call.ctx, msg.Payload)
		if err != nil {
			return err
		}
		return c.send(ctx, call.sessionID, model.SignalNegotiationAnswer, answer)

	case model.SignalNegotiationAnswer:
		return call.pipe.SetRemoteDescription(msg.Payload)

	case model.SignalNegotiationCandidate:
		return call.pipe.AddICECandidate(msg.Payload)

	case model.SignalCallReject, model.SignalCallEnd:
		c.teardownLocked()
		return nil
	}
	return nil
}

// Terminate tears down local media and hangs up with a best-effort call-end.
// Idempotent: a second call is a local no-op even if the relay would reject
// the duplicate call-end.
func (c *Controller) Terminate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.call
	if call == nil {
		return
	}
	sessionID := call.sessionID
	c.teardownLocked()
	if err := c.send(ctx, sessionID, model.SignalCallEnd, nil); err != nil {
		c.log.Debug("call-end not delivered", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Active returns the active session id, or "" when idle.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil {
		return ""
	}
	return c.call.sessionID
}

// reportConnected drives the explicit connected transition once the local
// pipeline reports the remote track. Fired from the pipeline's callback.
func (c *Controller) reportConnected(sessionID string) {
	if err := c.registry.Transition(sessionID, c.userID, model.CallStatusConnected); err != nil {
		c.log.Warn("connected transition rejected",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ringingExpired fires when the callee never answered within the timeout.
func (c *Controller) ringingExpired(sessionID string) {
	c.mu.Lock()
	if c.call == nil || c.call.sessionID != sessionID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.log.Info("ringing timeout, hanging up", zap.String("session_id", sessionID))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Terminate(ctx)
}

// teardownLocked releases the per-call resources; the caller holds c.mu.
func (c *Controller) teardownLocked() {
	call := c.call
	c.call = nil
	if call.ringTimer != nil {
		call.ringTimer.Stop()
	}
	call.cancel()
	if err := call.pipe.Close(); err != nil {
		c.log.Warn("pipeline close failed", zap.String("session_id", call.sessionID), zap.Error(err))
	}
}

// send builds and delivers one signaling message; the caller holds c.mu.
func (c *Controller) send(ctx context.Context, sessionID string, kind model.SignalKind, payload json.RawMessage) error {
	return c.sender.Send(ctx, &model.SignalMessage{
		SessionID: sessionID,
		SenderID:  c.userID,
		Kind:      kind,
		Payload:   payload,
	})
}
