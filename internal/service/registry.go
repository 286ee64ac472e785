package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/call-service/internal/errs"
	"github.com/psds-microservice/call-service/internal/model"
	"go.uber.org/zap"
)

// SessionStore is the durable record behind the registry (GORM in production,
// fake in tests). A store failure after a transition is applied degrades
// durability, not correctness: the in-memory map stays authoritative.
type SessionStore interface {
	Save(sess *model.Session) error
	UpdateStatus(sessionID string, status model.CallStatus, endedAt *time.Time) error
	DeleteEndedBefore(cutoff time.Time) (int64, error)
}

// sessionEntry serializes all mutations of one session. Different sessions
// proceed fully in parallel; there is no global lock on the hot path.
type sessionEntry struct {
	mu   sync.Mutex
	sess model.Session
}

// SessionRegistry is the authoritative store of call sessions and the only
// component that may change a session's status.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	pairs    map[string]string   // active pair key -> session id
	seen     map[string]struct{} // every id ever allocated; ids are never reused
	store    SessionStore
	log      *zap.Logger
}

// NewSessionRegistry creates a session registry. store may be nil in tests.
func NewSessionRegistry(store SessionStore, log *zap.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*sessionEntry),
		pairs:    make(map[string]string),
		seen:     make(map[string]struct{}),
		store:    store,
		log:      log,
	}
}

// Warm preloads active sessions from the durable store after a restart.
func (r *SessionRegistry) Warm(sessions []*model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range sessions {
		if _, ok := r.sessions[s.ID]; ok {
			continue
		}
		r.sessions[s.ID] = &sessionEntry{sess: *s}
		r.seen[s.ID] = struct{}{}
		if model.IsActive(s.Status) {
			r.pairs[model.PairKey(s.CallerID, s.CalleeID)] = s.ID
		}
	}
}

// Create allocates a new session in ringing. sessionID may be supplied by the
// caller (it is the routing key for the whole call) or left empty to have the
// registry allocate one. Fails with ErrAlreadyInCall if an active session
// exists for the unordered pair, and with ErrSessionIDReused if the id was
// ever used before (stale-message replay protection).
func (r *SessionRegistry) Create(sessionID, callerID, calleeID string, kind model.CallKind) (*model.Session, error) {
	if callerID == calleeID {
		return nil, errs.ErrSelfCall
	}
	if !model.ValidKind(kind) {
		return nil, errs.ErrInvalidKind
	}

	pk := model.PairKey(callerID, calleeID)

	r.mu.Lock()
	if _, busy := r.pairs[pk]; busy {
		r.mu.Unlock()
		return nil, errs.ErrAlreadyInCall
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else if _, used := r.seen[sessionID]; used {
		r.mu.Unlock()
		return nil, errs.ErrSessionIDReused
	}
	sess := model.Session{
		ID:        sessionID,
		CallerID:  callerID,
		CalleeID:  calleeID,
		Kind:      kind,
		Status:    model.CallStatusRinging,
		CreatedAt: time.Now(),
	}
	r.sessions[sessionID] = &sessionEntry{sess: sess}
	r.pairs[pk] = sessionID
	r.seen[sessionID] = struct{}{}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Save(&sess); err != nil {
			// Roll back: a session the store refused never existed.
			r.mu.Lock()
			delete(r.sessions, sessionID)
			delete(r.pairs, pk)
			r.mu.Unlock()
			return nil, err
		}
	}

	r.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("caller_id", callerID),
		zap.String("callee_id", calleeID),
		zap.String("call_kind", string(kind)))
	out := sess
	return &out, nil
}

// Get returns a snapshot of the session.
func (r *SessionRegistry) Get(sessionID string) (*model.Session, error) {
	e := r.entry(sessionID)
	if e == nil {
		return nil, errs.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.sess
	return &out, nil
}

// Transition applies the state machine for actorID's request to move the
// session to the given status. Illegal edges leave the status unchanged.
func (r *SessionRegistry) Transition(sessionID, actorID string, to model.CallStatus) error {
	e := r.entry(sessionID)
	if e == nil {
		return errs.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return r.applyTransition(e, actorID, to)
}

// Sweep removes ended sessions older than maxAge. Non-terminal sessions are
// never reaped regardless of age; a stuck ringing session is the caller
// controller's ringing timeout to resolve.
func (r *SessionRegistry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	// Lock order is always entry then registry, so collect entries first.
	r.mu.RLock()
	entries := make(map[string]*sessionEntry, len(r.sessions))
	for id, e := range r.sessions {
		entries[id] = e
	}
	r.mu.RUnlock()

	var doomed []string
	for id, e := range entries {
		e.mu.Lock()
		if e.sess.Status == model.CallStatusEnded && e.sess.EndedAt != nil && e.sess.EndedAt.Before(cutoff) {
			doomed = append(doomed, id)
		}
		e.mu.Unlock()
	}
	if len(doomed) > 0 {
		r.mu.Lock()
		for _, id := range doomed {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
	}

	if r.store != nil {
		if _, err := r.store.DeleteEndedBefore(cutoff); err != nil {
			r.log.Warn("sweep: store delete failed", zap.Error(err))
		}
	}
	if len(doomed) > 0 {
		r.log.Info("sweep: removed ended sessions", zap.Int("count", len(doomed)))
	}
	return len(doomed)
}

// ActiveCount returns the number of sessions held in memory (for debugging).
func (r *SessionRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) entry(sessionID string) *sessionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// applyTransition mutates the session; the caller must hold e.mu.
func (r *SessionRegistry) applyTransition(e *sessionEntry, actorID string, to model.CallStatus) error {
	if !e.sess.IsParticipant(actorID) {
		r.log.Warn("transition by non-participant",
			zap.String("session_id", e.sess.ID),
			zap.String("actor_id", actorID))
		return errs.ErrNotParticipant
	}
	if !model.CanTransition(e.sess.Status, to) {
		return errs.ErrInvalidTransition
	}

	e.sess.Status = to
	var endedAt *time.Time
	if model.IsTerminal(to) {
		now := time.Now()
		e.sess.EndedAt = &now
		endedAt = &now
		r.releasePair(&e.sess)
	}

	if r.store != nil {
		if err := r.store.UpdateStatus(e.sess.ID, to, endedAt); err != nil {
			r.log.Warn("transition: store update failed",
				zap.String("session_id", e.sess.ID), zap.Error(err))
		}
	}

	r.log.Info("session transitioned",
		zap.String("session_id", e.sess.ID),
		zap.String("actor_id", actorID),
		zap.String("status", string(to)))
	return nil
}

// releasePair frees the unordered pair for a new call once the session ends.
func (r *SessionRegistry) releasePair(sess *model.Session) {
	pk := model.PairKey(sess.CallerID, sess.CalleeID)
	r.mu.Lock()
	if r.pairs[pk] == sess.ID {
		delete(r.pairs, pk)
	}
	r.mu.Unlock()
}
