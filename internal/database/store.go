package database

import (
	"time"

	"github.com/psds-microservice/call-service/internal/model"
	"gorm.io/gorm"
)

// SessionStore persists call session rows (GORM).
// The in-memory registry is authoritative for validation; the store is the
// durable record behind it.
type SessionStore struct {
	db *gorm.DB
}

// NewSessionStore creates a GORM-backed session store.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save inserts a new call session row.
func (s *SessionStore) Save(sess *model.Session) error {
	ent := &model.CallSession{
		ID:        sess.ID,
		CallerID:  sess.CallerID,
		CalleeID:  sess.CalleeID,
		PairKey:   model.PairKey(sess.CallerID, sess.CalleeID),
		Kind:      string(sess.Kind),
		Status:    string(sess.Status),
		CreatedAt: sess.CreatedAt,
		EndedAt:   sess.EndedAt,
	}
	return s.db.Create(ent).Error
}

// UpdateStatus persists a status change; endedAt is set only for terminal status.
func (s *SessionStore) UpdateStatus(sessionID string, status model.CallStatus, endedAt *time.Time) error {
	updates := map[string]interface{}{"status": string(status)}
	if endedAt != nil {
		updates["ended_at"] = *endedAt
	}
	return s.db.Model(&model.CallSession{}).Where("id = ?", sessionID).Updates(updates).Error
}

// DeleteEndedBefore removes ended sessions whose ended_at is before cutoff.
func (s *SessionStore) DeleteEndedBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("status = ? AND ended_at < ?", string(model.CallStatusEnded), cutoff).
		Delete(&model.CallSession{})
	return res.RowsAffected, res.Error
}

// LoadActive returns non-terminal sessions, used to warm the registry on start.
func (s *SessionStore) LoadActive() ([]*model.Session, error) {
	var ents []model.CallSession
	err := s.db.Where("status <> ?", string(model.CallStatusEnded)).Find(&ents).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.Session, 0, len(ents))
	for i := range ents {
		out = append(out, entityToSession(&ents[i]))
	}
	return out, nil
}

func entityToSession(ent *model.CallSession) *model.Session {
	return &model.Session{
		ID:        ent.ID,
		CallerID:  ent.CallerID,
		CalleeID:  ent.CalleeID,
		Kind:      model.CallKind(ent.Kind),
		Status:    model.CallStatus(ent.Status),
		CreatedAt: ent.CreatedAt,
		EndedAt:   ent.EndedAt,
	}
}
