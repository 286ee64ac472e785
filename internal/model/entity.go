package model

import (
	"strings"
	"time"
)

// CallSession — сущность сессии звонка (GORM). Единственная персистентная запись ядра.
type CallSession struct {
	ID        string     `gorm:"type:uuid;primaryKey"`
	CallerID  string     `gorm:"type:uuid;not null;index"`
	CalleeID  string     `gorm:"type:uuid;not null;index"`
	PairKey   string     `gorm:"size:80;not null;index"`
	Kind      string     `gorm:"size:10;not null"` // audio, video
	Status    string     `gorm:"size:20;not null;default:ringing"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	EndedAt   *time.Time `gorm:"column:ended_at"`
}

func (CallSession) TableName() string { return "call_sessions" }

// PairKey normalizes the unordered participant pair into a stable index key.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}
