package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of interaction events
// (login success/failure, logout, denied authorizations).
type AuditLog struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	SubjectID string         `gorm:"index" json:"subject_id"`
	Username  string         `json:"username"`
	Action    string         `gorm:"not null;index" json:"action"`
	Result    string         `gorm:"not null" json:"result"`
	ClientID  string         `gorm:"index" json:"client_id"`
	Reason    string         `json:"reason"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
