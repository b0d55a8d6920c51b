package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogoutRequest is a pending logout flow. One is created by the session
// management endpoint when a client initiates logout, or synthesized on
// demand to capture session metadata before an upstream sign-out redirect.
type LogoutRequest struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	ClientID              string `json:"client_id"`
	ClientName            string `json:"client_name"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
	SignOutIframeURL      string `json:"sign_out_iframe_url"`

	// PromptRequired is false when the logout was requested through a
	// validated channel and confirmation can safely be skipped.
	PromptRequired bool `gorm:"default:true" json:"prompt_required"`

	SubjectID string `json:"subject_id"`
	SessionID string `json:"session_id"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *LogoutRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
