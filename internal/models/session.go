package models

import "time"

// Session is one persisted conversation thread.
type Session struct {
	ID                int64     `json:"id"`
	ProfileID         int64     `json:"profile_id"`
	Title             string    `json:"title"`
	LastMessage       string    `json:"last_message,omitempty"`
	HasGeneratedTitle bool      `json:"has_generated_title"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SessionUpdate is a field-level merge applied to an existing session.
type SessionUpdate struct {
	Title             *string
	LastMessage       *string
	HasGeneratedTitle *bool
}

// Apply merges the update into the session and stamps UpdatedAt.
func (u SessionUpdate) Apply(s *Session, now time.Time) {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.LastMessage != nil {
		s.LastMessage = *u.LastMessage
	}
	if u.HasGeneratedTitle != nil {
		s.HasGeneratedTitle = *u.HasGeneratedTitle
	}
	s.UpdatedAt = now
}
