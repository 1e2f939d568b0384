package models

import (
	"strings"
	"time"

	"guitargpt/internal/music"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type SegmentKind string

const (
	SegmentText  SegmentKind = "message"
	SegmentNotes SegmentKind = "notes"
)

// Segment is one atomic piece of an assistant reply: markdown text or a
// playable note sequence.
type Segment struct {
	Kind    SegmentKind  `json:"kind"`
	Message string       `json:"message,omitempty"`
	Notes   []music.Note `json:"notes,omitempty"`
}

func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Message: text}
}

func NotesSegment(notes []music.Note) Segment {
	return Segment{Kind: SegmentNotes, Notes: notes}
}

// Message belongs to exactly one session. User messages carry plain text;
// assistant messages carry an ordered segment list and, while the gateway
// call is outstanding, the IsLoading placeholder flag.
type Message struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"session_id"`
	Role      Role       `json:"role"`
	Text      string     `json:"text,omitempty"`
	Segments  []Segment  `json:"segments,omitempty"`
	IsLoading bool       `json:"is_loading,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// PlainText flattens the message content into prompt-ready text.
func (m Message) PlainText() string {
	if m.Role == RoleUser {
		return m.Text
	}
	var parts []string
	for _, seg := range m.Segments {
		if seg.Kind == SegmentText && seg.Message != "" {
			parts = append(parts, seg.Message)
		}
	}
	return strings.Join(parts, "\n")
}

// Notes collects every note across the message's note segments in order.
func (m Message) Notes() []music.Note {
	var notes []music.Note
	for _, seg := range m.Segments {
		if seg.Kind == SegmentNotes {
			notes = append(notes, seg.Notes...)
		}
	}
	return notes
}

// MessageUpdate is a field-level merge applied to an existing message.
// Nil fields are left untouched.
type MessageUpdate struct {
	Segments  *[]Segment
	IsLoading *bool
}

// Apply merges the update into the message and stamps UpdatedAt.
func (u MessageUpdate) Apply(m *Message, now time.Time) {
	if u.Segments != nil {
		m.Segments = *u.Segments
	}
	if u.IsLoading != nil {
		m.IsLoading = *u.IsLoading
	}
	t := now
	m.UpdatedAt = &t
}
