package chat

import (
	"testing"
	"time"

	"guitargpt/internal/models"
)

func int64p(v int64) *int64 { return &v }

func TestReduceMessageActions(t *testing.T) {
	now := time.Now().UTC()
	state := State{}

	state = Reduce(state, AddMessage{Message: models.Message{ID: 1, Role: models.RoleUser, Text: "hi"}})
	state = Reduce(state, AddMessage{Message: models.Message{ID: 2, Role: models.RoleAssistant, IsLoading: true}})
	if len(state.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(state.Messages))
	}

	segments := []models.Segment{models.TextSegment("hello back")}
	loading := false
	state = Reduce(state, UpdateMessage{
		ID:     2,
		Update: models.MessageUpdate{Segments: &segments, IsLoading: &loading},
		Now:    now,
	})
	got := state.Messages[1]
	if got.IsLoading || len(got.Segments) != 1 || got.Segments[0].Message != "hello back" {
		t.Fatalf("unexpected message after update: %+v", got)
	}
	if got.UpdatedAt == nil || !got.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at stamped")
	}

	// Updating an unknown id changes nothing.
	before := state
	state = Reduce(state, UpdateMessage{ID: 99, Update: models.MessageUpdate{IsLoading: &loading}, Now: now})
	if len(state.Messages) != len(before.Messages) {
		t.Fatalf("unknown id update must be a no-op")
	}

	state = Reduce(state, DeleteMessage{ID: 2})
	if len(state.Messages) != 1 || state.Messages[0].ID != 1 {
		t.Fatalf("unexpected messages after delete: %+v", state.Messages)
	}

	state = Reduce(state, SetMessages{Messages: nil})
	if len(state.Messages) != 0 {
		t.Fatalf("expected messages cleared")
	}
}

func TestReduceSessionActions(t *testing.T) {
	now := time.Now().UTC()
	state := State{}

	state = Reduce(state, SetSessions{Sessions: []models.Session{{ID: 1, Title: "first"}}})
	state = Reduce(state, AddSession{Session: models.Session{ID: 2, Title: "second"}})
	if len(state.Sessions) != 2 || state.Sessions[0].ID != 2 {
		t.Fatalf("new session must be prepended: %+v", state.Sessions)
	}

	title := "renamed"
	state = Reduce(state, UpdateSession{ID: 1, Update: models.SessionUpdate{Title: &title}, Now: now})
	if state.Sessions[1].Title != "renamed" {
		t.Fatalf("unexpected title: %q", state.Sessions[1].Title)
	}

	state = Reduce(state, SetActiveSession{ID: int64p(2)})
	state = Reduce(state, AddMessage{Message: models.Message{ID: 10, Role: models.RoleUser, Text: "hi"}})

	// Deleting a non-active session keeps focus and messages.
	state = Reduce(state, DeleteSession{ID: 1})
	if state.ActiveSessionID == nil || *state.ActiveSessionID != 2 || len(state.Messages) != 1 {
		t.Fatalf("deleting inactive session must not clear focus")
	}

	// Deleting the active session clears focus and messages.
	state = Reduce(state, DeleteSession{ID: 2})
	if state.ActiveSessionID != nil || state.Messages != nil || len(state.Sessions) != 0 {
		t.Fatalf("deleting active session must clear focus and messages: %+v", state)
	}
}

func TestReduceLoadingFlag(t *testing.T) {
	state := State{}
	state = Reduce(state, SetLoading{Loading: true})
	if !state.IsLoading {
		t.Fatalf("expected loading set")
	}
	state = Reduce(state, SetLoading{Loading: false})
	if state.IsLoading {
		t.Fatalf("expected loading cleared")
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	original := State{
		Messages: []models.Message{{ID: 1, Role: models.RoleAssistant, IsLoading: true}},
		Sessions: []models.Session{{ID: 1, Title: "before"}},
	}

	loading := false
	_ = Reduce(original, UpdateMessage{ID: 1, Update: models.MessageUpdate{IsLoading: &loading}, Now: time.Now()})
	if !original.Messages[0].IsLoading {
		t.Fatalf("input state mutated by message update")
	}

	title := "after"
	_ = Reduce(original, UpdateSession{ID: 1, Update: models.SessionUpdate{Title: &title}, Now: time.Now()})
	if original.Sessions[0].Title != "before" {
		t.Fatalf("input state mutated by session update")
	}
}
