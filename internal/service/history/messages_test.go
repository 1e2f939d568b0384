package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"guitargpt/internal/models"
	"guitargpt/internal/music"
)

func modelsUserMessage(sessionID int64, text string) models.Message {
	return models.Message{SessionID: sessionID, Role: models.RoleUser, Text: text}
}

func TestAddMessageRequiresSession(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.AddMessage(context.Background(), modelsUserMessage(42, "hello")); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing session, got %v", err)
	}
}

func TestMessageContentRoundTrip(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "alice")
	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	user, err := svc.AddMessage(ctx, modelsUserMessage(session.ID, "show me a C major arpeggio"))
	if err != nil {
		t.Fatalf("add user message: %v", err)
	}
	segments := []models.Segment{
		models.TextSegment("Here is a **C major** arpeggio:"),
		models.NotesSegment([]music.Note{
			{Name: "C4", Duration: "8n", Velocity: 0.8},
			{Name: "E4", Duration: "8n", Velocity: 0.8},
			{Name: "G4", Duration: "8n", Velocity: 0.8},
		}),
	}
	assistant, err := svc.AddMessage(ctx, models.Message{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Segments:  segments,
	})
	if err != nil {
		t.Fatalf("add assistant message: %v", err)
	}

	// User rows store raw text, assistant rows a JSON segment list.
	var rawUser, rawAssistant string
	if err := db.QueryRow(`SELECT content FROM messages WHERE id = ?`, user.ID).Scan(&rawUser); err != nil {
		t.Fatalf("scan user row: %v", err)
	}
	if rawUser != "show me a C major arpeggio" {
		t.Fatalf("unexpected user content: %q", rawUser)
	}
	if err := db.QueryRow(`SELECT content FROM messages WHERE id = ?`, assistant.ID).Scan(&rawAssistant); err != nil {
		t.Fatalf("scan assistant row: %v", err)
	}
	if !strings.HasPrefix(rawAssistant, "[") {
		t.Fatalf("assistant content not JSON encoded: %q", rawAssistant)
	}

	listed, err := svc.ListMessages(ctx, session.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(listed))
	}
	if listed[0].ID != user.ID || listed[0].Text != user.Text {
		t.Fatalf("unexpected first message: %+v", listed[0])
	}
	got := listed[1]
	if len(got.Segments) != 2 || got.Segments[0].Kind != models.SegmentText || got.Segments[1].Kind != models.SegmentNotes {
		t.Fatalf("unexpected segments: %+v", got.Segments)
	}
	if len(got.Segments[1].Notes) != 3 || got.Segments[1].Notes[0].Name != "C4" {
		t.Fatalf("unexpected notes: %+v", got.Segments[1].Notes)
	}
}

func TestAddMessageEmptySegmentsStoredAsPlaceholder(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "bob")
	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	placeholder, err := svc.AddMessage(ctx, models.Message{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Segments:  []models.Segment{},
		IsLoading: true,
	})
	if err != nil {
		t.Fatalf("add placeholder: %v", err)
	}
	var content string
	var loading bool
	if err := db.QueryRow(`SELECT content, is_loading FROM messages WHERE id = ?`, placeholder.ID).Scan(&content, &loading); err != nil {
		t.Fatalf("scan placeholder: %v", err)
	}
	if content != "[]" || !loading {
		t.Fatalf("unexpected placeholder row: content=%q loading=%v", content, loading)
	}
}

func TestUpdateMessageMergesFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "carol")
	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	placeholder, err := svc.AddMessage(ctx, models.Message{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Segments:  []models.Segment{},
		IsLoading: true,
	})
	if err != nil {
		t.Fatalf("add placeholder: %v", err)
	}

	segments := []models.Segment{models.TextSegment("done")}
	loading := false
	if err := svc.UpdateMessage(ctx, placeholder.ID, models.MessageUpdate{
		Segments:  &segments,
		IsLoading: &loading,
	}); err != nil {
		t.Fatalf("update message: %v", err)
	}

	got, err := svc.GetMessage(ctx, placeholder.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.IsLoading {
		t.Fatalf("expected loading cleared")
	}
	if len(got.Segments) != 1 || got.Segments[0].Message != "done" {
		t.Fatalf("unexpected segments: %+v", got.Segments)
	}
	if got.UpdatedAt == nil {
		t.Fatalf("expected updated_at stamped")
	}

	if err := svc.UpdateMessage(ctx, placeholder.ID+99, models.MessageUpdate{IsLoading: &loading}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	// Empty update is a no-op, not an error.
	if err := svc.UpdateMessage(ctx, placeholder.ID, models.MessageUpdate{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "dave")
	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	msg, err := svc.AddMessage(ctx, modelsUserMessage(session.ID, "bye"))
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if err := svc.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if err := svc.DeleteMessage(ctx, msg.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
