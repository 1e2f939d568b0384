package history

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

func TestCreateSessionDefaultsTitle(t *testing.T) {
	svc, _ := newTestService(t)
	profileID := insertTestProfile(t, svc, "alice")

	session, err := svc.CreateSession(context.Background(), profileID, "  ")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Title != "New Chat" {
		t.Fatalf("expected placeholder title, got %q", session.Title)
	}
	if session.HasGeneratedTitle {
		t.Fatalf("new session must not be marked as title-generated")
	}
}

func TestListSessionsOrdersByActivity(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "bob")

	first, err := svc.CreateSession(ctx, profileID, "first")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.CreateSession(ctx, profileID, "second")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Age the second session, then touch the first so it leads the list.
	if _, err := db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), second.ID); err != nil {
		t.Fatalf("age session: %v", err)
	}
	if err := svc.TouchSession(ctx, first.ID, "latest question"); err != nil {
		t.Fatalf("touch session: %v", err)
	}

	sessions, err := svc.ListSessions(ctx, profileID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != first.ID {
		t.Fatalf("expected touched session first, got %d", sessions[0].ID)
	}
	if sessions[0].LastMessage != "latest question" {
		t.Fatalf("unexpected last message: %q", sessions[0].LastMessage)
	}
}

func TestRenameSessionNoOpKeepsUpdatedAt(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "carol")

	session, err := svc.CreateSession(ctx, profileID, "Scales")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	old := time.Now().UTC().Add(-time.Hour)
	if _, err := db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, old, session.ID); err != nil {
		t.Fatalf("age session: %v", err)
	}

	changed, err := svc.RenameSession(ctx, session.ID, "Scales")
	if err != nil {
		t.Fatalf("no-op rename: %v", err)
	}
	if changed {
		t.Fatalf("same-title rename must report no change")
	}
	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.UpdatedAt.After(old.Add(time.Second)) {
		t.Fatalf("no-op rename must not bump updated_at, got %v", got.UpdatedAt)
	}

	changed, err = svc.RenameSession(ctx, session.ID, "Modes")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !changed {
		t.Fatalf("real rename must report a change")
	}
	got, err = svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Title != "Modes" {
		t.Fatalf("expected renamed title, got %q", got.Title)
	}
	if !got.UpdatedAt.After(old) {
		t.Fatalf("real rename must bump updated_at")
	}
}

func TestRenameSessionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "dave")

	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.RenameSession(ctx, session.ID, "   "); err == nil {
		t.Fatalf("expected error for blank title")
	}
	if _, err := svc.RenameSession(ctx, session.ID+99, "Anything"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestMarkTitleGenerated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "erin")

	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := svc.MarkTitleGenerated(ctx, session.ID, "Blues Licks"); err != nil {
		t.Fatalf("mark title generated: %v", err)
	}
	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Title != "Blues Licks" || !got.HasGeneratedTitle {
		t.Fatalf("unexpected session after title generation: %+v", got)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	profileID := insertTestProfile(t, svc, "frank")

	session, err := svc.CreateSession(ctx, profileID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.AddMessage(ctx, modelsUserMessage(session.ID, "hi")); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, session.ID).Scan(&remaining); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected cascade delete, %d messages remain", remaining)
	}
	if err := svc.DeleteSession(ctx, session.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
}
