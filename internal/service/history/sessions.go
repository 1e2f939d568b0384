package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guitargpt/internal/models"
)

// CreateSession inserts a new conversation for the profile.
func (s *Service) CreateSession(ctx context.Context, profileID int64, title string) (*models.Session, error) {
	if profileID <= 0 {
		return nil, errors.New("profile_id is required")
	}
	if strings.TrimSpace(title) == "" {
		title = "New Chat"
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (profile_id, title, last_message, has_generated_title, created_at, updated_at)
		 VALUES (?, ?, '', 0, ?, ?)`,
		profileID, title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return &models.Session{ID: id, ProfileID: profileID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// ListSessions returns the profile's sessions ordered by last activity.
func (s *Service) ListSessions(ctx context.Context, profileID int64) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile_id, title, last_message, has_generated_title, created_at, updated_at
		 FROM sessions WHERE profile_id = ? ORDER BY updated_at DESC, id DESC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var se models.Session
		if err := rows.Scan(&se.ID, &se.ProfileID, &se.Title, &se.LastMessage, &se.HasGeneratedTitle, &se.CreatedAt, &se.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}

// GetSession returns one session by id.
func (s *Service) GetSession(ctx context.Context, sessionID int64) (*models.Session, error) {
	var se models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, profile_id, title, last_message, has_generated_title, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&se.ID, &se.ProfileID, &se.Title, &se.LastMessage, &se.HasGeneratedTitle, &se.CreatedAt, &se.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &se, nil
}

// RenameSession sets a session title and reports whether the row changed.
// Renaming to the current title is a no-op: it does not touch updated_at,
// so the session keeps its place in the list.
func (s *Service) RenameSession(ctx context.Context, sessionID int64, title string) (bool, error) {
	if sessionID <= 0 {
		return false, errors.New("invalid session id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return false, errors.New("title cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ? AND title <> ?`,
		title, time.Now().UTC(), sessionID, title,
	)
	if err != nil {
		return false, fmt.Errorf("rename session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing session from a no-op rename.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, sessionID,
		).Scan(&exists); err != nil {
			return false, fmt.Errorf("verify session: %w", err)
		}
		if !exists {
			return false, sql.ErrNoRows
		}
		return false, nil
	}
	return true, nil
}

// TouchSession records the latest user text as the session preview and
// bumps updated_at so the session rises to the top of the list.
func (s *Service) TouchSession(ctx context.Context, sessionID int64, lastMessage string) error {
	if sessionID <= 0 {
		return errors.New("invalid session id")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_message = ?, updated_at = ? WHERE id = ?`,
		lastMessage, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkTitleGenerated stores the one-time generated title.
func (s *Service) MarkTitleGenerated(ctx context.Context, sessionID int64, title string) error {
	if sessionID <= 0 {
		return errors.New("invalid session id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, has_generated_title = 1, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark title generated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteSession removes a session and all of its messages in one
// transaction so callers never observe an orphaned session.
func (s *Service) DeleteSession(ctx context.Context, sessionID int64) error {
	if sessionID <= 0 {
		return errors.New("invalid session id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session rows affected: %w", err)
	}
	if affected == 0 {
		tx.Rollback()
		return sql.ErrNoRows
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}
	return nil
}

// ClearHistory wipes every session and message belonging to the profile.
func (s *Service) ClearHistory(ctx context.Context, profileID int64) error {
	if profileID <= 0 {
		return errors.New("invalid profile id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE profile_id = ?)`,
		profileID,
	); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE profile_id = ?`, profileID); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit clear history: %w", err)
	}
	return nil
}
