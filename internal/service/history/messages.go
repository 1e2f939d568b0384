package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"guitargpt/internal/models"
)

// encodeContent serializes message content for the content column: raw text
// for user rows, a JSON segment list for assistant rows.
func encodeContent(msg models.Message) (string, error) {
	if msg.Role == models.RoleUser {
		return msg.Text, nil
	}
	if msg.Segments == nil {
		return "[]", nil
	}
	data, err := json.Marshal(msg.Segments)
	if err != nil {
		return "", fmt.Errorf("encode segments: %w", err)
	}
	return string(data), nil
}

func decodeContent(msg *models.Message, content string) error {
	if msg.Role == models.RoleUser {
		msg.Text = content
		return nil
	}
	if content == "" {
		msg.Segments = []models.Segment{}
		return nil
	}
	if err := json.Unmarshal([]byte(content), &msg.Segments); err != nil {
		return fmt.Errorf("decode segments: %w", err)
	}
	return nil
}

// AddMessage persists a message and returns it with id and timestamp set.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.SessionID <= 0 {
		return nil, errors.New("session_id is required")
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return nil, fmt.Errorf("invalid role %q", msg.Role)
	}
	if msg.Role == models.RoleUser && strings.TrimSpace(msg.Text) == "" {
		return nil, errors.New("content cannot be empty")
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = ?)`, msg.SessionID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	content, err := encodeContent(msg)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, is_loading, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, content, msg.IsLoading, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}

// GetMessage returns one message by id.
func (s *Service) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, role, content, is_loading, created_at, updated_at
		 FROM messages WHERE id = ?`, id,
	)
	msg, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the session's messages ordered by creation time.
func (s *Service) ListMessages(ctx context.Context, sessionID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, is_loading, created_at, updated_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UpdateMessage applies a field-level merge to the stored message. Updates
// are last-writer-wins; unknown ids report sql.ErrNoRows.
func (s *Service) UpdateMessage(ctx context.Context, id int64, update models.MessageUpdate) error {
	if id <= 0 {
		return errors.New("invalid message id")
	}
	sets := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	if update.Segments != nil {
		data, err := json.Marshal(*update.Segments)
		if err != nil {
			return fmt.Errorf("encode segments: %w", err)
		}
		sets = append(sets, "content = ?")
		args = append(args, string(data))
	}
	if update.IsLoading != nil {
		sets = append(sets, "is_loading = ?")
		args = append(args, *update.IsLoading)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE messages SET %s WHERE id = ?`, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("message rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteMessage removes one message.
func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid message id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("message rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanMessage(scan func(dest ...interface{}) error) (*models.Message, error) {
	var (
		msg       models.Message
		content   string
		updatedAt sql.NullTime
	)
	if err := scan(&msg.ID, &msg.SessionID, &msg.Role, &content, &msg.IsLoading, &msg.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		msg.UpdatedAt = &t
	}
	if err := decodeContent(&msg, content); err != nil {
		return nil, err
	}
	return &msg, nil
}
