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

// CreateProfile inserts the player profile created during onboarding.
func (s *Service) CreateProfile(ctx context.Context, name, avatar string) (*models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (name, avatar, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, avatar, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("profile id: %w", err)
	}
	return &models.Profile{ID: id, Name: name, Avatar: avatar, CreatedAt: now, UpdatedAt: now}, nil
}

// GetProfile returns the installation's profile. There is practically one;
// the earliest wins if more exist. sql.ErrNoRows means onboarding has not
// happened yet.
func (s *Service) GetProfile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	var avatar sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, avatar, created_at, updated_at FROM profiles ORDER BY id ASC LIMIT 1`,
	).Scan(&p.ID, &p.Name, &avatar, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Avatar = avatar.String
	return &p, nil
}

// UpdateProfile applies settings edits to the profile.
func (s *Service) UpdateProfile(ctx context.Context, id int64, name, avatar string) error {
	if id <= 0 {
		return errors.New("invalid profile id")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET name = ?, avatar = ?, updated_at = ? WHERE id = ?`,
		name, avatar, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("profile rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
