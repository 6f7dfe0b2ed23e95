package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/webmail/internal/model"
)

const userColumns = "id, email, name, last_sync, created_at, updated_at"

// EnsureUser returns the user with email, creating it when absent. A
// non-empty name replaces the stored one.
func (s *SQLStore) EnsureUser(ctx context.Context, email, name string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("user email must not be empty")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
			updated_at = excluded.updated_at`),
		uuid.New().String(), email, name, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring user %s: %w", email, err)
	}

	return s.GetUserByEmail(ctx, email)
}

// GetUserByEmail retrieves a user by email address.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u,
		s.q("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", email, err)
	}
	return &u, nil
}

// TouchLastSync records the completion time of a successful sync.
func (s *SQLStore) TouchLastSync(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE users SET last_sync = ?, updated_at = ? WHERE id = ?"),
		at, at, userID,
	)
	if err != nil {
		return fmt.Errorf("updating last sync for user %s: %w", userID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}
