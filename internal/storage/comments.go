package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/claude/formcoach/internal/models"
)

// AddComment stores a review comment on an existing session.
func (db *DB) AddComment(ctx context.Context, c *models.Comment) error {
	if err := prepareComment(c); err != nil {
		return err
	}
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, c.SessionID).Scan(&exists); err != nil {
		return fmt.Errorf("checking session %s: %w", c.SessionID, err)
	}
	if !exists {
		return fmt.Errorf("session %s: %w", c.SessionID, ErrNotFound)
	}

	_, err := db.Pool.Exec(ctx,
		`INSERT INTO comments (id, session_id, author, t, text, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.SessionID, string(c.Author), c.T, c.Text, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

// ListComments returns a session's comments ordered by time offset.
func (db *DB) ListComments(ctx context.Context, sessionID uuid.UUID) ([]models.Comment, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, session_id, author, t, text, created_at
		FROM comments WHERE session_id = $1
		ORDER BY t, created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		var author string
		if err := rows.Scan(&c.ID, &c.SessionID, &author, &c.T, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		c.Author = models.Author(author)
		out = append(out, c)
	}
	return out, rows.Err()
}
