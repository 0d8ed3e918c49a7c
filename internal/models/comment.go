package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownAuthor is returned for comment authors other than clinician or patient.
var ErrUnknownAuthor = errors.New("unknown comment author")

// Author identifies who wrote a comment.
type Author string

const (
	AuthorClinician Author = "clinician"
	AuthorPatient   Author = "patient"
)

// ParseAuthor returns the author for a case-insensitive name.
func ParseAuthor(s string) (Author, error) {
	switch a := Author(strings.ToLower(strings.TrimSpace(s))); a {
	case AuthorClinician, AuthorPatient:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAuthor, s)
}

// Comment is a note attached to a moment of a session. T is milliseconds
// from the start of the session.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Author    Author    `json:"author"`
	T         int64     `json:"t"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate reports the first problem that keeps the comment from being stored.
func (c Comment) Validate() error {
	if c.Author != AuthorClinician && c.Author != AuthorPatient {
		return fmt.Errorf("%w: %q", ErrUnknownAuthor, c.Author)
	}
	if strings.TrimSpace(c.Text) == "" {
		return errors.New("comment text is empty")
	}
	if c.T < 0 {
		return fmt.Errorf("comment time %d is negative", c.T)
	}
	return nil
}
