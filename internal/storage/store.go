package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/formcoach/internal/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Store persists finished sessions and their review comments.
type Store interface {
	// SaveSession inserts or replaces a session and its repetition metrics.
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// ListSessions returns sessions newest first without their repetition
	// metrics. An empty patientID lists every patient.
	ListSessions(ctx context.Context, patientID string) ([]models.Session, error)
	// AddComment validates c, fills in its ID and creation time when unset,
	// and stores it.
	AddComment(ctx context.Context, c *models.Comment) error
	// ListComments returns a session's comments ordered by time offset.
	ListComments(ctx context.Context, sessionID uuid.UUID) ([]models.Comment, error)
	Close() error
}

func prepareComment(c *models.Comment) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects the store selected by driver and applies pending migrations.
func Open(ctx context.Context, driver, dsn, sqlitePath string) (Store, error) {
	switch driver {
	case DriverPostgres:
		if err := RunMigrations(dsn); err != nil {
			return nil, err
		}
		db, err := New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	case DriverSQLite:
		local, err := OpenLocalStore(sqlitePath)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}
