package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/formcoach/internal/models"
)

// LocalStore keeps sessions in a SQLite file on this machine. It backs
// sessions recorded with localOnly set and deployments without Postgres.
type LocalStore struct {
	db *sql.DB
}

var _ Store = (*LocalStore)(nil)

// OpenLocalStore opens (or creates) the SQLite database at path and applies
// pending migrations.
func OpenLocalStore(path string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating local store dir: %w", err)
	}
	if err := runMigrations("migrations/sqlite", "sqlite://"+path); err != nil {
		return nil, fmt.Errorf("migrating local store: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under the pool.
	db.SetMaxOpenConns(1)
	return &LocalStore{db: db}, nil
}

// Close closes the database.
func (l *LocalStore) Close() error {
	return l.db.Close()
}

// SaveSession upserts a session and replaces its repetition metrics.
func (l *LocalStore) SaveSession(ctx context.Context, s *models.Session) error {
	flags, err := json.Marshal(nonNil(s.Flags))
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = excluded.patient_id, exercise = excluded.exercise,
			started_at = excluded.started_at, ended_at = excluded.ended_at,
			avg_score = excluded.avg_score, flags = excluded.flags, reps = excluded.reps,
			notes = excluded.notes, local_only = excluded.local_only, video_url = excluded.video_url`,
		s.ID.String(), s.PatientID, string(s.Exercise), formatTime(s.StartedAt), formatTimePtr(s.EndedAt),
		s.AvgScore, string(flags), s.Reps, nullString(s.Notes), s.LocalOnly, nullString(s.VideoURL))
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", s.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rep_metrics WHERE session_id = ?`, s.ID.String()); err != nil {
		return fmt.Errorf("clearing rep metrics: %w", err)
	}
	for _, m := range s.RepMetrics {
		ang, err := json.Marshal(m.Angles)
		if err != nil {
			return fmt.Errorf("encoding angles: %w", err)
		}
		mflags, err := json.Marshal(nonNil(m.Flags))
		if err != nil {
			return fmt.Errorf("encoding rep flags: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rep_metrics (session_id, rep_index, t_start, t_end, angles, flags, score)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.ID.String(), m.RepIndex, m.TStart, m.TEnd, string(ang), string(mflags), m.Score)
		if err != nil {
			return fmt.Errorf("inserting rep metric %d: %w", m.RepIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns a session with its repetition metrics.
func (l *LocalStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id.String())
	s, err := scanLocalSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", id, err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT rep_index, t_start, t_end, angles, flags, score
		FROM rep_metrics WHERE session_id = ? ORDER BY rep_index`, id.String())
	if err != nil {
		return nil, fmt.Errorf("querying rep metrics: %w", err)
	}
	defer rows.Close()

	s.RepMetrics = []models.RepMetric{}
	for rows.Next() {
		var m models.RepMetric
		var ang, flags string
		if err := rows.Scan(&m.RepIndex, &m.TStart, &m.TEnd, &ang, &flags, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning rep metric: %w", err)
		}
		if err := json.Unmarshal([]byte(ang), &m.Angles); err != nil {
			return nil, fmt.Errorf("decoding rep %d angles: %w", m.RepIndex, err)
		}
		if err := json.Unmarshal([]byte(flags), &m.Flags); err != nil {
			return nil, fmt.Errorf("decoding rep %d flags: %w", m.RepIndex, err)
		}
		m.Flags = nonNil(m.Flags)
		s.RepMetrics = append(s.RepMetrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns sessions newest first.
func (l *LocalStore) ListSessions(ctx context.Context, patientID string) ([]models.Session, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE ? = '' OR patient_id = ?
		ORDER BY started_at DESC`, patientID, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanLocalSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// AddComment stores a review comment on an existing session.
func (l *LocalStore) AddComment(ctx context.Context, c *models.Comment) error {
	if err := prepareComment(c); err != nil {
		return err
	}
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, c.SessionID.String()).Scan(&n); err != nil {
		return fmt.Errorf("checking session %s: %w", c.SessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", c.SessionID, ErrNotFound)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO comments (id, session_id, author, t, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.SessionID.String(), string(c.Author), c.T, c.Text, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

// ListComments returns a session's comments ordered by time offset.
func (l *LocalStore) ListComments(ctx context.Context, sessionID uuid.UUID) ([]models.Comment, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, session_id, author, t, text, created_at
		FROM comments WHERE session_id = ?
		ORDER BY t, created_at`, sessionID.String())
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		var id, sid, author, created string
		if err := rows.Scan(&id, &sid, &author, &c.T, &c.Text, &created); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing comment id: %w", err)
		}
		if c.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, fmt.Errorf("parsing comment session id: %w", err)
		}
		if c.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parsing comment time: %w", err)
		}
		c.Author = models.Author(author)
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLocalSession(row scanner) (*models.Session, error) {
	var (
		s               models.Session
		id, exercise    string
		started, flags  string
		ended           sql.NullString
		notes, videoURL sql.NullString
	)
	err := row.Scan(&id, &s.PatientID, &exercise, &started, &ended, &s.AvgScore,
		&flags, &s.Reps, &notes, &s.LocalOnly, &videoURL)
	if err != nil {
		return nil, err
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing session id: %w", err)
	}
	s.Exercise = models.Exercise(exercise)
	if s.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if ended.Valid {
		t, err := time.Parse(timeLayout, ended.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		s.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(flags), &s.Flags); err != nil {
		return nil, fmt.Errorf("decoding flags: %w", err)
	}
	s.Flags = nonNil(s.Flags)
	if notes.Valid {
		s.Notes = &notes.String
	}
	if videoURL.Valid {
		s.VideoURL = &videoURL.String
	}
	return &s, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
