package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/formcoach/internal/models"
)

const sessionColumns = `id, patient_id, exercise, started_at, ended_at, avg_score, flags, reps, notes, local_only, video_url`

// SaveSession upserts a session and replaces its repetition metrics in one
// transaction.
func (db *DB) SaveSession(ctx context.Context, s *models.Session) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			exercise   = EXCLUDED.exercise,
			started_at = EXCLUDED.started_at,
			ended_at   = EXCLUDED.ended_at,
			avg_score  = EXCLUDED.avg_score,
			flags      = EXCLUDED.flags,
			reps       = EXCLUDED.reps,
			notes      = EXCLUDED.notes,
			local_only = EXCLUDED.local_only,
			video_url  = EXCLUDED.video_url`,
		s.ID, s.PatientID, string(s.Exercise), s.StartedAt, s.EndedAt, s.AvgScore,
		nonNil(s.Flags), s.Reps, s.Notes, s.LocalOnly, s.VideoURL)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", s.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rep_metrics WHERE session_id = $1`, s.ID); err != nil {
		return fmt.Errorf("clearing rep metrics: %w", err)
	}

	if len(s.RepMetrics) > 0 {
		query := `INSERT INTO rep_metrics (session_id, rep_index, t_start, t_end, angles, flags, score) VALUES `
		args := make([]any, 0, len(s.RepMetrics)*7)
		valueStrings := make([]string, 0, len(s.RepMetrics))
		for i, m := range s.RepMetrics {
			base := i * 7
			valueStrings = append(valueStrings, fmt.Sprintf(
				"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			))
			args = append(args, s.ID, m.RepIndex, m.TStart, m.TEnd, m.Angles, nonNil(m.Flags), m.Score)
		}
		if _, err := tx.Exec(ctx, query+strings.Join(valueStrings, ","), args...); err != nil {
			return fmt.Errorf("inserting rep metrics: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns a session with its repetition metrics.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", id, err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT rep_index, t_start, t_end, angles, flags, score
		FROM rep_metrics WHERE session_id = $1 ORDER BY rep_index`, id)
	if err != nil {
		return nil, fmt.Errorf("querying rep metrics: %w", err)
	}
	defer rows.Close()

	s.RepMetrics = []models.RepMetric{}
	for rows.Next() {
		var m models.RepMetric
		if err := rows.Scan(&m.RepIndex, &m.TStart, &m.TEnd, &m.Angles, &m.Flags, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning rep metric: %w", err)
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
func (db *DB) ListSessions(ctx context.Context, patientID string) ([]models.Session, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE $1 = '' OR patient_id = $1
		ORDER BY started_at DESC`, patientID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var exercise string
	err := row.Scan(&s.ID, &s.PatientID, &exercise, &s.StartedAt, &s.EndedAt, &s.AvgScore,
		&s.Flags, &s.Reps, &s.Notes, &s.LocalOnly, &s.VideoURL)
	if err != nil {
		return nil, err
	}
	s.Exercise = models.Exercise(exercise)
	s.Flags = nonNil(s.Flags)
	return &s, nil
}
