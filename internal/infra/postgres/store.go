package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-exercise-service/internal/domain"
)

// foreignKeyViolation is the SQLSTATE raised when a row references a deleted exercise.
const foreignKeyViolation = "23503"

// Store keeps exercises, results and statistics as JSONB documents in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LoadExercise(ctx context.Context, exerciseID string) (domain.Exercise, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM exercises WHERE id=$1`, exerciseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Exercise{}, fmt.Errorf("exercise %s: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	if err != nil {
		return domain.Exercise{}, fmt.Errorf("load exercise: %w", err)
	}
	var ex domain.Exercise
	if err := json.Unmarshal(raw, &ex); err != nil {
		return domain.Exercise{}, fmt.Errorf("unmarshal exercise: %w", err)
	}
	return ex, nil
}

// SaveExercise creates or replaces an exercise definition.
func (s *Store) SaveExercise(ctx context.Context, ex domain.Exercise) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exercise: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO exercises (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		ex.ID, string(data))
	if err != nil {
		return fmt.Errorf("save exercise: %w", err)
	}
	return nil
}

// DeleteExercise removes an exercise; its results and statistics go with it.
func (s *Store) DeleteExercise(ctx context.Context, exerciseID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM exercises WHERE id=$1`, exerciseID); err != nil {
		return fmt.Errorf("delete exercise: %w", err)
	}
	return nil
}

func (s *Store) ExerciseExists(ctx context.Context, exerciseID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exercises WHERE id=$1)`, exerciseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check exercise: %w", err)
	}
	return exists, nil
}

func (s *Store) SaveResult(ctx context.Context, result domain.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result %s: %v: %w", result.ID, err, domain.ErrInvalidSubmission)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (id, exercise_id, participant_id, rated, points, completed_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		 ON CONFLICT (id) DO UPDATE SET rated=EXCLUDED.rated, points=EXCLUDED.points,
		   completed_at=EXCLUDED.completed_at, data=EXCLUDED.data`,
		result.ID, result.ExerciseID, result.ParticipantID, result.Rated, result.Points, result.CompletedAt, string(data))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("save result %s: %w", result.ID, domain.ErrExerciseNotFound)
	}
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *Store) LoadAllResults(ctx context.Context, exerciseID string) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM results WHERE exercise_id=$1 ORDER BY completed_at, id`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer rows.Close()

	var results []domain.Result
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var res domain.Result
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	return results, nil
}

// HasResult reports whether the participant already has a rated result.
func (s *Store) HasResult(ctx context.Context, exerciseID, participantID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM results WHERE exercise_id=$1 AND participant_id=$2 AND rated)`,
		exerciseID, participantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check result: %w", err)
	}
	return exists, nil
}

func (s *Store) LoadStatistics(ctx context.Context, exerciseID string) (domain.Statistics, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM statistics WHERE exercise_id=$1`, exerciseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Statistics{}, false, nil
	}
	if err != nil {
		return domain.Statistics{}, false, fmt.Errorf("load statistics: %w", err)
	}
	var stats domain.Statistics
	if err := json.Unmarshal(raw, &stats); err != nil {
		return domain.Statistics{}, false, fmt.Errorf("unmarshal statistics: %w", err)
	}
	return stats, true, nil
}

func (s *Store) ReplaceStatistics(ctx context.Context, exerciseID string, stats domain.Statistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO statistics (exercise_id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (exercise_id) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		exerciseID, string(data))
	if isForeignKeyViolation(err) {
		return fmt.Errorf("replace statistics %s: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	if err != nil {
		return fmt.Errorf("replace statistics: %w", err)
	}
	return nil
}

// SaveQuestions swaps the question list of a stored exercise inside one transaction.
func (s *Store) SaveQuestions(ctx context.Context, exerciseID string, questions []domain.Question) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT data FROM exercises WHERE id=$1 FOR UPDATE`, exerciseID).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save questions %s: %w", exerciseID, domain.ErrExerciseNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock exercise: %w", err)
		}
		var ex domain.Exercise
		if err := json.Unmarshal(raw, &ex); err != nil {
			return fmt.Errorf("unmarshal exercise: %w", err)
		}
		ex.Questions = questions
		data, err := json.Marshal(ex)
		if err != nil {
			return fmt.Errorf("marshal exercise: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE exercises SET data=$2::jsonb, updated_at=now() WHERE id=$1`, exerciseID, string(data)); err != nil {
			return fmt.Errorf("update questions: %w", err)
		}
		return nil
	})
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
