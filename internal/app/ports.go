package app

import (
	"context"

	"quiz-exercise-service/internal/domain"
)

// ExerciseStore is the durable persistence collaborator (in-memory, Postgres, etc).
type ExerciseStore interface {
	// LoadExercise returns domain.ErrExerciseNotFound for unknown or deleted exercises.
	LoadExercise(ctx context.Context, exerciseID string) (domain.Exercise, error)
	ExerciseExists(ctx context.Context, exerciseID string) (bool, error)
	// SaveResult upserts by result id. It returns domain.ErrExerciseNotFound when the exercise is gone.
	SaveResult(ctx context.Context, result domain.Result) error
	LoadAllResults(ctx context.Context, exerciseID string) ([]domain.Result, error)
	HasResult(ctx context.Context, exerciseID, participantID string) (bool, error)
	LoadStatistics(ctx context.Context, exerciseID string) (domain.Statistics, bool, error)
	ReplaceStatistics(ctx context.Context, exerciseID string, stats domain.Statistics) error
	SaveQuestions(ctx context.Context, exerciseID string, questions []domain.Question) error
}

// ExerciseRepository serves exercise definitions from a read cache in front of the store.
type ExerciseRepository interface {
	GetExercise(ctx context.Context, exerciseID string) (domain.Exercise, error)
	Invalidate(ctx context.Context, exerciseID string) error
}

// SubmissionCache buffers in-flight submissions until the scheduler finalizes them.
type SubmissionCache interface {
	// Put replaces the participant's pending submission. It fails with domain.ErrAlreadySubmitted
	// once a submitted entry is cached for the participant.
	Put(ctx context.Context, exerciseID, participantID string, sub domain.Submission) error
	Get(ctx context.Context, exerciseID, participantID string) (domain.Submission, bool, error)
	// DrainFinalizable removes and returns every submitted entry and every entry ended reports as over.
	// An exercise left without entries is dropped from the index. A non-nil error may come with a
	// non-empty result: the returned entries are already removed and must still be finalized.
	DrainFinalizable(ctx context.Context, exerciseID string, ended func(sub domain.Submission) bool) ([]domain.Submission, error)
	ExerciseIDs(ctx context.Context) ([]string, error)
	ClearExercise(ctx context.Context, exerciseID string) error
	ClearAll(ctx context.Context) error
}
