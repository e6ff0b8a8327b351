package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"quiz-exercise-service/internal/batch"
	"quiz-exercise-service/internal/domain"
	"quiz-exercise-service/internal/scoring"
	"quiz-exercise-service/internal/statistics"
)

// QuizService contains the quiz use cases exposed to the request layer.
type QuizService struct {
	store     ExerciseStore
	exercises ExerciseRepository
	cache     SubmissionCache
	batches   *batch.Coordinator
	stats     *statistics.Aggregator
	scheduler *Scheduler
	log       *slog.Logger
	now       func() time.Time

	maxAnswerLength int
}

type options struct {
	log             *slog.Logger
	now             func() time.Time
	grace           time.Duration
	maxAnswerLength int
	interval        time.Duration
	attempts        int
	retryDelay      time.Duration
	workers         int
}

// Option customises a QuizService.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock is test-only for deterministic timing.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithGracePeriod(d time.Duration) Option {
	return func(o *options) { o.grace = d }
}

// WithMaxAnswerLength bounds short-answer texts in runes; zero disables the bound.
func WithMaxAnswerLength(n int) Option {
	return func(o *options) { o.maxAnswerLength = n }
}

func WithScheduleInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithPersistRetry sets how often saving one result is attempted and the initial delay between attempts.
func WithPersistRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		if attempts > 0 {
			o.attempts = attempts
		}
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

// WithWorkers limits how many exercises a scheduler pass handles in parallel.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func NewQuizService(store ExerciseStore, exercises ExerciseRepository, cache SubmissionCache, opts ...Option) *QuizService {
	o := options{
		log:             slog.Default(),
		now:             time.Now,
		maxAnswerLength: 500,
		interval:        5 * time.Second,
		attempts:        3,
		retryDelay:      100 * time.Millisecond,
		workers:         4,
	}
	for _, opt := range opts {
		opt(&o)
	}

	coordinator := batch.NewCoordinator(batch.WithClock(o.now), batch.WithGracePeriod(o.grace))
	aggregator := statistics.NewAggregator(store)
	s := &QuizService{
		store:           store,
		exercises:       exercises,
		cache:           cache,
		batches:         coordinator,
		stats:           aggregator,
		log:             o.log,
		now:             o.now,
		maxAnswerLength: o.maxAnswerLength,
	}
	s.scheduler = newScheduler(schedulerDeps{
		store:      store,
		exercises:  exercises,
		cache:      cache,
		batches:    coordinator,
		stats:      aggregator,
		log:        o.log.With("component", "scheduler"),
		now:        o.now,
		interval:   o.interval,
		attempts:   o.attempts,
		retryDelay: o.retryDelay,
		workers:    o.workers,
	})
	return s
}

// exercise loads the definition and makes sure the coordinator tracks it.
func (s *QuizService) exercise(ctx context.Context, exerciseID string) (domain.Exercise, error) {
	ex, err := s.exercises.GetExercise(ctx, exerciseID)
	if err != nil {
		return domain.Exercise{}, err
	}
	s.batches.Track(ex)
	return ex, nil
}

// SaveOrSubmitLive stores the participant's current answers. With submit set the submission is final
// and the scheduler commits it on its next pass.
func (s *QuizService) SaveOrSubmitLive(ctx context.Context, exerciseID, participantID string, sub domain.Submission, submit bool) (domain.Submission, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := scoring.ValidateSubmission(ex, sub, s.maxAnswerLength); err != nil {
		return domain.Submission{}, err
	}

	started, err := s.batches.IsStarted(ex.ID, participantID)
	if err != nil {
		return domain.Submission{}, err
	}
	if !started {
		return domain.Submission{}, fmt.Errorf("participant %s: %w", participantID, domain.ErrNotStarted)
	}
	allowed, err := s.batches.IsSubmissionAllowed(ex.ID, participantID)
	if err != nil {
		return domain.Submission{}, err
	}
	if !allowed {
		return domain.Submission{}, fmt.Errorf("participant %s: %w", participantID, domain.ErrSubmissionClosed)
	}

	existing, cached, err := s.cache.Get(ctx, ex.ID, participantID)
	if err != nil {
		return domain.Submission{}, err
	}
	switch {
	case cached && existing.Submitted:
		return domain.Submission{}, fmt.Errorf("participant %s: %w", participantID, domain.ErrAlreadySubmitted)
	case !cached:
		done, err := s.store.HasResult(ctx, ex.ID, participantID)
		if err != nil {
			return domain.Submission{}, err
		}
		if done {
			return domain.Submission{}, fmt.Errorf("participant %s: %w", participantID, domain.ErrAlreadySubmitted)
		}
	}

	sub.ID = existing.ID
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.ExerciseID = ex.ID
	sub.ParticipantID = participantID
	sub.Submitted = submit
	sub.Type = ""
	if submit {
		sub.Type = domain.SubmissionManual
	}
	sub.SubmittedAt = s.now()

	if err := s.cache.Put(ctx, ex.ID, participantID, sub); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// SubmitPreview scores a submission without persisting it or touching statistics.
func (s *QuizService) SubmitPreview(ctx context.Context, exerciseID string, sub domain.Submission) (domain.Result, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Result{}, err
	}
	if err := scoring.ValidateSubmission(ex, sub, s.maxAnswerLength); err != nil {
		return domain.Result{}, err
	}
	sub.ExerciseID = ex.ID
	sub.Submitted = true
	sub.Type = domain.SubmissionPractice
	sub.SubmittedAt = s.now()
	return scoring.ScoreSubmission(ex, sub), nil
}

// SubmitPractice scores, persists and counts an unrated practice attempt. Practice opens once the
// quiz has ended and only for exercises open for practice.
func (s *QuizService) SubmitPractice(ctx context.Context, exerciseID, participantID string, sub domain.Submission) (domain.Result, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Result{}, err
	}
	if !ex.OpenForPractice {
		return domain.Result{}, fmt.Errorf("exercise %s: %w", ex.ID, domain.ErrPracticeNotAllowed)
	}
	ended, err := s.batches.HasEnded(ex.ID)
	if err != nil {
		return domain.Result{}, err
	}
	if !ended {
		return domain.Result{}, fmt.Errorf("practice on %s: %w", ex.ID, domain.ErrNotEnded)
	}
	if err := scoring.ValidateSubmission(ex, sub, s.maxAnswerLength); err != nil {
		return domain.Result{}, err
	}

	sub.ID = uuid.NewString()
	sub.ExerciseID = ex.ID
	sub.ParticipantID = participantID
	sub.Submitted = true
	sub.Type = domain.SubmissionPractice
	sub.SubmittedAt = s.now()

	res := scoring.ScoreSubmission(ex, sub)
	res.ID = uuid.NewString()
	if err := s.store.SaveResult(ctx, res); err != nil {
		return domain.Result{}, fmt.Errorf("save practice result: %w", err)
	}
	if err := s.stats.Apply(ctx, ex, res); err != nil {
		return res, err
	}
	if err := s.stats.Flush(ctx, ex.ID); err != nil {
		s.log.Error("flush statistics after practice", "exercise", ex.ID, "error", err)
	}
	return res, nil
}

func (s *QuizService) JoinBatch(ctx context.Context, exerciseID, batchID, password, participantID string) (domain.ParticipationToken, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.ParticipationToken{}, err
	}
	return s.batches.Join(ex.ID, batchID, password, participantID)
}

func (s *QuizService) AddBatch(ctx context.Context, exerciseID string, start *time.Time, password string) (domain.Batch, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Batch{}, err
	}
	return s.batches.AddBatch(ex.ID, start, password)
}

func (s *QuizService) StartBatch(_ context.Context, batchID string) (domain.Batch, error) {
	return s.batches.StartBatch(batchID)
}

func (s *QuizService) StartNow(ctx context.Context, exerciseID string) (domain.Batch, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Batch{}, err
	}
	return s.batches.StartNow(ex.ID)
}

// EndQuiz moves the due date of the exercise to at.
func (s *QuizService) EndQuiz(ctx context.Context, exerciseID string, at time.Time) (domain.Exercise, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Exercise{}, err
	}
	return s.batches.EndQuiz(ex.ID, at)
}

func (s *QuizService) Batches(ctx context.Context, exerciseID string) ([]domain.Batch, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	return s.batches.Batches(ex.ID)
}

func (s *QuizService) ExerciseState(ctx context.Context, exerciseID string) (domain.ExerciseState, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return "", err
	}
	return s.batches.ExerciseState(ex.ID)
}

// Statistics returns the current statistics of an exercise.
func (s *QuizService) Statistics(ctx context.Context, exerciseID string) (domain.Statistics, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Statistics{}, err
	}
	return s.stats.Snapshot(ctx, ex.ID)
}

// RecalculateStatistics rebuilds the statistics from the persisted results.
func (s *QuizService) RecalculateStatistics(ctx context.Context, exerciseID string) (domain.Statistics, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Statistics{}, err
	}
	return s.stats.Rebuild(ctx, ex, func(ctx context.Context) ([]domain.Result, error) {
		results, err := s.store.LoadAllResults(ctx, ex.ID)
		if err != nil {
			return nil, fmt.Errorf("load results %s: %w", ex.ID, err)
		}
		return results, nil
	})
}

// ReEvaluate replaces the question definitions of an ended exercise, re-scores every persisted result
// and rebuilds the statistics. Questions missing from edited are deleted; new question ids are rejected.
func (s *QuizService) ReEvaluate(ctx context.Context, exerciseID string, edited []domain.Question) (domain.Statistics, error) {
	ex, err := s.exercise(ctx, exerciseID)
	if err != nil {
		return domain.Statistics{}, err
	}
	ended, err := s.batches.HasEnded(ex.ID)
	if err != nil {
		return domain.Statistics{}, err
	}
	if !ended {
		return domain.Statistics{}, fmt.Errorf("re-evaluate %s: %w", ex.ID, domain.ErrNotEnded)
	}
	seen := make(map[string]struct{}, len(edited))
	for _, q := range edited {
		prev, ok := ex.Question(q.ID)
		if !ok {
			return domain.Statistics{}, fmt.Errorf("re-evaluate %s: question %q: %w", ex.ID, q.ID, domain.ErrQuestionNotFound)
		}
		if prev.Type != q.Type {
			return domain.Statistics{}, fmt.Errorf("re-evaluate %s: question %q changed type: %w", ex.ID, q.ID, domain.ErrInvalidSubmission)
		}
		if _, dup := seen[q.ID]; dup {
			return domain.Statistics{}, fmt.Errorf("re-evaluate %s: question %q listed twice: %w", ex.ID, q.ID, domain.ErrInvalidSubmission)
		}
		seen[q.ID] = struct{}{}
	}

	updated := ex
	updated.Questions = edited

	// results and definitions change under the rebuild lock so no commit slips in between
	return s.stats.Rebuild(ctx, updated, func(ctx context.Context) ([]domain.Result, error) {
		results, err := s.store.LoadAllResults(ctx, ex.ID)
		if err != nil {
			return nil, fmt.Errorf("load results %s: %w", ex.ID, err)
		}
		if err := s.store.SaveQuestions(ctx, ex.ID, edited); err != nil {
			return nil, fmt.Errorf("save questions %s: %w", ex.ID, err)
		}
		if err := s.exercises.Invalidate(ctx, ex.ID); err != nil {
			s.log.Warn("invalidate exercise cache", "exercise", ex.ID, "error", err)
		}
		s.batches.Track(updated)

		rescored := make([]domain.Result, 0, len(results))
		changed := 0
		for _, prev := range results {
			res := scoring.ScoreSubmission(updated, scoring.PruneSubmission(updated, prev.Submission))
			res.ID = prev.ID
			res.Rated = prev.Rated
			res.CompletedAt = prev.CompletedAt
			if resultChanged(prev, res) {
				if err := s.store.SaveResult(ctx, res); err != nil {
					return nil, fmt.Errorf("save re-evaluated result %s: %w", res.ID, err)
				}
				changed++
			}
			rescored = append(rescored, res)
		}
		s.log.Info("re-evaluated exercise", "exercise", ex.ID, "results", len(results), "changed", changed)
		return rescored, nil
	})
}

func resultChanged(prev, next domain.Result) bool {
	if prev.Points != next.Points || prev.MaxPoints != next.MaxPoints {
		return true
	}
	if !reflect.DeepEqual(prev.QuestionScores, next.QuestionScores) {
		return true
	}
	return !prev.Submission.SameAnswers(next.Submission)
}

// ProcessOnce runs one synchronous scheduler pass.
func (s *QuizService) ProcessOnce(ctx context.Context) (Report, error) {
	return s.scheduler.ProcessOnce(ctx)
}

func (s *QuizService) StartSchedule() {
	s.scheduler.Start()
}

func (s *QuizService) StopSchedule() {
	s.scheduler.Stop()
}

// ClearQuizData drops cached submissions, timing and statistics state of one exercise.
func (s *QuizService) ClearQuizData(ctx context.Context, exerciseID string) error {
	if err := s.cache.ClearExercise(ctx, exerciseID); err != nil {
		return err
	}
	s.batches.Forget(exerciseID)
	s.stats.Forget(exerciseID)
	if err := s.exercises.Invalidate(ctx, exerciseID); err != nil && !errors.Is(err, domain.ErrExerciseNotFound) {
		return err
	}
	return nil
}

// ClearAllQuizData drops every cached submission and all in-memory timing and statistics state.
func (s *QuizService) ClearAllQuizData(ctx context.Context) error {
	if err := s.cache.ClearAll(ctx); err != nil {
		return err
	}
	s.batches.Reset()
	s.stats.Reset()
	return nil
}
