package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quiz-exercise-service/internal/batch"
	"quiz-exercise-service/internal/domain"
	"quiz-exercise-service/internal/scoring"
	"quiz-exercise-service/internal/statistics"
)

// Report summarises one scheduler pass.
type Report struct {
	Exercises int `json:"exercises"`
	Persisted int `json:"persisted"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
}

func (r *Report) add(o Report) {
	r.Exercises += o.Exercises
	r.Persisted += o.Persisted
	r.Dropped += o.Dropped
	r.Failed += o.Failed
	r.Requeued += o.Requeued
}

type schedulerDeps struct {
	store      ExerciseStore
	exercises  ExerciseRepository
	cache      SubmissionCache
	batches    *batch.Coordinator
	stats      *statistics.Aggregator
	log        *slog.Logger
	now        func() time.Time
	interval   time.Duration
	attempts   int
	retryDelay time.Duration
	workers    int
}

// Scheduler periodically finalizes cached submissions: it scores them, persists the results and
// feeds the statistics. Passes never overlap.
type Scheduler struct {
	schedulerDeps

	runMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newScheduler(deps schedulerDeps) *Scheduler {
	return &Scheduler{schedulerDeps: deps}
}

// Start begins ticking. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop halts ticking and waits for a pass in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a slow pass makes the next tick skip instead of queueing up
			if !s.runMu.TryLock() {
				continue
			}
			report, err := s.pass(ctx)
			s.runMu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("scheduler pass failed", "error", err)
				continue
			}
			if report.Persisted+report.Dropped+report.Failed+report.Requeued > 0 {
				s.log.Info("scheduler pass", "exercises", report.Exercises, "persisted", report.Persisted,
					"dropped", report.Dropped, "failed", report.Failed, "requeued", report.Requeued)
			}
		}
	}
}

// ProcessOnce runs one pass synchronously, waiting for a pass in progress first.
func (s *Scheduler) ProcessOnce(ctx context.Context) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.pass(ctx)
}

func (s *Scheduler) pass(ctx context.Context) (Report, error) {
	cached, err := s.cache.ExerciseIDs(ctx)
	if err != nil {
		return Report{}, err
	}
	ids := make(map[string]struct{}, len(cached))
	for _, id := range cached {
		ids[id] = struct{}{}
	}
	// exercises without cache entries may still owe timeout submissions
	for _, id := range s.batches.Tracked() {
		if len(s.batches.EndedParticipants(id)) > 0 {
			ids[id] = struct{}{}
		}
	}

	var (
		mu    sync.Mutex
		total Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for id := range ids {
		id := id
		g.Go(func() error {
			r := s.processExercise(gctx, id)
			mu.Lock()
			total.add(r)
			mu.Unlock()
			return gctx.Err()
		})
	}
	err = g.Wait()
	return total, err
}

// processExercise handles every finalizable submission of one exercise. Exactly one goroutine runs it
// per exercise and pass, so statistics keep a single writer.
func (s *Scheduler) processExercise(ctx context.Context, exerciseID string) Report {
	report := Report{Exercises: 1}
	log := s.log.With("exercise", exerciseID)

	ex, err := s.exercises.GetExercise(ctx, exerciseID)
	if errors.Is(err, domain.ErrExerciseNotFound) {
		all, _ := s.cache.DrainFinalizable(ctx, exerciseID, func(domain.Submission) bool { return true })
		report.Dropped += s.dropExercise(ctx, exerciseID, all)
		return report
	}
	if err != nil {
		log.Error("load exercise", "error", err)
		report.Failed++
		return report
	}
	s.batches.Track(ex)

	drained, err := s.cache.DrainFinalizable(ctx, exerciseID, s.batches.EndedPredicate(exerciseID))
	if err != nil {
		// whatever came back is already out of the cache
		log.Error("drain submissions", "drained", len(drained), "error", err)
		report.Failed++
	}

	finalized := make(map[string]struct{}, len(drained))
	for _, sub := range drained {
		finalized[sub.ParticipantID] = struct{}{}
	}
	for _, participantID := range s.batches.EndedParticipants(exerciseID) {
		if _, ok := finalized[participantID]; ok {
			continue
		}
		if _, pending, err := s.cache.Get(ctx, exerciseID, participantID); err != nil || pending {
			continue
		}
		done, err := s.store.HasResult(ctx, exerciseID, participantID)
		if err != nil {
			log.Error("check result", "participant", participantID, "error", err)
			continue
		}
		if done {
			s.batches.MarkFinalized(exerciseID, participantID)
			continue
		}
		drained = append(drained, domain.Submission{
			ID:            uuid.NewString(),
			ExerciseID:    exerciseID,
			ParticipantID: participantID,
			SubmittedAt:   s.now(),
		})
	}
	if len(drained) == 0 {
		return report
	}

	exists, err := s.store.ExerciseExists(ctx, exerciseID)
	if err != nil {
		log.Error("check exercise", "error", err)
		report.Requeued += s.requeue(ctx, drained)
		return report
	}
	if !exists {
		report.Dropped += s.dropExercise(ctx, exerciseID, drained)
		return report
	}

	for i, sub := range drained {
		if !sub.Submitted {
			sub.Submitted = true
			sub.Type = domain.SubmissionTimeout
		} else if sub.Type == "" {
			sub.Type = domain.SubmissionManual
		}

		res := scoring.ScoreSubmission(ex, sub)
		res.ID = uuid.NewString()
		err := s.persist(ctx, res)
		switch {
		case err == nil:
			s.batches.MarkFinalized(exerciseID, sub.ParticipantID)
			report.Persisted++
			if err := s.stats.Apply(ctx, ex, res); err != nil {
				log.Error("apply result to statistics", "result", res.ID, "error", err)
			}
		case errors.Is(err, domain.ErrExerciseNotFound):
			// deleted mid-pass
			report.Dropped += s.dropExercise(ctx, exerciseID, drained[i:])
			return report
		case ctx.Err() != nil:
			report.Requeued += s.requeue(context.WithoutCancel(ctx), drained[i:])
			return report
		case errors.Is(err, domain.ErrInvalidSubmission):
			log.Error("drop submission", "participant", sub.ParticipantID, "submission", sub.ID, "error", err)
			report.Failed++
		default:
			log.Error("persist result, requeueing", "participant", sub.ParticipantID, "submission", sub.ID, "error", err)
			report.Requeued += s.requeue(ctx, []domain.Submission{sub})
		}
	}

	if err := s.stats.Flush(ctx, exerciseID); err != nil {
		log.Error("flush statistics", "error", err)
	}
	return report
}

// persist saves a result, retrying transient failures a bounded number of times.
func (s *Scheduler) persist(ctx context.Context, res domain.Result) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.retryDelay
	eb.MaxInterval = 10 * s.retryDelay
	policy := backoff.WithMaxRetries(eb, uint64(max(s.attempts-1, 0)))

	op := func() error {
		err := s.store.SaveResult(ctx, res)
		if errors.Is(err, domain.ErrExerciseNotFound) || errors.Is(err, domain.ErrInvalidSubmission) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

func (s *Scheduler) requeue(ctx context.Context, subs []domain.Submission) int {
	n := 0
	for _, sub := range subs {
		if err := s.cache.Put(ctx, sub.ExerciseID, sub.ParticipantID, sub); err != nil {
			s.log.Error("requeue submission", "exercise", sub.ExerciseID, "participant", sub.ParticipantID, "error", err)
			continue
		}
		n++
	}
	return n
}

// dropExercise discards everything cached for a deleted exercise. It is not an error.
func (s *Scheduler) dropExercise(ctx context.Context, exerciseID string, drained []domain.Submission) int {
	dropped := len(drained)
	if err := s.cache.ClearExercise(ctx, exerciseID); err != nil {
		s.log.Error("clear cache of deleted exercise", "exercise", exerciseID, "error", err)
	}
	if err := s.exercises.Invalidate(ctx, exerciseID); err != nil {
		s.log.Warn("invalidate deleted exercise", "exercise", exerciseID, "error", err)
	}
	s.batches.Forget(exerciseID)
	s.stats.Forget(exerciseID)
	s.log.Info("exercise no longer exists, dropped cached submissions", "exercise", exerciseID, "dropped", dropped)
	return dropped
}
