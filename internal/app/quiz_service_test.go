package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"quiz-exercise-service/internal/app"
	"quiz-exercise-service/internal/domain"
	"quiz-exercise-service/internal/infra/memory"
	infraredis "quiz-exercise-service/internal/infra/redis"
	"quiz-exercise-service/internal/quiztest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock   *clock
	store   *memory.Store
	cache   *memory.SubmissionCache
	service *app.QuizService
}

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// newFixture runs every exercise against a clock one minute after release.
func newFixture(t *testing.T, store app.ExerciseStore, mem *memory.Store, opts ...app.Option) *fixture {
	t.Helper()
	c := &clock{t: start.Add(time.Minute)}
	cache := memory.NewSubmissionCache()
	// no definition caching so deletions show up immediately
	repo := memory.NewExerciseRepository(mem, 0)
	opts = append([]app.Option{app.WithClock(c.Now), app.WithPersistRetry(3, time.Millisecond)}, opts...)
	return &fixture{
		clock:   c,
		store:   mem,
		cache:   cache,
		service: app.NewQuizService(store, repo, cache, opts...),
	}
}

func exercise(id string, mode domain.TimingMode) domain.Exercise {
	return quiztest.ThreeQuestionExercise(id, mode, start, quiztest.Ptr(start.Add(time.Hour)), 10*time.Minute)
}

func submitPattern(t *testing.T, f *fixture, exerciseID string, participants int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= participants; i++ {
		p := fmt.Sprintf("p%d", i)
		if _, err := f.service.SaveOrSubmitLive(ctx, exerciseID, p, quiztest.PatternSubmission(exerciseID, p, i), true); err != nil {
			t.Fatalf("submit %s: %v", p, err)
		}
	}
}

func assertHistogram(t *testing.T, stats domain.Statistics, want map[float64]int) {
	t.Helper()
	if len(stats.PointCounters) != len(want) {
		t.Fatalf("expected %d buckets, got %+v", len(want), stats.PointCounters)
	}
	for points, n := range want {
		b, ok := stats.Bucket(points)
		if !ok || b.Rated != n {
			t.Fatalf("bucket %v: expected %d rated, got %+v", points, n, stats.PointCounters)
		}
	}
}

func TestSubmitAndProcessBuildsStatistics(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	f := newFixture(t, mem, mem)

	submitPattern(t, f, "ex-1", 10)
	report, err := f.service.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Persisted != 10 || report.Requeued != 0 || report.Dropped != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	stats, err := f.service.Statistics(ctx, "ex-1")
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	want := map[float64]int{0: 3, 3: 2, 4: 2, 6: 2, 7: 1}
	assertHistogram(t, stats, want)
	if stats.ParticipantsRated != 10 {
		t.Fatalf("expected 10 rated participants, got %d", stats.ParticipantsRated)
	}

	// the incremental statistics equal a rebuild from the stored results
	rebuilt, err := f.service.RecalculateStatistics(ctx, "ex-1")
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	assertHistogram(t, rebuilt, want)

	// nothing left to do
	report, _ = f.service.ProcessOnce(ctx)
	if report.Persisted != 0 {
		t.Fatalf("expected empty second pass, got %+v", report)
	}
}

func TestConcurrentSubmissionsAreAllCommitted(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	f := newFixture(t, mem, mem)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("p%02d", i)
			if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", p, quiztest.PatternSubmission("ex-1", p, i), false); err != nil {
				t.Errorf("save %s: %v", p, err)
			}
			if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", p, quiztest.PatternSubmission("ex-1", p, i), true); err != nil {
				t.Errorf("submit %s: %v", p, err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := f.service.ProcessOnce(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	results, _ := f.store.LoadAllResults(ctx, "ex-1")
	if len(results) != 50 {
		t.Fatalf("expected 50 results, got %d", len(results))
	}
}

func TestSavedAnswersAreCommittedOnTimeout(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	f := newFixture(t, mem, mem)

	if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", "p1", quiztest.PatternSubmission("ex-1", "p1", 0), false); err != nil {
		t.Fatalf("save: %v", err)
	}
	// still running: saved entries stay cached
	if report, _ := f.service.ProcessOnce(ctx); report.Persisted != 0 {
		t.Fatalf("expected nothing persisted while running, got %+v", report)
	}

	f.clock.Advance(2 * time.Hour)
	if report, _ := f.service.ProcessOnce(ctx); report.Persisted != 1 {
		t.Fatalf("expected timeout commit, got %+v", report)
	}
	results, _ := f.store.LoadAllResults(ctx, "ex-1")
	if len(results) != 1 || results[0].Submission.Type != domain.SubmissionTimeout || results[0].Points != 9 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestJoinedParticipantWithoutAnswersGetsEmptyResult(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeIndividual))
	f := newFixture(t, mem, mem)

	if _, err := f.service.JoinBatch(ctx, "ex-1", "", "", "p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.clock.Advance(11 * time.Minute)

	report, err := f.service.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Persisted != 1 {
		t.Fatalf("expected one empty commit, got %+v", report)
	}
	results, _ := f.store.LoadAllResults(ctx, "ex-1")
	if len(results) != 1 || results[0].Points != 0 || len(results[0].Submission.Answers) != 0 ||
		results[0].Submission.Type != domain.SubmissionTimeout {
		t.Fatalf("unexpected results %+v", results)
	}

	if report, _ := f.service.ProcessOnce(ctx); report.Persisted != 0 {
		t.Fatalf("participant committed twice: %+v", report)
	}
	if _, err := f.service.JoinBatch(ctx, "ex-1", "", "", "p1"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestDeletedExerciseDropsCachedSubmissions(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized), exercise("ex-2", domain.ModeSynchronized))
	f := newFixture(t, mem, mem)

	submitPattern(t, f, "ex-1", 3)
	submitPattern(t, f, "ex-2", 2)
	mem.DeleteExercise("ex-1")

	report, err := f.service.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Dropped != 3 || report.Persisted != 2 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	ids, _ := f.cache.ExerciseIDs(ctx)
	if len(ids) != 0 {
		t.Fatalf("expected empty cache, got %v", ids)
	}
}

// flakyStore fails SaveResult for chosen participants.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures map[string]int
	err      error
}

func (s *flakyStore) SaveResult(ctx context.Context, res domain.Result) error {
	s.mu.Lock()
	if n := s.failures[res.ParticipantID]; n > 0 {
		s.failures[res.ParticipantID] = n - 1
		s.mu.Unlock()
		return s.err
	}
	s.mu.Unlock()
	return s.Store.SaveResult(ctx, res)
}

func TestPersistenceFailuresAreRetriedAndIsolated(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	store := &flakyStore{
		Store:    mem,
		failures: map[string]int{"p2": 2, "p3": 100},
		err:      errors.New("connection reset"),
	}
	f := newFixture(t, store, mem)
	submitPattern(t, f, "ex-1", 3)

	report, err := f.service.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Persisted != 2 || report.Requeued != 1 {
		t.Fatalf("expected p1 and p2 persisted and p3 requeued, got %+v", report)
	}
	if _, pending, _ := f.cache.Get(ctx, "ex-1", "p3"); !pending {
		t.Fatalf("expected p3 back in the cache")
	}

	store.mu.Lock()
	store.failures["p3"] = 0
	store.mu.Unlock()
	if report, _ := f.service.ProcessOnce(ctx); report.Persisted != 1 {
		t.Fatalf("expected requeued submission persisted, got %+v", report)
	}
	stats, _ := f.service.Statistics(ctx, "ex-1")
	if stats.ParticipantsRated != 3 {
		t.Fatalf("expected 3 rated participants, got %d", stats.ParticipantsRated)
	}
}

func TestUnstorableResultIsDroppedNotRequeued(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	store := &flakyStore{
		Store:    mem,
		failures: map[string]int{"p1": 100},
		err:      fmt.Errorf("encode: %w", domain.ErrInvalidSubmission),
	}
	f := newFixture(t, store, mem)
	submitPattern(t, f, "ex-1", 2)

	report, _ := f.service.ProcessOnce(ctx)
	if report.Failed != 1 || report.Persisted != 1 || report.Requeued != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	store.mu.Lock()
	attemptsLeft := store.failures["p1"]
	store.mu.Unlock()
	if attemptsLeft != 99 {
		t.Fatalf("expected a single attempt for a permanent failure, %d left", attemptsLeft)
	}
}

func TestSaveOrSubmitLiveRefusals(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("sync", domain.ModeSynchronized), exercise("batched", domain.ModeBatched))
	f := newFixture(t, mem, mem, app.WithMaxAnswerLength(10))
	sub := quiztest.PatternSubmission("sync", "p1", 0)

	if _, err := f.service.SaveOrSubmitLive(ctx, "missing", "p1", sub, false); !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound, got %v", err)
	}
	if _, err := f.service.SaveOrSubmitLive(ctx, "batched", "p1", quiztest.PatternSubmission("batched", "p1", 0), false); !errors.Is(err, domain.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted without a batch, got %v", err)
	}

	long := sub
	long.Answers = []domain.SubmittedAnswer{{
		QuestionID: quiztest.SAQuestionID,
		Type:       domain.ShortAnswer,
		SpotTexts:  []domain.SpotText{{SpotID: "spot-1", Text: "far too long"}},
	}}
	if _, err := f.service.SaveOrSubmitLive(ctx, "sync", "p1", long, false); !errors.Is(err, domain.ErrOversizedAnswer) {
		t.Fatalf("expected ErrOversizedAnswer, got %v", err)
	}

	first, err := f.service.SaveOrSubmitLive(ctx, "sync", "p1", sub, false)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := f.service.SaveOrSubmitLive(ctx, "sync", "p1", sub, true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the submission id to be kept, got %s and %s", first.ID, second.ID)
	}
	if _, err := f.service.SaveOrSubmitLive(ctx, "sync", "p1", sub, false); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.service.SaveOrSubmitLive(ctx, "sync", "p2", sub, false); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected ErrSubmissionClosed, got %v", err)
	}
}

func TestGracePeriodKeepsSubmissionsOpen(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	f := newFixture(t, mem, mem, app.WithGracePeriod(30*time.Second))

	// 20 seconds past the end of the ten minute window
	f.clock.Advance(9*time.Minute + 20*time.Second)
	if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", "p1", quiztest.PatternSubmission("ex-1", "p1", 0), true); err != nil {
		t.Fatalf("submit within grace: %v", err)
	}
	f.clock.Advance(20 * time.Second)
	if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", "p2", quiztest.PatternSubmission("ex-1", "p2", 0), true); !errors.Is(err, domain.ErrSubmissionClosed) {
		t.Fatalf("expected ErrSubmissionClosed after grace, got %v", err)
	}
}

func TestPracticeAndPreview(t *testing.T) {
	ctx := context.Background()
	ex := exercise("ex-1", domain.ModeSynchronized)
	ex.OpenForPractice = true
	mem := memory.NewStore(ex)
	f := newFixture(t, mem, mem)
	sub := quiztest.PatternSubmission("ex-1", "p1", 0)

	if _, err := f.service.SubmitPractice(ctx, "ex-1", "p1", sub); !errors.Is(err, domain.ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}

	preview, err := f.service.SubmitPreview(ctx, "ex-1", sub)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Points != 9 || preview.Rated {
		t.Fatalf("unexpected preview %+v", preview)
	}
	if results, _ := f.store.LoadAllResults(ctx, "ex-1"); len(results) != 0 {
		t.Fatalf("preview must not persist, got %d results", len(results))
	}

	if _, err := f.service.EndQuiz(ctx, "ex-1", f.clock.Now()); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	f.clock.Advance(time.Second)

	res, err := f.service.SubmitPractice(ctx, "ex-1", "p1", sub)
	if err != nil {
		t.Fatalf("practice: %v", err)
	}
	if res.Rated || res.Points != 9 {
		t.Fatalf("expected unrated full score, got %+v", res)
	}
	stats, _ := f.service.Statistics(ctx, "ex-1")
	if stats.ParticipantsUnrated != 1 || stats.ParticipantsRated != 0 {
		t.Fatalf("expected one unrated participant, got %+v", stats)
	}
	if b, ok := stats.Bucket(9); !ok || b.Unrated != 1 || b.Rated != 0 {
		t.Fatalf("expected unrated bucket at 9, got %+v", stats.PointCounters)
	}
	// practice does not count as participation
	if ok, _ := f.store.HasResult(ctx, "ex-1", "p1"); ok {
		t.Fatalf("practice result reported as rated participation")
	}
}

func TestReEvaluateAfterDeletingQuestion(t *testing.T) {
	ctx := context.Background()
	ex := exercise("ex-1", domain.ModeSynchronized)
	mem := memory.NewStore(ex)
	f := newFixture(t, mem, mem)

	submitPattern(t, f, "ex-1", 10)
	if _, err := f.service.ProcessOnce(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	edited := []domain.Question{ex.Questions[0], ex.Questions[2]}
	if _, err := f.service.ReEvaluate(ctx, "ex-1", edited); !errors.Is(err, domain.ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}

	if _, err := f.service.EndQuiz(ctx, "ex-1", f.clock.Now()); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	f.clock.Advance(time.Second)

	unknown := append([]domain.Question{{ID: "new", Type: domain.ShortAnswer}}, edited...)
	if _, err := f.service.ReEvaluate(ctx, "ex-1", unknown); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}

	stats, err := f.service.ReEvaluate(ctx, "ex-1", edited)
	if err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	assertHistogram(t, stats, map[float64]int{0: 5, 4: 3, 6: 2})
	if _, ok := stats.Question(quiztest.DnDQuestionID); ok {
		t.Fatalf("deleted question still has statistics")
	}

	results, _ := f.store.LoadAllResults(ctx, "ex-1")
	for _, res := range results {
		if res.MaxPoints != 6 {
			t.Fatalf("result %s kept old max points %v", res.ID, res.MaxPoints)
		}
		if _, ok := res.Submission.Answer(quiztest.DnDQuestionID); ok {
			t.Fatalf("result %s kept the answer of a deleted question", res.ID)
		}
	}
	stored, _ := f.store.LoadExercise(ctx, "ex-1")
	if len(stored.Questions) != 2 {
		t.Fatalf("expected the edited definition stored, got %d questions", len(stored.Questions))
	}
}

func TestClearQuizData(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized), exercise("ex-2", domain.ModeSynchronized))
	f := newFixture(t, mem, mem)
	submitPattern(t, f, "ex-1", 2)
	submitPattern(t, f, "ex-2", 2)

	if err := f.service.ClearQuizData(ctx, "ex-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ids, _ := f.cache.ExerciseIDs(ctx); len(ids) != 1 || ids[0] != "ex-2" {
		t.Fatalf("expected only ex-2 cached, got %v", ids)
	}
	if err := f.service.ClearAllQuizData(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if report, _ := f.service.ProcessOnce(ctx); report.Persisted != 0 {
		t.Fatalf("expected nothing to persist after clearing, got %+v", report)
	}
}

func TestScheduleCommitsInBackground(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	f := newFixture(t, mem, mem, app.WithScheduleInterval(10*time.Millisecond))

	f.service.StartSchedule()
	f.service.StartSchedule()
	defer f.service.StopSchedule()

	submitPattern(t, f, "ex-1", 2)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if results, _ := f.store.LoadAllResults(ctx, "ex-1"); len(results) == 2 {
			f.service.StopSchedule()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("scheduler did not commit submissions in time")
}

func TestCorruptCachedEntryDoesNotLoseOthers(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	mem := memory.NewStore(exercise("ex-1", domain.ModeSynchronized))
	c := &clock{t: start.Add(time.Minute)}
	cache := infraredis.NewSubmissionCache(client)
	service := app.NewQuizService(mem, memory.NewExerciseRepository(mem, 0), cache, app.WithClock(c.Now))

	const participants = 8
	for i := 1; i <= participants; i++ {
		p := fmt.Sprintf("p%d", i)
		if _, err := service.SaveOrSubmitLive(ctx, "ex-1", p, quiztest.PatternSubmission("ex-1", p, i), true); err != nil {
			t.Fatalf("submit %s: %v", p, err)
		}
	}
	mr.HSet("quiz:ex-1:submissions", "broken", "{not json")

	report, err := service.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if report.Persisted != participants {
		t.Fatalf("expected %d persisted next to the corrupt entry, got %+v", participants, report)
	}
	results, _ := mem.LoadAllResults(ctx, "ex-1")
	if len(results) != participants {
		t.Fatalf("expected %d stored results, got %d", participants, len(results))
	}
	if corrupt, _ := cache.Corrupt(ctx, "ex-1"); len(corrupt) != 1 {
		t.Fatalf("expected the corrupt entry set aside, got %v", corrupt)
	}

	// later passes are clean
	report, err = service.ProcessOnce(ctx)
	if err != nil || report.Failed != 0 || report.Persisted != 0 {
		t.Fatalf("expected a quiet second pass, got %+v %v", report, err)
	}
}

// committingStore persists a practice attempt right after LoadAllResults has read the results.
type committingStore struct {
	*memory.Store
	commit func()
	saved  chan struct{}
	once   sync.Once
}

func (s *committingStore) SaveResult(ctx context.Context, res domain.Result) error {
	err := s.Store.SaveResult(ctx, res)
	if res.Submission.Type == domain.SubmissionPractice {
		close(s.saved)
	}
	return err
}

func (s *committingStore) LoadAllResults(ctx context.Context, exerciseID string) ([]domain.Result, error) {
	results, err := s.Store.LoadAllResults(ctx, exerciseID)
	if s.commit != nil {
		s.once.Do(func() {
			go s.commit()
			<-s.saved
		})
	}
	return results, err
}

func TestCommitDuringRecalculationIsCounted(t *testing.T) {
	ctx := context.Background()
	ex := exercise("ex-1", domain.ModeSynchronized)
	ex.OpenForPractice = true
	mem := memory.NewStore(ex)
	store := &committingStore{Store: mem, saved: make(chan struct{})}
	f := newFixture(t, store, mem)

	submitPattern(t, f, "ex-1", 3)
	if _, err := f.service.ProcessOnce(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := f.service.EndQuiz(ctx, "ex-1", f.clock.Now()); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	f.clock.Advance(time.Second)

	practiced := make(chan error, 1)
	store.commit = func() {
		_, err := f.service.SubmitPractice(ctx, "ex-1", "p9", quiztest.PatternSubmission("ex-1", "p9", 0))
		practiced <- err
	}
	if _, err := f.service.RecalculateStatistics(ctx, "ex-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if err := <-practiced; err != nil {
		t.Fatalf("practice: %v", err)
	}

	results, _ := mem.LoadAllResults(ctx, "ex-1")
	stats, _ := f.service.Statistics(ctx, "ex-1")
	if got := stats.ParticipantsRated + stats.ParticipantsUnrated; got != len(results) {
		t.Fatalf("statistics count %d results, store holds %d", got, len(results))
	}
	if b, ok := stats.Bucket(9); !ok || b.Unrated != 1 {
		t.Fatalf("expected the practice attempt in the 9 point bucket, got %+v", stats.PointCounters)
	}
}

func TestReEvaluateReferenceChain(t *testing.T) {
	ctx := context.Background()
	ex := exercise("ex-1", domain.ModeSynchronized)
	mem := memory.NewStore(ex)
	f := newFixture(t, mem, mem)

	for i := 2; i <= 10; i++ {
		if i == 5 {
			continue
		}
		p := fmt.Sprintf("p%d", i)
		if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", p, quiztest.PatternSubmission("ex-1", p, i), true); err != nil {
			t.Fatalf("submit %s: %v", p, err)
		}
	}
	everything := domain.Submission{Answers: []domain.SubmittedAnswer{
		{QuestionID: quiztest.MCQuestionID, Type: domain.MultipleChoice, SelectedOptions: []string{"mc-a", "mc-b"}},
		quiztest.DnDAnswer(false),
		quiztest.SAAnswer(false),
	}}
	wrong := domain.Submission{Answers: []domain.SubmittedAnswer{
		quiztest.MCAnswer(false),
		quiztest.DnDAnswer(false),
		quiztest.SAAnswer(false),
	}}
	for p, sub := range map[string]domain.Submission{"p1": everything, "p5": wrong} {
		if _, err := f.service.SaveOrSubmitLive(ctx, "ex-1", p, sub, true); err != nil {
			t.Fatalf("submit %s: %v", p, err)
		}
	}
	if _, err := f.service.ProcessOnce(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	stats, _ := f.service.Statistics(ctx, "ex-1")
	assertHistogram(t, stats, map[float64]int{0: 3, 3: 2, 4: 2, 6: 2, 7: 1})

	if _, err := f.service.EndQuiz(ctx, "ex-1", f.clock.Now()); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	f.clock.Advance(time.Second)

	// dropping the wrong option turns the select-everything attempt correct
	mc := ex.Questions[0]
	choices := *mc.MultipleChoice
	choices.Options = []domain.AnswerOption{choices.Options[0]}
	mc.MultipleChoice = &choices
	stats, err := f.service.ReEvaluate(ctx, "ex-1", []domain.Question{mc, ex.Questions[1], ex.Questions[2]})
	if err != nil {
		t.Fatalf("re-evaluate options: %v", err)
	}
	assertHistogram(t, stats, map[float64]int{0: 2, 3: 2, 4: 3, 6: 2, 7: 1})

	// deleting the drag and drop question while every typed text becomes accepted
	sa := ex.Questions[2]
	spots := *sa.ShortAnswer
	spots.Spots = []domain.Spot{
		{ID: "spot-1", Accepted: []string{"Berlin", "Paris"}},
		{ID: "spot-2", Accepted: []string{"Munich", "München", "Rome"}},
	}
	sa.ShortAnswer = &spots
	stats, err = f.service.ReEvaluate(ctx, "ex-1", []domain.Question{mc, sa})
	if err != nil {
		t.Fatalf("re-evaluate deletion: %v", err)
	}
	assertHistogram(t, stats, map[float64]int{2: 4, 6: 6})
	if stats.ParticipantsRated != 10 {
		t.Fatalf("expected all ten results kept, got %+v", stats)
	}
}
