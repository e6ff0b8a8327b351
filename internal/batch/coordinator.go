// Package batch decides when participants may start, answer and stop answering a quiz.
package batch

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-exercise-service/internal/domain"
)

// Coordinator tracks the timing state of quiz exercises. Every answer is computed from the live clock;
// nothing about "started" or "ended" is cached between calls.
//
// Lock order: an exercise lock may be held while taking the coordinator lock, never the reverse.
type Coordinator struct {
	now   func() time.Time
	grace time.Duration

	mu         sync.RWMutex
	exercises  map[string]*exerciseState
	batchIndex map[string]string // batch id -> exercise id
}

type exerciseState struct {
	mu        sync.Mutex
	exercise  domain.Exercise
	forcedDue *time.Time
	batches   map[string]*domain.Batch
	order     []string
	joins     map[string]string // participant id -> batch id
	finalized map[string]struct{}
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithGracePeriod keeps submissions open for d after the nominal end.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.grace = d
		}
	}
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		now:        time.Now,
		exercises:  make(map[string]*exerciseState),
		batchIndex: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Track registers an exercise or refreshes its definition. Batches, joins and administrative
// start/end overrides survive a refresh.
func (c *Coordinator) Track(ex domain.Exercise) {
	c.mu.Lock()
	st, ok := c.exercises[ex.ID]
	if !ok {
		st = &exerciseState{
			batches:   make(map[string]*domain.Batch),
			joins:     make(map[string]string),
			finalized: make(map[string]struct{}),
		}
		c.exercises[ex.ID] = st
	}
	if ex.Mode == domain.ModeSynchronized {
		c.batchIndex[ex.ID] = ex.ID
	}
	c.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()
	st.exercise = ex
	if ex.Mode != domain.ModeSynchronized {
		return
	}
	if b, ok := st.batches[ex.ID]; ok {
		// follow release date edits until the quiz actually started
		if b.StartTime != nil && c.now().Before(*b.StartTime) {
			release := ex.ReleaseDate
			b.StartTime = &release
		}
		return
	}
	release := ex.ReleaseDate
	st.batches[ex.ID] = &domain.Batch{ID: ex.ID, ExerciseID: ex.ID, StartTime: &release}
	st.order = append(st.order, ex.ID)
}

// Forget drops all timing state of an exercise.
func (c *Coordinator) Forget(exerciseID string) {
	c.mu.Lock()
	st, ok := c.exercises[exerciseID]
	delete(c.exercises, exerciseID)
	c.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	ids := make([]string, 0, len(st.batches))
	for id := range st.batches {
		ids = append(ids, id)
	}
	st.mu.Unlock()

	c.mu.Lock()
	for _, id := range ids {
		if c.batchIndex[id] == exerciseID {
			delete(c.batchIndex, id)
		}
	}
	c.mu.Unlock()
}

// Reset drops everything.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.exercises = make(map[string]*exerciseState)
	c.batchIndex = make(map[string]string)
	c.mu.Unlock()
}

// Tracked lists the ids of all tracked exercises.
func (c *Coordinator) Tracked() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.exercises))
	for id := range c.exercises {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) state(exerciseID string) (*exerciseState, error) {
	c.mu.RLock()
	st, ok := c.exercises[exerciseID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("exercise %s: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	return st, nil
}

func (c *Coordinator) stateOfBatch(batchID string) (*exerciseState, error) {
	c.mu.RLock()
	exerciseID, ok := c.batchIndex[batchID]
	var st *exerciseState
	if ok {
		st = c.exercises[exerciseID]
	}
	c.mu.RUnlock()
	if st == nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, domain.ErrBatchNotFound)
	}
	return st, nil
}

func (c *Coordinator) indexBatch(batchID, exerciseID string) {
	c.mu.Lock()
	c.batchIndex[batchID] = exerciseID
	c.mu.Unlock()
}

// Join admits a participant. For BATCHED quizzes an empty batchID selects the batch by password.
func (c *Coordinator) Join(exerciseID, batchID, password, participantID string) (domain.ParticipationToken, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return domain.ParticipationToken{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	ex := st.exercise
	switch {
	case ex.Mode == domain.ModeSynchronized:
		return domain.ParticipationToken{}, fmt.Errorf("join %s: %w", exerciseID, domain.ErrInvalidMode)
	case now.Before(ex.ReleaseDate):
		return domain.ParticipationToken{}, fmt.Errorf("join %s: %w", exerciseID, domain.ErrNotStarted)
	}
	if due := st.due(); due != nil && !now.Before(*due) {
		return domain.ParticipationToken{}, fmt.Errorf("join %s: due date passed: %w", exerciseID, domain.ErrNotJoinable)
	}

	var b *domain.Batch
	switch ex.Mode {
	case domain.ModeIndividual:
		if due := st.due(); due != nil && now.After(due.Add(-ex.Duration())) {
			return domain.ParticipationToken{}, fmt.Errorf("join %s: not enough time left: %w", exerciseID, domain.ErrNotJoinable)
		}
		if _, joined := st.joins[participantID]; joined {
			return domain.ParticipationToken{}, fmt.Errorf("join %s: %w", exerciseID, domain.ErrAlreadyJoined)
		}
		start := now
		b = &domain.Batch{ID: uuid.NewString(), ExerciseID: exerciseID, StartTime: &start, Participant: participantID}
		st.batches[b.ID] = b
		st.order = append(st.order, b.ID)
		c.indexBatch(b.ID, exerciseID)

	case domain.ModeBatched:
		if batchID == "" {
			b = st.batchByPassword(password, now, c.grace)
			if b == nil {
				return domain.ParticipationToken{}, fmt.Errorf("join %s: no batch matches: %w", exerciseID, domain.ErrWrongPassword)
			}
		} else {
			var ok bool
			if b, ok = st.batches[batchID]; !ok {
				return domain.ParticipationToken{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrBatchNotFound)
			}
			if b.Password != "" && b.Password != password {
				return domain.ParticipationToken{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrWrongPassword)
			}
		}
		if st.batchState(b, now, 0) == domain.BatchEnded {
			return domain.ParticipationToken{}, fmt.Errorf("batch %s: %w", b.ID, domain.ErrNotJoinable)
		}
		if _, joined := st.joins[participantID]; joined {
			return domain.ParticipationToken{}, fmt.Errorf("batch %s: %w", b.ID, domain.ErrAlreadyJoined)
		}

	default:
		return domain.ParticipationToken{}, fmt.Errorf("join %s: mode %q: %w", exerciseID, ex.Mode, domain.ErrInvalidMode)
	}

	st.joins[participantID] = b.ID
	return domain.ParticipationToken{
		ExerciseID:    exerciseID,
		BatchID:       b.ID,
		ParticipantID: participantID,
		JoinedAt:      now,
		StartTime:     copyTime(b.StartTime),
	}, nil
}

// AddBatch creates a batch for a BATCHED quiz. An empty password is replaced by a random 8-digit one.
func (c *Coordinator) AddBatch(exerciseID string, start *time.Time, password string) (domain.Batch, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return domain.Batch{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.exercise.Mode != domain.ModeBatched {
		return domain.Batch{}, fmt.Errorf("add batch to %s: %w", exerciseID, domain.ErrInvalidMode)
	}
	if password == "" {
		password = fmt.Sprintf("%08d", rand.IntN(100_000_000))
	}
	b := &domain.Batch{
		ID:         uuid.NewString(),
		ExerciseID: exerciseID,
		StartTime:  copyTime(start),
		Password:   password,
	}
	st.batches[b.ID] = b
	st.order = append(st.order, b.ID)
	c.indexBatch(b.ID, exerciseID)
	return *b, nil
}

// StartBatch moves the start of a batch that has not started yet to now.
func (c *Coordinator) StartBatch(batchID string) (domain.Batch, error) {
	st, err := c.stateOfBatch(batchID)
	if err != nil {
		return domain.Batch{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	b, ok := st.batches[batchID]
	if !ok {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrBatchNotFound)
	}
	now := c.now()
	if st.batchState(b, now, 0) != domain.BatchScheduled {
		return domain.Batch{}, fmt.Errorf("batch %s: %w", batchID, domain.ErrAlreadyStarted)
	}
	b.StartTime = &now
	return *b, nil
}

// StartNow starts a SYNCHRONIZED quiz immediately.
func (c *Coordinator) StartNow(exerciseID string) (domain.Batch, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return domain.Batch{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.exercise.Mode != domain.ModeSynchronized {
		return domain.Batch{}, fmt.Errorf("start %s: %w", exerciseID, domain.ErrInvalidMode)
	}
	b := st.batches[exerciseID]
	now := c.now()
	if st.batchState(b, now, 0) != domain.BatchScheduled {
		return domain.Batch{}, fmt.Errorf("start %s: %w", exerciseID, domain.ErrAlreadyStarted)
	}
	b.StartTime = &now
	return *b, nil
}

// EndQuiz forces the due date of an exercise to at. The override survives later Track calls.
func (c *Coordinator) EndQuiz(exerciseID string, at time.Time) (domain.Exercise, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return domain.Exercise{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	st.forcedDue = &at
	ex := st.exercise
	ex.DueDate = copyTime(&at)
	return ex, nil
}

// Batches lists the batches of an exercise in creation order.
func (c *Coordinator) Batches(exerciseID string) ([]domain.Batch, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]domain.Batch, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.batches[id])
	}
	return out, nil
}

// ExerciseState reports the lifecycle state of an exercise as of now.
func (c *Coordinator) ExerciseState(exerciseID string) (domain.ExerciseState, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return "", err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	switch {
	case st.exerciseEnded(now, 0):
		return domain.ExerciseEnded, nil
	case !now.Before(st.start()):
		return domain.ExerciseStarted, nil
	case !now.Before(st.visible()):
		return domain.ExerciseVisible, nil
	}
	return domain.ExerciseNotVisible, nil
}

// BatchState reports the state of a batch as of now.
func (c *Coordinator) BatchState(batchID string) (domain.BatchState, error) {
	st, err := c.stateOfBatch(batchID)
	if err != nil {
		return "", err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	b, ok := st.batches[batchID]
	if !ok {
		return "", fmt.Errorf("batch %s: %w", batchID, domain.ErrBatchNotFound)
	}
	return st.batchState(b, c.now(), 0), nil
}

// IsStarted reports whether the participant's window has opened. For SYNCHRONIZED quizzes every
// participant shares the quiz window; otherwise the participant must have joined a started batch.
func (c *Coordinator) IsStarted(exerciseID, participantID string) (bool, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	b := st.batchOf(participantID)
	if b == nil {
		return false, nil
	}
	return st.batchState(b, c.now(), 0) != domain.BatchScheduled, nil
}

// IsSubmissionAllowed reports whether the participant's window is open right now, grace period included.
func (c *Coordinator) IsSubmissionAllowed(exerciseID, participantID string) (bool, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	b := st.batchOf(participantID)
	if b == nil {
		return false, nil
	}
	return st.batchState(b, now, c.grace) == domain.BatchStarted && !st.exerciseEnded(now, c.grace), nil
}

// HasEnded reports whether the exercise as a whole is over, grace period included.
func (c *Coordinator) HasEnded(exerciseID string) (bool, error) {
	st, err := c.state(exerciseID)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.exerciseEnded(c.now(), c.grace), nil
}

// EndedPredicate returns a function telling, per cached submission, whether its window has closed.
// The clock is read once so a single drain pass sees one consistent answer. A submission whose
// participant has no known join counts as ended once the quiz duration has passed since it was written.
func (c *Coordinator) EndedPredicate(exerciseID string) func(sub domain.Submission) bool {
	st, err := c.state(exerciseID)
	if err != nil {
		// unknown exercises finalize everything
		return func(domain.Submission) bool { return true }
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	if st.exerciseEnded(now, c.grace) {
		return func(domain.Submission) bool { return true }
	}
	if st.exercise.Mode == domain.ModeSynchronized {
		return func(domain.Submission) bool { return false }
	}

	joined := make(map[string]bool, len(st.joins))
	for participantID, batchID := range st.joins {
		joined[participantID] = st.batchState(st.batches[batchID], now, c.grace) == domain.BatchEnded
	}
	d := st.exercise.Duration()
	return func(sub domain.Submission) bool {
		if ended, ok := joined[sub.ParticipantID]; ok {
			return ended
		}
		return d > 0 && !now.Before(sub.SubmittedAt.Add(d+c.grace))
	}
}

// EndedParticipants lists joined participants whose batch has ended and who were not finalized yet.
func (c *Coordinator) EndedParticipants(exerciseID string) []string {
	st, err := c.state(exerciseID)
	if err != nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	now := c.now()
	exerciseEnded := st.exerciseEnded(now, c.grace)
	var out []string
	for participantID, batchID := range st.joins {
		if _, done := st.finalized[participantID]; done {
			continue
		}
		if exerciseEnded || st.batchState(st.batches[batchID], now, c.grace) == domain.BatchEnded {
			out = append(out, participantID)
		}
	}
	sort.Strings(out)
	return out
}

// MarkFinalized records that the participant's attempt has been committed.
func (c *Coordinator) MarkFinalized(exerciseID, participantID string) {
	st, err := c.state(exerciseID)
	if err != nil {
		return
	}
	st.mu.Lock()
	st.finalized[participantID] = struct{}{}
	st.mu.Unlock()
}

func (st *exerciseState) due() *time.Time {
	if st.forcedDue != nil {
		return st.forcedDue
	}
	return st.exercise.DueDate
}

func (st *exerciseState) start() time.Time {
	if st.exercise.Mode == domain.ModeSynchronized {
		if b, ok := st.batches[st.exercise.ID]; ok && b.StartTime != nil {
			return *b.StartTime
		}
	}
	return st.exercise.ReleaseDate
}

func (st *exerciseState) visible() time.Time {
	if st.exercise.VisibleDate != nil {
		return *st.exercise.VisibleDate
	}
	return st.start()
}

// end is when a batch that started at start stops accepting answers. ok is false when there is no end.
func (st *exerciseState) end(start time.Time) (time.Time, bool) {
	due := st.due()
	if d := st.exercise.Duration(); d > 0 {
		end := start.Add(d)
		if due != nil && due.Before(end) {
			end = *due
		}
		return end, true
	}
	if due != nil {
		return *due, true
	}
	return time.Time{}, false
}

func (st *exerciseState) exerciseEnded(now time.Time, grace time.Duration) bool {
	if st.exercise.Mode == domain.ModeSynchronized {
		end, ok := st.end(st.start())
		return ok && !now.Before(end.Add(grace))
	}
	due := st.due()
	return due != nil && !now.Before(due.Add(grace))
}

func (st *exerciseState) batchState(b *domain.Batch, now time.Time, grace time.Duration) domain.BatchState {
	if b == nil || b.StartTime == nil || now.Before(*b.StartTime) {
		if due := st.due(); b != nil && due != nil && !now.Before(due.Add(grace)) {
			return domain.BatchEnded
		}
		return domain.BatchScheduled
	}
	if end, ok := st.end(*b.StartTime); ok && !now.Before(end.Add(grace)) {
		return domain.BatchEnded
	}
	return domain.BatchStarted
}

func (st *exerciseState) batchOf(participantID string) *domain.Batch {
	if st.exercise.Mode == domain.ModeSynchronized {
		return st.batches[st.exercise.ID]
	}
	batchID, ok := st.joins[participantID]
	if !ok {
		return nil
	}
	return st.batches[batchID]
}

func (st *exerciseState) batchByPassword(password string, now time.Time, grace time.Duration) *domain.Batch {
	for _, id := range st.order {
		b := st.batches[id]
		if b.Password == password && st.batchState(b, now, grace) != domain.BatchEnded {
			return b
		}
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
