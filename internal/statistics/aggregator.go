// Package statistics keeps the per-exercise point histogram and question counters.
package statistics

import (
	"context"
	"fmt"
	"sync"

	"quiz-exercise-service/internal/domain"
	"quiz-exercise-service/internal/scoring"
)

// Store reads and replaces the persisted statistics of an exercise.
type Store interface {
	LoadStatistics(ctx context.Context, exerciseID string) (domain.Statistics, bool, error)
	ReplaceStatistics(ctx context.Context, exerciseID string, stats domain.Statistics) error
}

// Aggregator applies results incrementally and rebuilds statistics from scratch on demand.
// All mutations of one exercise are serialised by that exercise's lock, so a full rebuild never
// interleaves with incremental updates.
type Aggregator struct {
	store Store

	mu        sync.Mutex
	exercises map[string]*exerciseStats
}

type exerciseStats struct {
	mu     sync.Mutex
	loaded bool
	dirty  bool
	stats  domain.Statistics
	// ledger holds what each applied result contributed, keyed by result id.
	ledger map[string]contribution
}

type contribution struct {
	points    float64
	rated     bool
	questions []questionContribution
}

type questionContribution struct {
	questionID string
	correct    bool
	components map[string]bool
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store:     store,
		exercises: make(map[string]*exerciseStats),
	}
}

func (a *Aggregator) entry(exerciseID string) *exerciseStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.exercises[exerciseID]
	if !ok {
		e = &exerciseStats{ledger: make(map[string]contribution)}
		a.exercises[exerciseID] = e
	}
	return e
}

// load must be called with e.mu held.
func (a *Aggregator) load(ctx context.Context, e *exerciseStats, exerciseID string) error {
	if e.loaded {
		return nil
	}
	stats, ok, err := a.store.LoadStatistics(ctx, exerciseID)
	if err != nil {
		return fmt.Errorf("load statistics %s: %w", exerciseID, err)
	}
	if !ok {
		stats = domain.Statistics{ExerciseID: exerciseID}
	}
	e.stats = stats
	e.loaded = true
	return nil
}

// Apply adds one result. Applying a result id that is already counted replaces its previous contribution.
func (a *Aggregator) Apply(ctx context.Context, ex domain.Exercise, res domain.Result) error {
	e := a.entry(ex.ID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := a.load(ctx, e, ex.ID); err != nil {
		return err
	}
	initQuestions(&e.stats, ex)
	if prev, ok := e.ledger[res.ID]; ok {
		subtract(&e.stats, prev)
	}
	c := contributionOf(ex, res)
	add(&e.stats, c)
	e.ledger[res.ID] = c
	e.dirty = true
	return nil
}

// Remove takes a result back out of the statistics.
func (a *Aggregator) Remove(ctx context.Context, ex domain.Exercise, res domain.Result) error {
	e := a.entry(ex.ID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := a.load(ctx, e, ex.ID); err != nil {
		return err
	}
	c, ok := e.ledger[res.ID]
	if !ok {
		c = contributionOf(ex, res)
	}
	subtract(&e.stats, c)
	delete(e.ledger, res.ID)
	e.dirty = true
	return nil
}

// RecomputeFull rebuilds the statistics from results and replaces the stored object. On failure the
// previous statistics stay in place untouched.
func (a *Aggregator) RecomputeFull(ctx context.Context, ex domain.Exercise, results []domain.Result) (domain.Statistics, error) {
	return a.Rebuild(ctx, ex, func(context.Context) ([]domain.Result, error) { return results, nil })
}

// Rebuild is RecomputeFull over the results returned by load. load runs under the exercise lock, so a
// result applied while it reads waits for the rebuild and is counted on top of it.
// load must not call back into the aggregator for the same exercise.
func (a *Aggregator) Rebuild(ctx context.Context, ex domain.Exercise, load func(context.Context) ([]domain.Result, error)) (domain.Statistics, error) {
	e := a.entry(ex.ID)
	e.mu.Lock()
	defer e.mu.Unlock()

	results, err := load(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}

	fresh := domain.Statistics{ExerciseID: ex.ID}
	initQuestions(&fresh, ex)
	ledger := make(map[string]contribution, len(results))
	for _, res := range results {
		if res.ExerciseID != ex.ID {
			continue
		}
		if prev, ok := ledger[res.ID]; ok {
			subtract(&fresh, prev)
		}
		c := contributionOf(ex, res)
		add(&fresh, c)
		ledger[res.ID] = c
	}

	if err := a.store.ReplaceStatistics(ctx, ex.ID, fresh); err != nil {
		return domain.Statistics{}, fmt.Errorf("replace statistics %s: %w", ex.ID, err)
	}
	e.stats = fresh
	e.ledger = ledger
	e.loaded = true
	e.dirty = false
	return fresh.Clone(), nil
}

// Flush writes pending incremental changes of an exercise to the store.
func (a *Aggregator) Flush(ctx context.Context, exerciseID string) error {
	e := a.entry(exerciseID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dirty {
		return nil
	}
	if err := a.store.ReplaceStatistics(ctx, exerciseID, e.stats.Clone()); err != nil {
		return fmt.Errorf("flush statistics %s: %w", exerciseID, err)
	}
	e.dirty = false
	return nil
}

// Snapshot returns a copy of the current statistics, loading them from the store on first access.
func (a *Aggregator) Snapshot(ctx context.Context, exerciseID string) (domain.Statistics, error) {
	e := a.entry(exerciseID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := a.load(ctx, e, exerciseID); err != nil {
		return domain.Statistics{}, err
	}
	return e.stats.Clone(), nil
}

// Forget drops the in-memory state of an exercise. The next access reloads it from the store.
func (a *Aggregator) Forget(exerciseID string) {
	a.mu.Lock()
	delete(a.exercises, exerciseID)
	a.mu.Unlock()
}

// Reset drops the in-memory state of every exercise.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.exercises = make(map[string]*exerciseStats)
	a.mu.Unlock()
}

func contributionOf(ex domain.Exercise, res domain.Result) contribution {
	c := contribution{points: res.Points, rated: res.Rated}
	for _, q := range ex.Questions {
		if q.Invalid {
			continue
		}
		answer, ok := res.Submission.Answer(q.ID)
		if !ok {
			continue
		}
		b := scoring.Compare(q, answer)
		if !b.Answered {
			continue
		}
		c.questions = append(c.questions, questionContribution{
			questionID: q.ID,
			correct:    b.Perfect(),
			components: b.Components,
		})
	}
	return c
}

func add(s *domain.Statistics, c contribution) {
	apply(s, c, 1)
}

func subtract(s *domain.Statistics, c contribution) {
	apply(s, c, -1)
}

func apply(s *domain.Statistics, c contribution, delta int) {
	if c.rated {
		s.ParticipantsRated += delta
	} else {
		s.ParticipantsUnrated += delta
	}
	bumpBucket(s, c.points, c.rated, delta)

	for _, qc := range c.questions {
		qs := questionStat(s, qc.questionID)
		switch {
		case c.rated && qc.correct:
			qs.RatedCorrect += delta
		case c.rated:
			qs.RatedIncorrect += delta
		case qc.correct:
			qs.UnratedCorrect += delta
		default:
			qs.UnratedIncorrect += delta
		}
		for id, ok := range qc.components {
			if !ok {
				continue
			}
			cc := componentCounter(qs, id)
			if c.rated {
				cc.Rated += delta
			} else {
				cc.Unrated += delta
			}
		}
	}
}

func bumpBucket(s *domain.Statistics, points float64, rated bool, delta int) {
	for i := range s.PointCounters {
		pc := &s.PointCounters[i]
		if pc.Points != points {
			continue
		}
		if rated {
			pc.Rated += delta
		} else {
			pc.Unrated += delta
		}
		if pc.Rated <= 0 && pc.Unrated <= 0 {
			s.PointCounters = append(s.PointCounters[:i], s.PointCounters[i+1:]...)
		}
		return
	}
	if delta <= 0 {
		return
	}
	pc := domain.PointCounter{Points: points}
	if rated {
		pc.Rated = delta
	} else {
		pc.Unrated = delta
	}
	s.PointCounters = append(s.PointCounters, pc)
	s.SortPointCounters()
}

func questionStat(s *domain.Statistics, questionID string) *domain.QuestionStatistic {
	for i := range s.Questions {
		if s.Questions[i].QuestionID == questionID {
			return &s.Questions[i]
		}
	}
	s.Questions = append(s.Questions, domain.QuestionStatistic{QuestionID: questionID})
	return &s.Questions[len(s.Questions)-1]
}

func componentCounter(q *domain.QuestionStatistic, id string) *domain.ComponentCounter {
	for i := range q.Components {
		if q.Components[i].ID == id {
			return &q.Components[i]
		}
	}
	q.Components = append(q.Components, domain.ComponentCounter{ID: id})
	return &q.Components[len(q.Components)-1]
}

// initQuestions makes sure every valid question and component of ex has a counter, in exercise order.
func initQuestions(s *domain.Statistics, ex domain.Exercise) {
	for _, q := range ex.Questions {
		if q.Invalid {
			continue
		}
		qs := questionStat(s, q.ID)
		for _, id := range componentIDs(q) {
			componentCounter(qs, id)
		}
	}
}

func componentIDs(q domain.Question) []string {
	var ids []string
	switch {
	case q.MultipleChoice != nil:
		for _, o := range q.MultipleChoice.Options {
			if !o.Invalid {
				ids = append(ids, o.ID)
			}
		}
	case q.DragAndDrop != nil:
		for _, loc := range q.DragAndDrop.DropLocations {
			if !loc.Invalid {
				ids = append(ids, loc.ID)
			}
		}
	case q.ShortAnswer != nil:
		for _, spot := range q.ShortAnswer.Spots {
			if !spot.Invalid {
				ids = append(ids, spot.ID)
			}
		}
	}
	return ids
}
