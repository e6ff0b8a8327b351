package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quiz-exercise-service/internal/domain"
)

// SubmissionCache is an in-memory implementation of app.SubmissionCache: one concurrent map of
// participants per exercise.
type SubmissionCache struct {
	mu        sync.RWMutex
	exercises map[string]*exerciseSubmissions
}

type exerciseSubmissions struct {
	// entries maps participant id -> *cachedSubmission. Entries are replaced, never mutated,
	// so pointer identity tells whether an entry changed since it was read.
	entries sync.Map
}

type cachedSubmission struct {
	sub domain.Submission
}

func NewSubmissionCache() *SubmissionCache {
	return &SubmissionCache{exercises: make(map[string]*exerciseSubmissions)}
}

// Put upserts a participant's pending submission.
func (c *SubmissionCache) Put(_ context.Context, exerciseID, participantID string, sub domain.Submission) error {
	// the read lock stays held while writing so an exercise cannot be evicted under a put
	c.mu.RLock()
	inner, ok := c.exercises[exerciseID]
	if ok {
		defer c.mu.RUnlock()
		return inner.put(exerciseID, participantID, sub)
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	inner, ok = c.exercises[exerciseID]
	if !ok {
		inner = &exerciseSubmissions{}
		c.exercises[exerciseID] = inner
	}
	return inner.put(exerciseID, participantID, sub)
}

func (e *exerciseSubmissions) put(exerciseID, participantID string, sub domain.Submission) error {
	next := &cachedSubmission{sub: cloneSubmission(sub)}
	for {
		current, loaded := e.entries.Load(participantID)
		if !loaded {
			if _, raced := e.entries.LoadOrStore(participantID, next); !raced {
				return nil
			}
			continue
		}
		if current.(*cachedSubmission).sub.Submitted {
			return fmt.Errorf("exercise %s participant %s: %w", exerciseID, participantID, domain.ErrAlreadySubmitted)
		}
		if e.entries.CompareAndSwap(participantID, current, next) {
			return nil
		}
	}
}

func (c *SubmissionCache) Get(_ context.Context, exerciseID, participantID string) (domain.Submission, bool, error) {
	c.mu.RLock()
	inner, ok := c.exercises[exerciseID]
	c.mu.RUnlock()
	if !ok {
		return domain.Submission{}, false, nil
	}
	v, ok := inner.entries.Load(participantID)
	if !ok {
		return domain.Submission{}, false, nil
	}
	return cloneSubmission(v.(*cachedSubmission).sub), true, nil
}

// DrainFinalizable snapshots every entry and removes it only if it is still the same entry, so a put
// racing with the drain is either drained or kept, never lost.
func (c *SubmissionCache) DrainFinalizable(_ context.Context, exerciseID string, ended func(sub domain.Submission) bool) ([]domain.Submission, error) {
	c.mu.RLock()
	inner, ok := c.exercises[exerciseID]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var drained []domain.Submission
	inner.entries.Range(func(key, value any) bool {
		participantID := key.(string)
		entry := value.(*cachedSubmission)
		if !entry.sub.Submitted && !ended(entry.sub) {
			return true
		}
		if inner.entries.CompareAndDelete(participantID, entry) {
			drained = append(drained, entry.sub)
		}
		return true
	})
	c.deleteIfEmpty(exerciseID, inner)

	sort.Slice(drained, func(i, j int) bool { return drained[i].ParticipantID < drained[j].ParticipantID })
	return drained, nil
}

func (c *SubmissionCache) deleteIfEmpty(exerciseID string, inner *exerciseSubmissions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exercises[exerciseID] != inner {
		return
	}
	empty := true
	inner.entries.Range(func(any, any) bool {
		empty = false
		return false
	})
	if empty {
		delete(c.exercises, exerciseID)
	}
}

func (c *SubmissionCache) ExerciseIDs(_ context.Context) ([]string, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.exercises))
	for id := range c.exercises {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (c *SubmissionCache) ClearExercise(_ context.Context, exerciseID string) error {
	c.mu.Lock()
	delete(c.exercises, exerciseID)
	c.mu.Unlock()
	return nil
}

func (c *SubmissionCache) ClearAll(_ context.Context) error {
	c.mu.Lock()
	c.exercises = make(map[string]*exerciseSubmissions)
	c.mu.Unlock()
	return nil
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	sub.Answers = append([]domain.SubmittedAnswer(nil), sub.Answers...)
	return sub
}
