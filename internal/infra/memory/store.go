package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quiz-exercise-service/internal/domain"
)

// Store is an in-memory persistence collaborator (useful for tests/demos).
type Store struct {
	mu        sync.RWMutex
	exercises map[string]domain.Exercise
	results   map[string]map[string]domain.Result // exercise id -> result id -> result
	stats     map[string]domain.Statistics
}

func NewStore(exercises ...domain.Exercise) *Store {
	s := &Store{
		exercises: make(map[string]domain.Exercise),
		results:   make(map[string]map[string]domain.Result),
		stats:     make(map[string]domain.Statistics),
	}
	for _, ex := range exercises {
		s.exercises[ex.ID] = ex
	}
	return s
}

// PutExercise creates or replaces an exercise definition.
func (s *Store) PutExercise(ex domain.Exercise) {
	s.mu.Lock()
	s.exercises[ex.ID] = ex
	s.mu.Unlock()
}

// DeleteExercise removes an exercise together with its results and statistics.
func (s *Store) DeleteExercise(exerciseID string) {
	s.mu.Lock()
	delete(s.exercises, exerciseID)
	delete(s.results, exerciseID)
	delete(s.stats, exerciseID)
	s.mu.Unlock()
}

func (s *Store) LoadExercise(_ context.Context, exerciseID string) (domain.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.exercises[exerciseID]
	if !ok {
		return domain.Exercise{}, fmt.Errorf("exercise %s: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	ex.Questions = append([]domain.Question(nil), ex.Questions...)
	return ex, nil
}

func (s *Store) ExerciseExists(_ context.Context, exerciseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.exercises[exerciseID]
	return ok, nil
}

func (s *Store) SaveResult(_ context.Context, result domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exercises[result.ExerciseID]; !ok {
		return fmt.Errorf("save result %s: %w", result.ID, domain.ErrExerciseNotFound)
	}
	byID, ok := s.results[result.ExerciseID]
	if !ok {
		byID = make(map[string]domain.Result)
		s.results[result.ExerciseID] = byID
	}
	byID[result.ID] = result
	return nil
}

// LoadAllResults returns the results of an exercise ordered by completion time.
func (s *Store) LoadAllResults(_ context.Context, exerciseID string) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0, len(s.results[exerciseID]))
	for _, res := range s.results[exerciseID] {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.Before(out[j].CompletedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// HasResult reports whether the participant has a rated result for the exercise.
func (s *Store) HasResult(_ context.Context, exerciseID, participantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, res := range s.results[exerciseID] {
		if res.ParticipantID == participantID && res.Rated {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) LoadStatistics(_ context.Context, exerciseID string) (domain.Statistics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[exerciseID]
	if !ok {
		return domain.Statistics{}, false, nil
	}
	return stats.Clone(), true, nil
}

func (s *Store) ReplaceStatistics(_ context.Context, exerciseID string, stats domain.Statistics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exercises[exerciseID]; !ok {
		return fmt.Errorf("replace statistics %s: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	s.stats[exerciseID] = stats.Clone()
	return nil
}

func (s *Store) SaveQuestions(_ context.Context, exerciseID string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exercises[exerciseID]
	if !ok {
		return fmt.Errorf("save questions %s: %w", exerciseID, domain.ErrExerciseNotFound)
	}
	ex.Questions = append([]domain.Question(nil), questions...)
	s.exercises[exerciseID] = ex
	return nil
}
