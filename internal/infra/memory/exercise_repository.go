package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-exercise-service/internal/domain"
)

// ExerciseLoader fetches exercise definitions from the durable store.
type ExerciseLoader interface {
	LoadExercise(ctx context.Context, exerciseID string) (domain.Exercise, error)
}

// ExerciseRepository caches exercises with TTL to avoid repeated DB hits.
type ExerciseRepository struct {
	loader ExerciseLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedExercise
	// gen is bumped by Invalidate so a load that started before it does not repopulate the cache.
	gen map[string]uint64
}

type cachedExercise struct {
	exercise  domain.Exercise
	expiresAt time.Time
}

type RepositoryOption func(*ExerciseRepository)

// WithRepositoryClock overrides the clock used for expiry.
func WithRepositoryClock(clock func() time.Time) RepositoryOption {
	return func(r *ExerciseRepository) { r.clock = clock }
}

func NewExerciseRepository(loader ExerciseLoader, ttl time.Duration, opts ...RepositoryOption) *ExerciseRepository {
	r := &ExerciseRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedExercise),
		gen:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ExerciseRepository) GetExercise(ctx context.Context, exerciseID string) (domain.Exercise, error) {
	if ex, ok := r.cached(exerciseID); ok {
		return ex, nil
	}

	result, err, _ := r.sf.Do(exerciseID, func() (interface{}, error) {
		if ex, ok := r.cached(exerciseID); ok {
			return ex, nil
		}
		r.mu.RLock()
		gen := r.gen[exerciseID]
		r.mu.RUnlock()

		ex, err := r.loader.LoadExercise(ctx, exerciseID)
		if err != nil {
			return domain.Exercise{}, err
		}
		if r.ttl <= 0 {
			return ex, nil
		}

		r.mu.Lock()
		if r.gen[exerciseID] == gen {
			r.cache[exerciseID] = cachedExercise{
				exercise:  ex,
				expiresAt: r.clock().Add(r.ttlWithJitter()),
			}
		}
		r.mu.Unlock()
		return ex, nil
	})
	if err != nil {
		return domain.Exercise{}, err
	}
	return result.(domain.Exercise), nil
}

func (r *ExerciseRepository) cached(exerciseID string) (domain.Exercise, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[exerciseID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Exercise{}, false
	}
	return entry.exercise, true
}

// Invalidate evicts an exercise so the next read goes to the loader.
func (r *ExerciseRepository) Invalidate(_ context.Context, exerciseID string) error {
	r.mu.Lock()
	delete(r.cache, exerciseID)
	r.gen[exerciseID]++
	r.mu.Unlock()
	r.sf.Forget(exerciseID)
	return nil
}

func (r *ExerciseRepository) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
