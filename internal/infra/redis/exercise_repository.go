package redis

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-exercise-service/internal/domain"
)

// ExerciseLoader fetches exercise definitions from the durable store.
type ExerciseLoader interface {
	LoadExercise(ctx context.Context, exerciseID string) (domain.Exercise, error)
}

// ExerciseRepository caches exercise definitions in Redis and falls back to a loader on cache miss.
// Exercises are stored as: SET quiz:{exerciseID}:exercise {exercise json} EX ttl
type ExerciseRepository struct {
	client *redis.Client
	loader ExerciseLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewExerciseRepository(client *redis.Client, loader ExerciseLoader, ttl time.Duration) *ExerciseRepository {
	return &ExerciseRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *ExerciseRepository) GetExercise(ctx context.Context, exerciseID string) (domain.Exercise, error) {
	if ex, ok := r.cached(ctx, exerciseID); ok {
		return ex, nil
	}

	result, err, _ := r.sf.Do(exerciseID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if ex, ok := r.cached(ctx, exerciseID); ok {
			return ex, nil
		}

		ex, err := r.loader.LoadExercise(ctx, exerciseID)
		if err != nil {
			return domain.Exercise{}, err
		}

		ttl := r.ttlWithJitter()
		if ttl > 0 {
			if payload, err := json.Marshal(ex); err == nil {
				_ = r.client.Set(ctx, exerciseKey(exerciseID), payload, ttl).Err()
			}
		}
		return ex, nil
	})
	if err != nil {
		return domain.Exercise{}, err
	}
	return result.(domain.Exercise), nil
}

// cached treats every Redis failure as a miss; the loader stays the source of truth.
func (r *ExerciseRepository) cached(ctx context.Context, exerciseID string) (domain.Exercise, bool) {
	raw, err := r.client.Get(ctx, exerciseKey(exerciseID)).Bytes()
	if err != nil {
		return domain.Exercise{}, false
	}
	var ex domain.Exercise
	if err := json.Unmarshal(raw, &ex); err != nil {
		return domain.Exercise{}, false
	}
	return ex, true
}

func (r *ExerciseRepository) Invalidate(ctx context.Context, exerciseID string) error {
	r.sf.Forget(exerciseID)
	return r.client.Del(ctx, exerciseKey(exerciseID)).Err()
}

func exerciseKey(exerciseID string) string {
	return "quiz:" + exerciseID + ":exercise"
}

func (r *ExerciseRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
