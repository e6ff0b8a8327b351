package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-exercise-service/internal/domain"
	"quiz-exercise-service/internal/infra/memory"
	"quiz-exercise-service/internal/quiztest"
)

func TestExerciseRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{ExerciseLoader: memory.NewStore(sampleExercise())}
	repo := NewExerciseRepository(client, loader, time.Minute)

	ex, err := repo.GetExercise(context.Background(), "ex-1")
	if err != nil {
		t.Fatalf("get exercise: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:ex-1:exercise") {
		t.Fatalf("expected exercise cached in redis")
	}
	if ttl := mr.TTL("quiz:ex-1:exercise"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetExercise(context.Background(), "ex-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached.Questions) != len(ex.Questions) || cached.Questions[1].DragAndDrop == nil {
		t.Fatalf("expected full exercise from cache, got %+v", cached)
	}
}

func TestExerciseRepositoryInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{ExerciseLoader: memory.NewStore(sampleExercise())}
	repo := NewExerciseRepository(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	_, _ = repo.GetExercise(ctx, "ex-1")
	if err := repo.Invalidate(ctx, "ex-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:ex-1:exercise") {
		t.Fatalf("expected key removed")
	}
	_, _ = repo.GetExercise(ctx, "ex-1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestExerciseRepositoryMissingExercise(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewExerciseRepository(newClient(mr), memory.NewStore(), time.Minute)
	if _, err := repo.GetExercise(context.Background(), "missing"); !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound, got %v", err)
	}
	if mr.Exists("quiz:missing:exercise") {
		t.Fatalf("missing exercise must not be cached")
	}
}

type countingLoader struct {
	memory.ExerciseLoader
	calls int
}

func (l *countingLoader) LoadExercise(ctx context.Context, exerciseID string) (domain.Exercise, error) {
	l.calls++
	return l.ExerciseLoader.LoadExercise(ctx, exerciseID)
}

func sampleExercise() domain.Exercise {
	release := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return quiztest.ThreeQuestionExercise("ex-1", domain.ModeBatched, release, quiztest.Ptr(release.Add(time.Hour)), 10*time.Minute)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
