package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-exercise-service/internal/domain"
)

func TestStoreResults(t *testing.T) {
	store := NewStore(sampleExercise("ex-1"))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	results := []domain.Result{
		{ID: "r2", ExerciseID: "ex-1", ParticipantID: "p2", Rated: true, CompletedAt: base.Add(time.Minute)},
		{ID: "r1", ExerciseID: "ex-1", ParticipantID: "p1", Rated: true, CompletedAt: base},
		{ID: "r3", ExerciseID: "ex-1", ParticipantID: "p3", Rated: false, CompletedAt: base.Add(2 * time.Minute)},
	}
	for _, res := range results {
		if err := store.SaveResult(ctx, res); err != nil {
			t.Fatalf("save %s: %v", res.ID, err)
		}
	}

	all, err := store.LoadAllResults(ctx, "ex-1")
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if len(all) != 3 || all[0].ID != "r1" || all[2].ID != "r3" {
		t.Fatalf("unexpected order: %+v", all)
	}

	if ok, _ := store.HasResult(ctx, "ex-1", "p1"); !ok {
		t.Fatalf("expected rated result for p1")
	}
	if ok, _ := store.HasResult(ctx, "ex-1", "p3"); ok {
		t.Fatalf("practice result must not count as participation")
	}
}

func TestStoreDeletedExercise(t *testing.T) {
	store := NewStore(sampleExercise("ex-1"))
	ctx := context.Background()
	store.DeleteExercise("ex-1")

	if ok, _ := store.ExerciseExists(ctx, "ex-1"); ok {
		t.Fatalf("expected exercise gone")
	}
	if _, err := store.LoadExercise(ctx, "ex-1"); !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Fatalf("load: expected ErrExerciseNotFound, got %v", err)
	}
	err := store.SaveResult(ctx, domain.Result{ID: "r1", ExerciseID: "ex-1"})
	if !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Fatalf("save: expected ErrExerciseNotFound, got %v", err)
	}
}

func TestStoreStatisticsAreCopied(t *testing.T) {
	store := NewStore(sampleExercise("ex-1"))
	ctx := context.Background()

	stats := domain.Statistics{ExerciseID: "ex-1", PointCounters: []domain.PointCounter{{Points: 4, Rated: 1}}}
	if err := store.ReplaceStatistics(ctx, "ex-1", stats); err != nil {
		t.Fatalf("replace: %v", err)
	}
	stats.PointCounters[0].Rated = 99

	got, ok, err := store.LoadStatistics(ctx, "ex-1")
	if err != nil || !ok {
		t.Fatalf("load statistics: ok=%v err=%v", ok, err)
	}
	if got.PointCounters[0].Rated != 1 {
		t.Fatalf("stored statistics aliased caller slice")
	}
}
