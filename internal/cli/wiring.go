package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quiz-exercise-service/internal/app"
	"quiz-exercise-service/internal/config"
	"quiz-exercise-service/internal/infra/memory"
	pgstore "quiz-exercise-service/internal/infra/postgres"
	infraredis "quiz-exercise-service/internal/infra/redis"
)

func newLogger(cfg config.Config) *httplog.Logger {
	logger := httplog.NewLogger("quiz-exercise-service", httplog.Options{
		LogLevel:         config.LogLevel(cfg.Log.Level),
		JSON:             cfg.Log.JSON,
		Concise:          !cfg.Log.JSON,
		RequestHeaders:   true,
		MessageFieldName: "message",
	})
	slog.SetDefault(logger.Logger)
	return logger
}

type storeBackend interface {
	app.ExerciseStore
	memory.ExerciseLoader
}

// wiring holds the service and whatever connections it owns.
type wiring struct {
	service *app.QuizService
	closers []func()
}

func (w *wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

// buildService picks Postgres and Redis when configured and falls back to in-memory implementations.
func buildService(ctx context.Context, cfg config.Config, log *slog.Logger) (*wiring, error) {
	w := &wiring{}

	var store storeBackend
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, pool.Close)
		store = pgstore.NewStore(pool)
	} else {
		log.Warn("postgres not configured, using in-memory store with sample exercises")
		store = memory.NewStore(sampleExercises(time.Now())...)
	}

	exerciseTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		exercises app.ExerciseRepository
		cache     app.SubmissionCache
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		w.closers = append(w.closers, func() { _ = client.Close() })
		exercises = infraredis.NewExerciseRepository(client, store, exerciseTTL)
		cache = infraredis.NewSubmissionCache(client)
	} else {
		exercises = memory.NewExerciseRepository(store, exerciseTTL)
		cache = memory.NewSubmissionCache()
	}

	w.service = app.NewQuizService(store, exercises, cache,
		app.WithLogger(log),
		app.WithGracePeriod(config.TTLDuration(cfg.Quiz.GracePeriod, 0)),
		app.WithScheduleInterval(config.TTLDuration(cfg.Quiz.ScheduleInterval, 5*time.Second)),
		app.WithMaxAnswerLength(maxAnswerLength(cfg)),
		app.WithPersistRetry(cfg.Quiz.PersistAttempts, config.TTLDuration(cfg.Quiz.PersistDelay, 100*time.Millisecond)),
		app.WithWorkers(cfg.Quiz.Workers),
	)
	return w, nil
}

func maxAnswerLength(cfg config.Config) int {
	if cfg.Quiz.MaxAnswerLength == 0 {
		return 500
	}
	return cfg.Quiz.MaxAnswerLength
}
