package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	mongostore "quiz-attempt-service/internal/infra/mongo"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	"quiz-attempt-service/internal/infra/rabbit"
	redisstore "quiz-attempt-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backends picks an implementation per repository from what is configured.
// Postgres wins over Mongo for durable storage; memory is the fallback.
type backends struct {
	service *app.AttemptService
	// quizWriter is nil when quizzes come from the built-in samples.
	quizWriter quizWriter
	// quizCache is set when quizzes are cached in Redis, shared across instances.
	quizCache *redisstore.QuizRepository
	closers   []func()
}

type quizWriter interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// catalogLoader is a quiz source that can also list its quizzes.
type catalogLoader interface {
	memory.QuizLoader
	app.QuizCatalog
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func buildBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		log.Info("using redis", "addr", cfg.Redis.Addr)
	}

	var (
		loader  catalogLoader = memory.NewStaticQuizLoader(sampleQuizzes())
		results app.ResultRepository
	)
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		pgLoader := pgstore.NewQuizLoader(pool)
		loader = pgLoader
		b.quizWriter = pgLoader
		results = pgstore.NewResultStore(pool)
		log.Info("using postgres storage")
	case cfg.Mongo.URI != "":
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		db := client.Database(cfg.Mongo.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return nil, err
		}
		mongoLoader := mongostore.NewQuizLoader(db)
		loader = mongoLoader
		b.quizWriter = mongoLoader
		results = mongostore.NewResultStore(db)
		log.Info("using mongo storage", "database", cfg.Mongo.Database)
	default:
		results = memory.NewResultStore()
		log.Warn("no database configured, results are kept in memory")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	boardTTL := config.TTLDuration(cfg.Leaderboard.TTL, time.Minute)
	var (
		quizzes  app.QuizRepository
		attempts app.AttemptRepository
		boards   app.LeaderboardCache
	)
	if redisClient != nil {
		b.quizCache = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		quizzes = b.quizCache
		attempts = redisstore.NewAttemptStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute), log)
		boards = redisstore.NewLeaderboardCache(redisClient, boardTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
		attempts = memory.NewAttemptStore()
		boards = memory.NewLeaderboardCache(boardTTL)
	}

	publisher, err := rabbit.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close event publisher", "err", err)
		}
	})

	b.service = app.NewAttemptService(quizzes, attempts, results,
		app.WithLeaderboardCache(boards),
		app.WithQuizCatalog(loader),
		app.WithEventPublisher(publisher),
		app.WithLogger(log),
		app.WithTickInterval(config.TTLDuration(cfg.Quiz.TickInterval, time.Second)),
	)
	ok = true
	return b, nil
}

// sampleQuizzes backs the service when no database is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Warm-up arithmetic",
			TopicID:          "math",
			TimeLimitMinutes: 5,
			Questions: []domain.Question{
				{ID: "q1", Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOption: 1},
				{ID: "q2", Prompt: "What is 7 * 6?", Options: []string{"42", "36", "48", "13"}, CorrectOption: 0},
				{ID: "q3", Prompt: "What is 81 / 9?", Options: []string{"8", "7", "9", "11"}, CorrectOption: 2},
				{ID: "q4", Prompt: "What is 15 - 8?", Options: []string{"6", "9", "8", "7"}, CorrectOption: 3},
			},
		},
	}
}
