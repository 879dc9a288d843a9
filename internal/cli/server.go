package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/auth"
	"assessment-service/internal/config"
	"assessment-service/internal/domain"
	"assessment-service/internal/infra/memory"
	"assessment-service/internal/infra/postgres"
	redisstore "assessment-service/internal/infra/redis"
	transport "assessment-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.AssessmentLoader = memory.NewStaticAssessmentLoader(sampleAssessments())
	var results app.ResultRepository = memory.NewResultStore()
	if pool != nil {
		loader = postgres.NewAssessmentStore(pool)
		results = postgres.NewResultStore(pool)
	}

	assessmentTTL := config.TTLDuration(cfg.Assessment.TTL, 10*time.Minute)
	var assessments app.AssessmentRepository
	if redisClient != nil {
		assessments = redisstore.NewAssessmentRepository(redisClient, loader, assessmentTTL)
	} else {
		assessments = memory.NewAssessmentRepository(loader, assessmentTTL)
	}

	var attempts app.AttemptRegistry
	if redisClient != nil {
		attempts = redisstore.NewAttemptRegistry(redisClient, redisTTL)
	} else {
		attempts = memory.NewAttemptRegistry()
	}

	def := app.DefaultTiming()
	timing := app.Timing{
		QuestionTime:   config.TTLDuration(cfg.Attempt.QuestionTime, def.QuestionTime),
		Tick:           config.TTLDuration(cfg.Attempt.Tick, def.Tick),
		FeedbackWindow: config.TTLDuration(cfg.Attempt.FeedbackWindow, def.FeedbackWindow),
		PersistTimeout: config.TTLDuration(cfg.Attempt.PersistTimeout, def.PersistTimeout),
	}

	var identity auth.Provider = auth.HeaderProvider{}
	if cfg.Auth.JWTSecret != "" {
		identity = auth.NewJWTProvider(cfg.Auth.JWTSecret)
	} else {
		log.Printf("auth.jwt_secret not set; trusting X-User-ID (development only)")
	}

	service := app.NewAttemptService(assessments, results, attempts, app.WithTiming(timing))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, identity),
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting assessment service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleAssessments seeds the in-memory loader when no Postgres is configured.
func sampleAssessments() map[string]domain.Assessment {
	return map[string]domain.Assessment{
		"capitals": {
			ID:    "capitals",
			Title: "European capitals",
			Questions: []domain.Question{
				{Text: "What is the capital of France?", CorrectAnswer: "Paris", Distractors: []string{"London", "Rome", "Madrid"}},
				{Text: "What is the capital of Italy?", CorrectAnswer: "Rome", Distractors: []string{"Milan", "Naples", "Turin"}},
			},
			CreatedAt: time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC),
		},
	}
}
