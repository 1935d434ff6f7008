package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofrs/flock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/handler"
	"github.com/episodecast/api/internal/limiter"
	"github.com/episodecast/api/internal/middleware"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/queue"
	"github.com/episodecast/api/internal/retry"
	"github.com/episodecast/api/internal/service"
	"github.com/episodecast/api/internal/store"
	ws "github.com/episodecast/api/internal/websocket"
	"github.com/episodecast/api/internal/worker"
)

func newServeCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, unless disabled, the queue worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	redisClient := newRedisClient(cfg)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	st, err := store.Open(&cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External collaborators
	assistant := client.NewAssistantClient(&cfg.Assistant, client.NewRedisThreadStore(redisClient, cfg.Assistant.ThreadTTL, cfg.Assistant.MaxHistory))
	if !assistant.IsConfigured() {
		log.Println("Warning: assistant API key not set; generation jobs will fail")
	}
	tts := client.NewElevenLabsClient(&cfg.ElevenLabs)
	if !tts.IsConfigured() {
		log.Println("Warning: ElevenLabs API key not set; podcast jobs will fail")
	}
	var uploader service.FileUploader
	if r2, err := client.NewR2Client(&cfg.R2); err != nil {
		log.Printf("Warning: R2 storage unavailable: %v", err)
		uploader = unavailableUploader{err: err}
	} else {
		uploader = r2
	}

	// One limiter per external service
	generationLimiter := limiter.New(limiterOptions(cfg.Limits.Generation))
	ttsLimiter := limiter.New(limiterOptions(cfg.Limits.TTS))

	p := cfg.Pipeline
	generationPolicy := retryPolicy("generation", p.GenerationAttempts, p.GenerationBaseDelay, retry.Linear)

	questions := service.NewQuestionGenerator(assistant, generationLimiter, generationPolicy, p.RoundDelay, p.StageTimeout)
	schedules := service.NewScheduleService(st)
	generator := service.NewSimulationGenerator(assistant, questions, st, schedules, generationLimiter, generationPolicy, p.EpisodeDelay, p.StageTimeout)
	assembler := service.NewPodcastAssembler(st, assistant, tts, uploader, hub,
		service.NewVoiceAssigner(cfg.ElevenLabs.MaleVoices, cfg.ElevenLabs.FemaleVoices),
		ttsLimiter, generationLimiter,
		service.PodcastOptions{
			UploadDir:        p.UploadDir,
			MaxChunks:        p.MaxConversionChunks,
			StageTimeout:     p.StageTimeout,
			TTSPolicy:        retryPolicy("tts", p.TTSAttempts, p.TTSDelay, retry.Fixed),
			ConversionPolicy: retryPolicy("conversion", p.ConversionAttempts, p.ConversionDelay, retry.Fixed),
		},
	)

	queueClient := queue.NewClient(asynqClient, &cfg.Queue)
	jobService := service.NewJobService(redisClient, queueClient, hub, p.PodcastBatchSize)

	if cfg.Queue.WorkerEnabled {
		processor := queue.NewProcessor(jobService)
		worker.Register(processor,
			worker.NewSimulationWorker(generator, jobService, hub),
			worker.NewPodcastWorker(assembler, jobService),
			worker.NewScheduleWorker(schedules, jobService),
		)

		srv, err := startWorkerServer(cfg, redisOpt, processor)
		if err != nil {
			return err
		}
		defer srv.Shutdown()
	}

	if cfg.Queue.ScheduleCron != "" {
		scheduler, lock, err := startScheduler(cfg, redisOpt, queueClient)
		if err != nil {
			return err
		}
		if scheduler != nil {
			defer func() {
				scheduler.Shutdown()
				_ = lock.Unlock()
			}()
		}
	}

	app := newApp(cfg, redisClient, st, jobService, hub, validate)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func newApp(cfg *config.Config, redisClient *redis.Client, st *store.Store, jobs *service.JobService, hub *ws.Hub, validate *validator.Validate) *fiber.App {
	jobHandler := handler.NewJobHandler(jobs, validate)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"redis":    handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		"database": st,
	})

	fallbackUser := ""
	if !cfg.Gateway.Enabled {
		fallbackUser = "local"
	}
	identity := middleware.GatewayAuthMiddleware(fallbackUser)
	submissionLimit := middleware.NewRateLimiter(redisClient).SubmissionLimit(cfg.RateLimit.SubmissionsPerHour)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-User-Id",
	}))

	app.Get("/health", healthHandler.Health)

	api := app.Group("/api", identity)
	api.Post("/simulations/generate", submissionLimit, jobHandler.GenerateSimulation)
	api.Post("/podcasts/generate", submissionLimit, jobHandler.GeneratePodcast)
	api.Post("/episodes/schedule", jobHandler.ScheduleEpisodes)
	api.Get("/jobs/:jobId", jobHandler.Status)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/users/:userId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("userId"))
	}))

	return app
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, processor *queue.Processor) (*asynq.Server, error) {
	var level asynq.LogLevel
	if err := level.Set(cfg.Server.LogLevel); err != nil {
		level = asynq.InfoLevel
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Queue.Concurrency,
		Queues:         queue.Queues(cfg.Queue.Name),
		StrictPriority: true,
		RetryDelayFunc: queue.RetryDelay,
		LogLevel:       level,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			log.Printf("Task %s (%s) failed: %v", id, task.Type(), err)
		}),
	})

	if err := srv.Start(processor.Mux()); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	log.Printf("Worker consuming %s with concurrency %d, kinds %v", cfg.Queue.Name, cfg.Queue.Concurrency, processor.Kinds())
	return srv, nil
}

// startScheduler registers the periodic schedule job. Only the process holding
// the scheduler lock runs it; others return a nil scheduler.
func startScheduler(cfg *config.Config, redisOpt asynq.RedisClientOpt, queueClient *queue.Client) (*asynq.Scheduler, *flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Queue.SchedulerLock), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	lock := flock.New(cfg.Queue.SchedulerLock)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("acquire scheduler lock: %w", err)
	}
	if !ok {
		log.Printf("Scheduler lock %s held by another process; not scheduling", cfg.Queue.SchedulerLock)
		return nil, nil, nil
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	opts := queue.DefaultOptions()
	opts.Priority = 1
	opts.RemoveOnComplete = true
	entryID, err := queueClient.RegisterPeriodic(scheduler, cfg.Queue.ScheduleCron, model.KindScheduleEpisodes, &model.ScheduleEpisodesPayload{}, opts)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}
	if err := scheduler.Start(); err != nil {
		_ = lock.Unlock()
		return nil, nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Printf("Scheduled %s on %q (entry %s)", model.KindScheduleEpisodes, cfg.Queue.ScheduleCron, entryID)
	return scheduler, lock, nil
}

func limiterOptions(c config.LimiterConfig) limiter.Options {
	return limiter.Options{
		MaxConcurrent:           c.MaxConcurrent,
		MinSpacing:              c.MinSpacing,
		ReservoirSize:           c.ReservoirSize,
		ReservoirRefillAmount:   c.ReservoirRefillAmount,
		ReservoirRefillInterval: c.ReservoirRefillInterval,
	}
}

func retryPolicy(name string, attempts int, delay time.Duration, backoff retry.Backoff) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   delay,
		Backoff:     backoff,
		Name:        name,
		OnRetry: func(attempt int, err error) {
			log.Printf("%s attempt %d failed, retrying: %v", name, attempt, err)
		},
	}
}

type unavailableUploader struct {
	err error
}

func (u unavailableUploader) UploadFile(context.Context, string, []byte, string, string) (*client.UploadResult, error) {
	return nil, fmt.Errorf("storage not configured: %w", u.err)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
