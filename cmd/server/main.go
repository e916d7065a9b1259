package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"
	config "postqueue/configs"
	"postqueue/internal/api/handlers"
	"postqueue/internal/api/middleware"
	job "postqueue/internal/jobs"
	"postqueue/internal/publisher"
	"postqueue/internal/queue"
	"postqueue/internal/repository"
	"postqueue/internal/scheduler"
	"postqueue/internal/service"
	"postqueue/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	// The queue client probes Redis once here. If it is down the service
	// still starts; entries stay pending and the poll scheduler publishes
	// them.
	queueClient := queue.NewClient(*cfg)
	defer queueClient.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	postRepo := repository.NewPostRepository(db)
	scheduleRepo := repository.NewScheduleEntryRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	apiKeyRepository := repository.NewApiKeyRepository(db)

	pub := publisher.New(*cfg, socialAccountRepo, postRepo)

	publishService := service.NewPublishService(postRepo, socialAccountRepo, scheduleRepo, pub)
	postService := service.NewPostService(db, postRepo, scheduleRepo, queueClient)
	mediaService := service.NewMediaService(*cfg)
	accountService := service.NewAccountService(socialAccountRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepository)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/update", post.UpdatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/calendar", post.Calendar)
	api.Post("/posts/remove", post.RemovePost)

	publish := handlers.NewPublishHandler(publishService)
	api.Post("/social/post", publish.PublishNow)

	// social accounts api routes
	account := handlers.NewAccountHandler(accountService)
	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/remove", account.RemoveAccount)

	asset := handlers.NewAssetHandler(mediaService)
	api.Post("/assets/upload", asset.UploadAsset)

	// fallback execution path, runs regardless of queue health
	poller := scheduler.NewPoller(*cfg, scheduleRepo, publishService)
	if err := poller.Start(); err != nil {
		log.Fatalf("Failed to start poll scheduler: %v", err)
	}
	defer poller.Stop()

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, pub)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	if queueClient.Available() {
		go func() {
			worker := queue.NewWorker(*cfg, scheduleRepo, publishService)

			server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, asynq.Config{
				Concurrency:    cfg.WorkerConcurrency,
				RetryDelayFunc: worker.RetryDelay,
			})

			mux := asynq.NewServeMux()
			mux.HandleFunc(queue.TaskTypePublishEntry, worker.HandlePublishEntryTask)

			log.Println("Starting the Asynq server...")
			if err := server.Run(mux); err != nil {
				log.Fatalf("Could not start Asynq server: %v", err)
			}
		}()
	}

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
