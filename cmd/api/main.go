package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/config"
	"github.com/hirecraft/assess-go/internal/database"
	"github.com/hirecraft/assess-go/internal/handler"
	"github.com/hirecraft/assess-go/internal/middleware"
	"github.com/hirecraft/assess-go/internal/models"
	"github.com/hirecraft/assess-go/internal/queue"
	"github.com/hirecraft/assess-go/internal/repository"
	"github.com/hirecraft/assess-go/internal/router"
	"github.com/hirecraft/assess-go/internal/service"
	"github.com/hirecraft/assess-go/pkg/review"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Question{}, &models.CodeDraft{}, &models.Submission{}, &models.ProctorEvent{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, submission announcements disabled")
	}

	questionRepo := repository.NewQuestionRepository(db)
	draftRepo := repository.NewDraftRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	proctorEventRepo := repository.NewProctorEventRepository(db)

	questionService, err := service.NewQuestionService(questionRepo, logger)
	if err != nil {
		log.Fatalf("failed to build question service: %v", err)
	}
	if cfg.QuestionSeedPath != "" {
		affected, err := questionService.SeedFromFile(context.Background(), cfg.QuestionSeedPath)
		if err != nil {
			log.Fatalf("failed to seed question catalog: %v", err)
		}
		logger.Info().Int64("affected", affected).Msg("question catalog loaded")
	}

	var reviewer review.Reviewer
	if cfg.ReviewEnabled() {
		openAIReviewer, err := review.NewOpenAIReviewer(review.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create reviewer: %v", err)
		}
		reviewer = openAIReviewer
	}

	runQueue := queue.New(redisClient, cfg.RunQueue, logger)

	draftService := service.NewDraftService(draftRepo, questionRepo, logger)
	executionService := service.NewExecutionService(questionRepo, runQueue, &cfg, logger)
	submissionService := service.NewSubmissionService(service.SubmissionConfig{
		Submissions: submissionRepo,
		Questions:   questionRepo,
		NATS:        natsConn,
		Reviewer:    reviewer,
		Logger:      logger,
	})
	proctorService, err := service.NewProctorService(service.ProctorConfig{
		Events: proctorEventRepo,
		Redis:  redisClient,
		NATS:   natsConn,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to build proctor service: %v", err)
	}
	defer proctorService.Close()

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		QuestionHandler: handler.NewQuestionHandler(questionService, logger),
		SessionHandler:  handler.NewSessionHandler(draftService, executionService, submissionService, logger),
		ProctorHandler:  handler.NewProctorHandler(proctorService, logger),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
