package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"quizsession/config"
	"quizsession/events"
	"quizsession/feedback"
	"quizsession/handlers"
	"quizsession/models"
	"quizsession/routes"
	"quizsession/scheduler"
	"quizsession/services"
	"quizsession/session"
)

func main() {
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load()
	if err != nil {
		glog.Fatalf("failed to load configuration: %v", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		glog.Fatalf("failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Quiz{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.AttemptAnswer{},
	)
	if err != nil {
		glog.Fatalf("failed to migrate database: %v", err)
	}

	redisClient := config.InitRedis(cfg)

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		rabbit, err := events.DialRabbit(cfg.RabbitMQURL)
		if err != nil {
			glog.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		publisher = rabbit
	}

	var generator feedback.Generator = feedback.Basic{}
	if cfg.OpenAIAPIKey != "" {
		generator = feedback.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	quizService := services.NewQuizService(db)
	draftService := services.NewDraftService(redisClient, cfg.DraftTTL)
	gradingService := services.NewGradingService(db, quizService, draftService, publisher, generator)

	sched := scheduler.NewClock(clock.RealClock{})
	hub := services.NewHub()
	sessionOpts := services.SessionOptions{
		Session: session.DefaultConfig,
		Linger:  cfg.SessionLinger,
	}
	sessionOpts.Session.AutoSaveDelay = cfg.AutoSaveDelay
	sessionOpts.Session.Warnings = cfg.WarningThresholds
	manager := services.NewSessionManager(sched, quizService, draftService, gradingService, hub, sessionOpts)
	hub.SetStateSource(manager)

	router := gin.Default()
	routes.SetupRoutes(router, routes.Handlers{
		Quiz:       handlers.NewQuizHandler(quizService),
		Draft:      handlers.NewDraftHandler(draftService),
		Submission: handlers.NewSubmissionHandler(gradingService),
		Session:    handlers.NewSessionHandler(manager, hub),
	}, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		glog.Infof("server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		glog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)

		manager.Shutdown(shutdownCtx)
		sched.Wait()
		if cerr := publisher.Close(); cerr != nil {
			glog.Warningf("closing publisher: %v", cerr)
		}
		if cerr := redisClient.Close(); cerr != nil {
			glog.Warningf("closing redis: %v", cerr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		glog.Errorf("server stopped: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}
