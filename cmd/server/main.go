package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hostly/referral-engine/internal/attribution"
	"github.com/hostly/referral-engine/internal/config"
	"github.com/hostly/referral-engine/internal/database"
	"github.com/hostly/referral-engine/internal/fraud"
	"github.com/hostly/referral-engine/internal/handlers"
	"github.com/hostly/referral-engine/internal/jobs"
	"github.com/hostly/referral-engine/internal/ledger"
	"github.com/hostly/referral-engine/internal/queue"
	"github.com/hostly/referral-engine/internal/routes"
	"github.com/hostly/referral-engine/internal/settlement"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()

	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.WithError(err).Fatal("failed to connect to redis")
	}

	redisQueue := queue.NewRedisQueue(redisClient)
	worker := queue.NewWorker(redisQueue, 4)

	detector := fraud.NewDetector(db, cfg.Fraud)

	// Sync mode evaluates fraud inline after each ledger transition; async
	// mode pushes evaluation through the job queue.
	var enqueuer queue.Enqueuer
	if cfg.Fraud.Async {
		enqueuer = redisQueue
	}
	dispatcher := fraud.NewDispatcher(detector, enqueuer)

	ledg := ledger.NewLedger(db, dispatcher)
	validator := attribution.NewCookieValidator(cfg.Referral.CookieSecret, cfg.Referral.AllowLegacyCookies)
	resolver := attribution.NewResolver(db, validator)
	engine := settlement.NewEngine(db, cfg.Referral, ledg, dispatcher)

	jobs.RegisterFraudEvaluationJobHandlers(worker, db, detector)

	expiryJob := jobs.NewReferralExpiryJob(ledg, cfg.Referral.ExpiryDays)
	if err := expiryJob.Schedule(worker.Scheduler()); err != nil {
		logrus.WithError(err).Fatal("failed to schedule referral expiry job")
	}

	worker.Start()

	router := routes.SetupRouter(cfg, routes.Handlers{
		Referral:    handlers.NewReferralHandler(ledg, validator, cfg.FrontendURL),
		Attribution: handlers.NewAttributionHandler(resolver, ledg),
		Settlement:  handlers.NewSettlementHandler(engine),
		Fraud:       handlers.NewFraudHandler(detector),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server")

	worker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Fatal("server forced to shutdown")
	}

	logrus.Info("server exiting")
}
