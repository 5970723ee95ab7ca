package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mentorbook/config"
	"mentorbook/internal/database"
	"mentorbook/internal/router"
	"mentorbook/internal/service"
	"mentorbook/pkg/payment"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.Server.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	ctx := context.Background()
	if _, err := database.SeedPlatform(ctx, db, cfg, log); err != nil {
		log.Fatal("seed platform", zap.Error(err))
	}

	gateway, err := newGateway(cfg.Payment)
	if err != nil {
		log.Fatal("payment gateway", zap.Error(err))
	}
	if cfg.Payment.WebhookSecret == "" {
		log.Warn("PAYMENT_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}
	log.Info("payment gateway ready", zap.String("provider", cfg.Payment.Provider))

	fcm := service.NewFCMService(ctx, cfg.Firebase.ServiceAccountPath, log)
	if fcm == nil {
		log.Info("push notifications disabled")
	}

	app := router.Setup(cfg, db, gateway, fcm, log)
	pruner, err := app.Slots.StartSlotPruner(cfg.Scheduler.SlotPruneSpec)
	if err != nil {
		log.Fatal("slot pruner", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      app.Engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	<-pruner.Stop().Done()
	app.Close()
	log.Info("server stopped")
}

func newLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func newGateway(cfg config.PaymentConfig) (payment.Gateway, error) {
	switch cfg.Provider {
	case "", "stub":
		g := payment.NewStubGateway(cfg.WebhookSecret)
		g.Signer.Tolerance = cfg.WebhookTolerance
		return g, nil
	case "hosted", "stripe":
		if cfg.APIKey == "" {
			return nil, errors.New("PAYMENT_API_KEY is required for the hosted provider")
		}
		return payment.NewHostedCheckoutGateway(cfg.BaseURL, cfg.APIKey, cfg.WebhookSecret, cfg.WebhookTolerance), nil
	default:
		return nil, errors.New("unknown PAYMENT_PROVIDER " + cfg.Provider)
	}
}
