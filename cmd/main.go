package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"project_waflow/internal/config"
	"project_waflow/internal/infrastructure"
	"project_waflow/internal/interfaces"
	"project_waflow/internal/interfaces/http"
	"project_waflow/internal/repository"
	"project_waflow/internal/usecases"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetLevel(cfg.Server.LogLevel)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Server.LogLevel >= log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := log.WithField("module", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories
	flowRepo := repository.NewFlowRepository(cfg.Server.DataDir)
	convRepo := repository.NewConversationRepository(cfg.Server.DataDir)

	var auditLog interfaces.AuditLog = repository.NewFileAuditLog(cfg.Server.DataDir)
	if cfg.AuditDSN != "" {
		pgClient, err := infrastructure.NewPostgresClient(ctx, cfg.AuditDSN)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to audit database")
		}
		defer pgClient.Close()
		auditLog = repository.NewPostgresAuditLog(pgClient.Pool)
		logger.Info("Message log stored in PostgreSQL")
	}

	// Delivery
	limiter := infrastructure.NewRecipientLimiter(cfg.WhatsApp.SendRate, cfg.WhatsApp.SendBurst)
	waClient := infrastructure.NewWhatsAppCloudClient(infrastructure.CloudClientOptions{
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		APIVersion:    cfg.WhatsApp.APIVersion,
		BaseURL:       cfg.WhatsApp.BaseURL,
		BrandName:     cfg.WhatsApp.BrandName,
		Retries:       cfg.WhatsApp.SendRetries,
		BackoffUnit:   cfg.WhatsApp.BackoffUnit,
	}, auditLog, limiter)

	bus := infrastructure.NewInMemoryEventBus(256)

	// Usecases
	messageService := usecases.NewMessageService(waClient, convRepo, flowRepo, usecases.NewLoggingActionHandler(), bus, cfg.Flow.MaxDelay)
	flowUsecase := usecases.NewFlowUsecase(flowRepo)
	dashboardUsecase := usecases.NewDashboardUsecase(flowRepo, convRepo, auditLog)

	authUsecase := usecases.NewAuthUsecase(cfg.Auth.JWTSecret)
	if cfg.Auth.Enabled() {
		if err := authUsecase.EnsureAdmin(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			logger.WithError(err).Fatal("JWT_SECRET is set but the admin account could not be created")
		}
	} else {
		logger.Warn("JWT_SECRET not set, API authentication disabled")
	}

	worker := usecases.NewInboundWorker(messageService, bus)
	if err := worker.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start inbound worker")
	}

	// HTTP server
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	http.SetupRoutes(r, messageService, flowUsecase, authUsecase, dashboardUsecase, convRepo, cfg.WhatsApp, limiter, http.NewMiddleware(cfg.Auth.JWTSecret))

	srv := &nethttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	if waClient.Configured() {
		logger.WithFields(log.Fields{
			"brand":    cfg.WhatsApp.BrandName,
			"phone_id": "..." + tail(cfg.WhatsApp.PhoneNumberID, 4),
			"api":      cfg.WhatsApp.APIVersion,
		}).Info("WhatsApp Cloud API configured")
	} else {
		logger.Warn("WhatsApp NOT CONFIGURED, set WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID; messages will be simulated")
	}
	logger.WithFields(log.Fields{"addr": cfg.Server.Addr, "data_dir": cfg.Server.DataDir}).Info("Server started")

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	if err := bus.Close(); err != nil {
		logger.WithError(err).Error("Event bus close failed")
	}
	if err := worker.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Flow runs cancelled before completion")
	}
	logger.Info("Stopped")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
