package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medreport/config"
	"medreport/database"
	"medreport/engine"
	"medreport/handlers"
	"medreport/logging"
	"medreport/metrics"
	"medreport/middleware"
	"medreport/rabbitmq"
	"medreport/reporting"
	"medreport/service"
	"medreport/version"
)

const (
	EndPointIndex   = "/"
	EndPointMetrics = "/metrics"
	EndPointHealth  = "/health"
	EndPointStatus  = "/status"
	EndPointVersion = "/version"
	EndPointReport  = "/report"
	EndPointReports = "/reports"
	EndPointReport1 = "/reports/:id"
	EndPointStats   = "/stats"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	// Load configuration
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	info := version.Get()
	log.WithFields(log.Fields{
		"version": info.Version,
		"git_sha": info.GitSHA,
	}).Info("Starting the medical report service...")

	metrics.Register()

	if cfg.SentryDSN != "" {
		if err := reporting.Init(cfg.SentryDSN, cfg.SentryEnvironment, info.Version); err != nil {
			log.WithError(err).Warn("Failed to initialize Sentry")
		}
		defer reporting.Flush(2 * time.Second)
	}

	ctx := context.Background()
	startup := engine.Load(ctx, cfg)

	var history service.HistoryStore
	var historyReader handlers.HistoryReader
	if cfg.DBEnabled {
		db, err := database.NewDatabase(ctx, cfg.DSN())
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize database")
		}
		defer db.Close()
		if err := db.CreateReportHistoryTable(ctx); err != nil {
			log.WithError(err).Fatal("Failed to create report_history table")
		}
		history = db
		historyReader = db
	}

	var events service.EventPublisher
	var eventsStatus handlers.EventsStatus
	if cfg.AMQPEnabled {
		publisher, err := rabbitmq.NewPublisher(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			// Reports still work without events.
			log.WithError(err).Warn("Failed to initialize RabbitMQ publisher")
		} else {
			defer publisher.Close()
			events = publisher
			eventsStatus = publisher
		}
	}

	svc := service.NewService(cfg, startup, history, events)
	h := handlers.NewHandlers(svc, historyReader)
	if eventsStatus != nil {
		h.WithEvents(eventsStatus)
	}
	router, err := setupRouter(cfg, h)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up router")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		log.Infof("Backend: %s, model: %s, rate limit: %d requests per minute", cfg.Backend, cfg.ModelID, cfg.RateLimitPerMinute)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers) (*gin.Engine, error) {
	router := gin.New()
	// ClientIP feeds the rate limiter, so forwarded headers are only
	// honoured from configured proxies.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	router.SetHTMLTemplate(handlers.Templates())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))
	router.GET(EndPointIndex, h.Index)

	api := router.Group("/api/v1")
	{
		api.GET(EndPointHealth, h.HealthCheck)
		api.GET(EndPointStatus, h.GetStatus)
		api.GET(EndPointVersion, h.GetVersion)
		api.GET(EndPointReports, h.ListReports)
		api.GET(EndPointReport1, h.GetReport)
		api.GET(EndPointStats, h.GetStats)
	}

	// Generation is the expensive path: rate limit it and cap uploads.
	generate := router.Group("/")
	generate.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	generate.Use(middleware.MaxBodySize(cfg.MaxUploadBytes))
	{
		generate.POST(EndPointIndex, h.SubmitForm)
		generate.POST("/api/v1"+EndPointReport, h.GenerateReport)
	}

	return router, nil
}
