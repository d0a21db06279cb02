package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/betledger_backend/chain"
	"bitbucket.org/mmdatafocus/betledger_backend/config"
	"bitbucket.org/mmdatafocus/betledger_backend/models"
	"bitbucket.org/mmdatafocus/betledger_backend/models/reports"
	"bitbucket.org/mmdatafocus/betledger_backend/utils"
	"bitbucket.org/mmdatafocus/betledger_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer trace.Tracer = otel.Tracer("betledger-integrity")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// validationEvent is the Pub/Sub push payload emitted by the transaction
// pipelines after each commit.
type validationEvent struct {
	TransactionId   string  `json:"transaction_id"`
	TransactionKind string  `json:"transaction_kind"`
	ReferenceId     *string `json:"reference_id,omitempty"`
	UserId          *string `json:"user_id,omitempty"`
	CorrelationId   string  `json:"correlation_id,omitempty"`
}

var (
	chainOnce    sync.Once
	chainFetcher chain.Fetcher
	chainErr     error
)

// getChainFetcher builds the rate-limited on-chain client once per process.
func getChainFetcher() (chain.Fetcher, error) {
	chainOnce.Do(func() {
		client, err := chain.NewClient()
		if err != nil {
			chainErr = err
			return
		}
		chainFetcher = chain.NewCachedFetcher(client)
	})
	return chainFetcher, chainErr
}

func newReconciliationEngine(logger *logrus.Logger) (*workflow.ReconciliationEngine, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	fetcher, err := getChainFetcher()
	if err != nil {
		return nil, err
	}
	return &workflow.ReconciliationEngine{
		Store:    &workflow.GormReconciliationStore{DB: db},
		Source:   &workflow.LedgerChainSource{DB: db, Chain: fetcher},
		Notifier: &workflow.PubSubNotifier{Logger: logger},
		Logger:   logger,
		Ledger:   &workflow.GormLedgerChecker{DB: db},
	}, nil
}

func newValidationEngine(logger *logrus.Logger) (*workflow.ValidationEngine, error) {
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	fetcher, err := getChainFetcher()
	if err != nil {
		return nil, err
	}
	reconCfg, err := config.ReconciliationConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return &workflow.ValidationEngine{
		Store:    &workflow.GormValidationStore{DB: db},
		Rollback: &workflow.GormRollbackCoordinator{DB: db},
		Notifier: &workflow.PubSubNotifier{Logger: logger},
		Logger:   logger,
		Env: &workflow.CheckEnv{
			DB:        db,
			Chain:     fetcher,
			Tolerance: reconCfg.ToleranceThreshold,
		},
	}, nil
}

type runReconciliationRequest struct {
	Kind string `json:"kind"`
}

func runReconciliationHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runReconciliationRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		kind := models.ReportKind(req.Kind)
		switch kind {
		case "":
			kind = models.ReportKindManual
		case models.ReportKindManual, models.ReportKindScheduled, models.ReportKindLedgerConsistency:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown report kind: " + req.Kind})
			return
		}

		cfg, err := config.ReconciliationConfigFromEnv()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		engine, err := newReconciliationEngine(logger)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "reconciliation.run")
		defer span.End()

		var report *models.ReconciliationReport
		err = workflow.WithReconciliationLock(ctx, config.GetRedisLock(), kind, func(ctx context.Context) error {
			var runErr error
			report, runErr = engine.Run(ctx, kind, cfg)
			return runErr
		})
		if errors.Is(err, workflow.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "a reconciliation run of this kind is already in progress"})
			return
		}
		if err != nil {
			status := http.StatusInternalServerError
			if report != nil {
				// The failed report is persisted; surface its id.
				c.JSON(status, gin.H{"error": err.Error(), "report_id": report.ID})
				return
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func getReconciliationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := models.GetReconciliationReport(c.Request.Context(), config.GetDB(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func reportFilterFromQuery(c *gin.Context) models.ReportFilter {
	filter := models.ReportFilter{
		Status: c.Query("status"),
		Kind:   c.Query("kind"),
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &t
		}
	}
	if v := c.Query("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = &t
		}
	}
	return filter
}

func listReconciliationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := models.ListReconciliationReports(c.Request.Context(), config.GetDB(), reportFilterFromQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func reconciliationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := models.GetReconciliationSummary(c.Request.Context(), config.GetDB())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func stuckReconciliationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		olderThan := time.Hour
		if v := c.Query("older_than_minutes"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				olderThan = time.Duration(n) * time.Minute
			}
		}
		stuck, err := models.ListStuckReconciliationReports(c.Request.Context(), config.GetDB(), olderThan)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": stuck, "count": len(stuck)})
	}
}

func exportReconciliationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := models.GetReconciliationReport(c.Request.Context(), config.GetDB(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := reports.WriteReconciliationExcel(c.Writer, report); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	}
}

type validateTransactionRequest struct {
	TransactionId   string  `json:"transaction_id"`
	TransactionKind string  `json:"transaction_kind"`
	ValidationKind  string  `json:"validation_kind"`
	ReferenceId     *string `json:"reference_id"`
	UserId          *string `json:"user_id"`
}

func validateTransactionHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.TransactionId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id is required"})
			return
		}
		kind, err := models.ParseTransactionKind(req.TransactionKind)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cfg, err := config.ValidationConfigFromEnv()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		engine, err := newValidationEngine(logger)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "validation.validate")
		defer span.End()

		report, err := engine.ValidateTransaction(ctx, workflow.ValidationRequest{
			TransactionId:   req.TransactionId,
			TransactionKind: kind,
			ValidationKind:  models.ValidationKind(req.ValidationKind),
			ReferenceId:     req.ReferenceId,
			UserId:          req.UserId,
		}, cfg)
		if errors.Is(err, utils.ErrValidationDisabled) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func getValidationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := models.GetValidationReport(c.Request.Context(), config.GetDB(), c.Param("id"))
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func listValidationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := models.ListValidationReports(c.Request.Context(), config.GetDB(), reportFilterFromQuery(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func stuckValidationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		olderThan := time.Hour
		if v := c.Query("older_than_minutes"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				olderThan = time.Duration(n) * time.Minute
			}
		}
		stuck, err := models.ListStuckValidationReports(c.Request.Context(), config.GetDB(), olderThan)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": stuck, "count": len(stuck)})
	}
}

type sweepRequest struct {
	SinceHours int `json:"since_hours"`
}

func validationSweepHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sweepRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.SinceHours <= 0 {
			req.SinceHours = 24
		}

		cfg, err := config.ValidationConfigFromEnv()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		engine, err := newValidationEngine(logger)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		since := time.Now().UTC().Add(-time.Duration(req.SinceHours) * time.Hour)
		summary, err := engine.ValidateRecentTransactions(c.Request.Context(), since, cfg)
		if errors.Is(err, utils.ErrValidationDisabled) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// validationPubSubHandler processes push-delivered transaction events. Ack
// semantics follow Pub/Sub push: malformed payloads are acked and dropped so
// they cannot retry forever, processing failures return non-2xx for retry.
func validationPubSubHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		if err := c.ShouldBindJSON(&msg); err != nil {
			config.LogError(logger, "server.go", "validationPubSubHandler", "Unmarshal body", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		var event validationEvent
		if err := json.Unmarshal(msg.Message.Data, &event); err != nil {
			config.LogError(logger, "server.go", "validationPubSubHandler", "Unmarshal event", msg.Message.Data, err)
			c.Status(http.StatusNoContent)
			return
		}
		kind, err := models.ParseTransactionKind(event.TransactionKind)
		if err != nil || event.TransactionId == "" {
			config.LogError(logger, "server.go", "validationPubSubHandler", "Invalid event (missing required fields)", event, err)
			c.Status(http.StatusNoContent)
			return
		}

		// Correlation ID propagation: prefer payload correlation_id; fall
		// back to the Pub/Sub message ID.
		cid := event.CorrelationId
		if cid == "" {
			cid = msg.Message.ID
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)

		cfg, err := config.ValidationConfigFromEnv()
		if err != nil {
			config.LogError(logger, "server.go", "validationPubSubHandler", "Loading validation config", event, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		engine, err := newValidationEngine(logger)
		if err != nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}

		_, err = engine.ValidateTransaction(ctx, workflow.ValidationRequest{
			TransactionId:   event.TransactionId,
			TransactionKind: kind,
			ReferenceId:     event.ReferenceId,
			UserId:          event.UserId,
		}, cfg)
		if errors.Is(err, utils.ErrValidationDisabled) {
			// Validation switched off: ack, do not retry.
			c.Status(http.StatusNoContent)
			return
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field":            "validationPubSubHandler",
				"transaction_id":   event.TransactionId,
				"transaction_kind": event.TransactionKind,
				"message_id":       msg.Message.ID,
				"correlation_id":   cid,
			}).Error("pubsub validation failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		// Success: ack.
		c.Status(http.StatusNoContent)
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func main() {
	_ = godotenv.Load()

	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/reconciliation/run", runReconciliationHandler(logger))
	r.GET("/api/reconciliation/reports", listReconciliationReportsHandler())
	r.GET("/api/reconciliation/reports/:id", getReconciliationReportHandler())
	r.GET("/api/reconciliation/reports/:id/export", exportReconciliationReportHandler())
	r.GET("/api/reconciliation/summary", reconciliationSummaryHandler())
	r.GET("/api/reconciliation/stuck", stuckReconciliationReportsHandler())

	r.POST("/api/validation/validate", validateTransactionHandler(logger))
	r.POST("/api/validation/sweep", validationSweepHandler(logger))
	r.GET("/api/validation/reports", listValidationReportsHandler())
	r.GET("/api/validation/reports/:id", getValidationReportHandler())
	r.GET("/api/validation/stuck", stuckValidationReportsHandler())

	r.POST("/pubsub", validationPubSubHandler(logger))
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations as
	// a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "rate:" + c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		if err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count > rl.limit {
		c.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	c.Next()
}
