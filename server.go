package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/proplens/recon_backend/config"
	"github.com/proplens/recon_backend/models"
	"github.com/proplens/recon_backend/models/reports"
	"github.com/proplens/recon_backend/utils"
	"github.com/proplens/recon_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// writeModelError maps the models package's sentinel errors to HTTP statuses.
func writeModelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "an active session already exists for this property, period, and scope"})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type startSessionRequest struct {
	PropertyId    int    `json:"property_id" binding:"required,gt=0"`
	PeriodId      string `json:"period_id" binding:"required,period"`
	DocumentScope string `json:"document_scope"`
}

func startSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		scope := req.DocumentScope
		if scope == "" {
			scope = models.DocumentScopeAll
		}
		session, err := workflow.StartReconciliationSession(c.Request.Context(), req.PropertyId, req.PeriodId, scope)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, session)
	}
}

func listSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, _ := strconv.Atoi(c.Query("property_id"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		sessions, err := models.ListSessions(c.Request.Context(), propertyId, limit)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

func getSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId, err := strconv.Atoi(c.Param("id"))
		if err != nil || sessionId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		session, err := models.GetSession(c.Request.Context(), sessionId)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func cancelSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId, err := strconv.Atoi(c.Param("id"))
		if err != nil || sessionId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		err = workflow.CancelSession(c.Request.Context(), sessionId)
		if errors.Is(err, workflow.ErrSessionNotCancellable) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionId, "cancelled": true})
	}
}

func comparisonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := strconv.Atoi(c.Query("property_id"))
		if err != nil || propertyId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
			return
		}
		periodId := c.Query("period_id")
		if !utils.IsValidPeriodId(periodId) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period_id must be YYYY-MM"})
			return
		}
		scope := c.Query("document_scope")
		if scope == "" {
			scope = models.DocumentScopeAll
		}
		_, normalizedScope, err := models.ParseDocumentScope(scope)
		if err != nil {
			writeModelError(c, err)
			return
		}
		cacheKey := models.ComparisonCacheKey(propertyId, periodId, normalizedScope)
		var cached comparisonResponse
		if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}

		session, err := models.LatestCompletedSession(c.Request.Context(), propertyId, periodId, normalizedScope)
		if err != nil {
			writeModelError(c, err)
			return
		}
		matches, err := models.GetMatchResultsBySession(c.Request.Context(), session.ID)
		if err != nil {
			writeModelError(c, err)
			return
		}
		matched, unmatched := models.SplitMatches(matches)
		resp := comparisonResponse{Session: session, Matched: matched, Unmatched: unmatched}
		_ = config.SetRedisObject(cacheKey, resp, 5*time.Minute)
		c.JSON(http.StatusOK, resp)
	}
}

type comparisonResponse struct {
	Session   *models.ReconciliationSession `json:"session"`
	Matched   []models.MatchResult          `json:"matched"`
	Unmatched []models.MatchResult          `json:"unmatched"`
}

type resolveDifferenceRequest struct {
	Action models.ResolutionAction `json:"action" binding:"required"`
	Value  *decimal.Decimal        `json:"value"`
	Reason string                  `json:"reason"`
}

func resolveDifferenceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		matchResultId, err := strconv.Atoi(c.Param("id"))
		if err != nil || matchResultId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match result id"})
			return
		}
		var req resolveDifferenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		if err := models.ResolveDifference(c.Request.Context(), matchResultId, req.Action, req.Value, req.Reason); err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"match_result_id": matchResultId, "resolved": true})
	}
}

type bulkResolveRequest struct {
	MatchResultIds []int                   `json:"match_result_ids" binding:"required,min=1"`
	Action         models.ResolutionAction `json:"action" binding:"required"`
	Reason         string                  `json:"reason"`
}

func bulkResolveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		summary, err := models.BulkResolve(c.Request.Context(), req.MatchResultIds, req.Action, req.Reason)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type evaluateRulesRequest struct {
	PropertyId int    `json:"property_id" binding:"required,gt=0"`
	PeriodId   string `json:"period_id" binding:"required,period"`
}

// evaluateRulesHandler runs the rule catalog synchronously, outside a
// session, and replaces the stored results for the property/period.
func evaluateRulesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req evaluateRulesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
			return
		}
		ctx := c.Request.Context()
		results, err := models.EvaluateAllRules(ctx, req.PropertyId, req.PeriodId, nil)
		if err != nil {
			writeModelError(c, err)
			return
		}
		db := config.GetDB()
		if err := models.ReplaceRuleResults(db.WithContext(ctx), req.PropertyId, req.PeriodId, results); err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": len(results), "rules": results})
	}
}

func ruleResultsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := strconv.Atoi(c.Query("property_id"))
		if err != nil || propertyId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
			return
		}
		periodId := c.Query("period_id")
		if !utils.IsValidPeriodId(periodId) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period_id must be YYYY-MM"})
			return
		}
		results, err := models.GetRuleResults(c.Request.Context(), propertyId, periodId)
		if err != nil {
			writeModelError(c, err)
			return
		}
		// Rules active for the period means rules that produced rows, never
		// the catalog size.
		active, err := models.CountRuleResults(c.Request.Context(), propertyId, periodId)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rules_active": active, "results": results})
	}
}

func listAlertsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		severity := models.AlertSeverity(strings.ToUpper(strings.TrimSpace(c.Query("severity"))))
		switch severity {
		case "", models.AlertSeverityMedium, models.AlertSeverityHigh, models.AlertSeverityCritical:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
			return
		}
		alerts, err := models.ListAlerts(c.Request.Context(), severity)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

func acknowledgeAlertHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		alertId, err := strconv.Atoi(c.Param("id"))
		if err != nil || alertId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
			return
		}
		actorId, _ := utils.GetActorIdFromContext(c.Request.Context())
		if actorId == "" {
			actorId = "system"
		}
		if err := models.AcknowledgeAlert(c.Request.Context(), alertId, actorId); err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"alert_id": alertId, "status": models.AlertStatusAcknowledged})
	}
}

func exportComparisonHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyId, err := strconv.Atoi(c.Query("property_id"))
		if err != nil || propertyId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "property_id is required"})
			return
		}
		periodId := c.Query("period_id")
		if !utils.IsValidPeriodId(periodId) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "period_id must be YYYY-MM"})
			return
		}
		scope := c.Query("document_scope")
		if scope == "" {
			scope = models.DocumentScopeAll
		}
		_, normalizedScope, err := models.ParseDocumentScope(scope)
		if err != nil {
			writeModelError(c, err)
			return
		}

		// Build the workbook before touching the response: headers written
		// after the body never reach the client, and an export failure must
		// still produce a JSON error.
		var buf bytes.Buffer
		filename, err := reports.ExportComparisonExcel(c.Request.Context(), &buf, propertyId, periodId, normalizedScope)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	recon := api.Group("/reconciliation")
	recon.POST("/sessions", startSessionHandler())
	recon.GET("/sessions", listSessionsHandler())
	recon.GET("/sessions/:id", getSessionHandler())
	recon.POST("/sessions/:id/cancel", cancelSessionHandler())
	recon.GET("/comparison", comparisonHandler())
	recon.POST("/differences/:id/resolve", resolveDifferenceHandler())
	recon.POST("/differences/bulk-resolve", bulkResolveHandler())

	rules := api.Group("/rules")
	rules.POST("/evaluate", evaluateRulesHandler())
	rules.GET("/results", ruleResultsHandler())

	alerts := api.Group("/alerts")
	alerts.GET("", listAlertsHandler())
	alerts.POST("/:id/acknowledge", acknowledgeAlertHandler())

	api.GET("/reports/comparison/export", exportComparisonHandler())
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// "period" is used in binding tags on request structs.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			return utils.IsValidPeriodId(fl.Field().String())
		})
	}

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if actorId := c.GetHeader("x-actor-id"); actorId != "" {
			ctx = utils.SetActorIdInContext(ctx, actorId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("x-correlation-id", cid)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on dependency readiness. Redis is optional.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-correlation-id", "x-actor-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
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
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

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
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the metric sweeper so alerts track data loaded outside sessions.
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("METRIC_SWEEP_DISABLED")), "true") {
		go workflow.NewMetricSweeper(db, logger).Run(sweeperCtx)
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
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

	// Stop background workers first so they don't start new work while we're draining.
	cancelSweeper()

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
	// Get the IP address or user identifier from the request.
	key := c.ClientIP()

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
