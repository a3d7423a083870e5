package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contentdesk/contentdesk/config"
	"github.com/contentdesk/contentdesk/pkg/api/handlers"
	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/auth"
	"github.com/contentdesk/contentdesk/pkg/billing"
	"github.com/contentdesk/contentdesk/pkg/cache"
	"github.com/contentdesk/contentdesk/pkg/content"
	"github.com/contentdesk/contentdesk/pkg/email"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/fulfillment"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/metrics"
	custommiddleware "github.com/contentdesk/contentdesk/pkg/middleware"
	"github.com/contentdesk/contentdesk/pkg/storage"
	"github.com/contentdesk/contentdesk/pkg/store"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize Redis cache
	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Initialize the record store. Without credentials the API runs against
	// an in-memory store, which is only useful for local development.
	var (
		userStore    store.UserStore
		contentStore store.ContentStore
		resumeStore  store.ResumeStore
	)
	if cfg.RecordStoreToken != "" {
		client := store.NewClient(cfg.RecordStoreBaseURL, cfg.RecordStoreToken, cfg.RecordStoreBase)
		client.SetObserver(prometheusMetrics.RecordStoreRequest)
		userStore = store.NewUserStore(client, cfg.UsersTable)
		contentStore = store.NewContentStore(client, cfg.ContentTable)
		resumeStore = store.NewResumeStore(client, cfg.ResumeTable)
		log.Printf("✅ Record store connected (base: %s)", cfg.RecordStoreBase)
	} else {
		mem := store.NewMemory()
		userStore = mem.Users()
		contentStore = mem.Content()
		resumeStore = mem.Resumes()
		log.Printf("⚠️  No record store credentials, using in-memory store (data is not persisted)")
	}

	// Initialize resume file storage
	var fileStore storage.Store
	var localFiles *storage.LocalStore
	if cfg.StorageType == "s3" {
		fileStore, err = storage.NewS3Store(context.Background(), cfg.AWSAccessKeyID, cfg.AWSSecretKey, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			log.Fatalf("❌ Failed to initialize S3 storage: %v", err)
		}
		log.Printf("✅ S3 storage initialized (bucket: %s)", cfg.S3Bucket)
	} else {
		baseURL := fmt.Sprintf("http://%s:%s/files", cfg.APIHost, cfg.APIPort)
		localFiles, err = storage.NewLocalStore(cfg.StorageLocalPath, baseURL)
		if err != nil {
			log.Fatalf("❌ Failed to initialize local storage: %v", err)
		}
		fileStore = localFiles
		log.Printf("✅ Local storage initialized (dir: %s)", cfg.StorageLocalPath)
	}

	// Initialize email service
	emailService := email.NewService(
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.FrontendURL,
		cfg.SendGridAPIKey,
	)

	// Initialize services
	tokenBlacklist := auth.NewTokenBlacklist(redisClient)
	entitlementService := entitlement.NewService(userStore, redisClient, appLogger)
	dispatcher := fulfillment.NewDispatcher(cfg.FulfillmentWebhookURL, cfg.FulfillmentSecret, prometheusMetrics, appLogger)
	contentService := content.NewService(contentStore, entitlementService, dispatcher, appLogger)
	resumeService := content.NewResumeService(resumeStore, fileStore, entitlementService, dispatcher, appLogger)
	stripeGateway := billing.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	billingService := billing.NewService(userStore, entitlementService, redisClient, stripeGateway, emailService, cfg.FrontendURL, appLogger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userStore, entitlementService, cfg, tokenBlacklist, emailService, prometheusMetrics)
	userHandler := handlers.NewUserHandler(userStore, entitlementService)
	contentHandler := handlers.NewContentHandler(contentService, prometheusMetrics)
	resumeHandler := handlers.NewResumeHandler(resumeService)
	billingHandler := handlers.NewBillingHandler(billingService, prometheusMetrics)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Initialize rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	tierRateLimiter := custommiddleware.NewTierRateLimiter()       // Per-user limits for authenticated traffic
	authRateLimiter := custommiddleware.NewRateLimiter(5, 2)       // Login attempts
	registerRateLimiter := custommiddleware.NewRateLimiter(3, 1)   // Account creation
	webhookRateLimiter := custommiddleware.NewRateLimiter(100, 20) // Stripe webhooks

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[%s] %s - Status: %d", c.Request().Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	// Prometheus metrics middleware
	e.Use(prometheusMetrics.Middleware())

	// CORS restricted to the dashboard origin
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{
			"http://localhost:3000", // Development dashboard
			cfg.FrontendURL,         // Production dashboard
		},
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}))

	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())

	// Global rate limiting
	e.Use(globalRateLimiter.RateLimitMiddleware())

	// Health check endpoints (public)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"name":        "ContentDesk API",
			"version":     "0.1.0",
			"status":      "running",
			"environment": cfg.APIEnvironment,
			"timestamp":   time.Now().Unix(),
		})
	})

	e.GET("/health", func(c echo.Context) error {
		if _, err := redisClient.Redis.Ping(c.Request().Context()).Result(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status": "healthy",
			"cache":  "up",
		})
	})

	// Prometheus metrics endpoint (public)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Locally stored resume files
	if localFiles != nil {
		e.Static("/files", localFiles.Dir())
	}

	api := e.Group("/api")

	// Ping endpoint (public)
	api.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"message": "pong",
		})
	})

	// Public auth routes
	api.POST("/auth/register", authHandler.Register, registerRateLimiter.RateLimitMiddleware())
	api.POST("/auth/login", authHandler.Login, authRateLimiter.RateLimitMiddleware())

	// Public billing routes
	api.GET("/billing/pricing", billingHandler.GetPricing)
	api.POST("/webhooks/stripe", billingHandler.StripeWebhook, webhookRateLimiter.RateLimitMiddleware())

	// Authenticated routes
	authed := api.Group("", custommw.JWTMiddleware(cfg.JWTSecret, tokenBlacklist), tierRateLimiter.Middleware())
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.POST("/auth/logout", authHandler.Logout)

		authed.GET("/users/me", userHandler.GetProfile)
		authed.PUT("/users/me", userHandler.UpdateProfile)
		authed.GET("/users/me/usage", userHandler.GetUsage)

		contentGroup := authed.Group("/content")
		{
			contentGroup.POST("", contentHandler.Create)
			contentGroup.GET("", contentHandler.List)
			contentGroup.GET("/export", contentHandler.Export)
			contentGroup.GET("/:id", contentHandler.Get)
			contentGroup.PUT("/:id", contentHandler.Update)
			contentGroup.POST("/:id/cancel", contentHandler.Cancel)
			contentGroup.POST("/:id/resubmit", contentHandler.Resubmit)
		}

		resumeGroup := authed.Group("/resumes")
		{
			resumeGroup.POST("", resumeHandler.Upload)
			resumeGroup.GET("", resumeHandler.List)
			resumeGroup.POST("/enhance", resumeHandler.Enhance)
		}

		billingGroup := authed.Group("/billing")
		{
			billingGroup.POST("/checkout-subscription", billingHandler.CheckoutSubscription)
			billingGroup.POST("/checkout-tokens", billingHandler.CheckoutTokens)
			billingGroup.POST("/confirm", billingHandler.ConfirmCheckout)
		}
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 ContentDesk API starting on %s", address)
	log.Printf("📝 Log level: %s, Log format: %s", cfg.LogLevel, cfg.LogFormat)
	log.Printf("🔐 JWT expiration: %d hours", cfg.JWTExpirationHours)
	log.Printf("🌍 CORS: http://localhost:3000, %s", cfg.FrontendURL)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	log.Printf("🔒 Auth endpoints: login (5/min), register (3/min), webhook (100/min)")
	log.Printf("📬 Fulfillment webhook: %s", cfg.FulfillmentWebhookURL)

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}
