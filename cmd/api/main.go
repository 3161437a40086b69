// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sokoni-collective/sokoni/internal/api"
	"github.com/sokoni-collective/sokoni/internal/auth"
	"github.com/sokoni-collective/sokoni/internal/cart"
	"github.com/sokoni-collective/sokoni/internal/catalog"
	"github.com/sokoni-collective/sokoni/internal/config"
	"github.com/sokoni-collective/sokoni/internal/db"
	"github.com/sokoni-collective/sokoni/internal/health"
	"github.com/sokoni-collective/sokoni/internal/jobs"
	"github.com/sokoni-collective/sokoni/internal/middleware"
	"github.com/sokoni-collective/sokoni/internal/order"
	"github.com/sokoni-collective/sokoni/internal/payment"
	"github.com/sokoni-collective/sokoni/internal/subscription"
	"github.com/sokoni-collective/sokoni/internal/tracing"
)

const cleanupInterval = time.Hour

func main() {
	help := flag.Bool("help", false, "display help message")
	configFile := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Sokoni API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx := context.Background()

	// Tracing
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "sokoni-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Stores: Postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		paymentRepo  payment.Repository
		webhookRepo  payment.WebhookRepository
		productRepo  catalog.ProductRepository
		cartRepo     cart.Repository
		orderRepo    order.Repository
		subRepo      subscription.Repository
		dbChecker    api.HealthChecker
		redisChecker api.HealthChecker
	)

	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		paymentRepo = payment.NewPostgresRepository(pool)
		webhookRepo = payment.NewPostgresWebhookRepository(pool)
		productRepo = catalog.NewPostgresProductRepository(pool)
		cartRepo = cart.NewPostgresRepository(pool)
		orderRepo = order.NewPostgresRepository(pool)
		subRepo = subscription.NewPostgresRepository(pool)
		dbChecker = health.NewDBChecker(pool)
		logger.Info("using postgres stores")
	} else {
		paymentRepo = payment.NewInMemoryRepository()
		webhookRepo = payment.NewInMemoryWebhookRepository()
		productRepo = catalog.NewInMemoryProductRepository()
		cartRepo = cart.NewInMemoryRepository()
		orderRepo = order.NewInMemoryRepository()
		subRepo = subscription.NewInMemoryRepository()
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	// Metrics
	registry := prometheus.NewRegistry()

	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		logger.Error("failed to register middleware metrics", "error", err)
		os.Exit(1)
	}
	paymentMetrics := payment.NewMetrics()
	if err := paymentMetrics.Register(registry); err != nil {
		logger.Error("failed to register payment metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Rate limiting: shared Redis store when available.
	var rateLimitStore middleware.RateLimitStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient, mwMetrics)
		redisChecker = health.NewRedisChecker(redisClient)
		logger.Info("using redis rate limit store")
	} else {
		store := middleware.NewInMemoryRateLimitStore()
		rateLimitStore = store
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				store.Cleanup()
			}
		}()
	}

	// Core services
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)
	stripeClient := payment.NewStripeClient(cfg.StripeAPIKey)

	paymentService := payment.NewService(paymentRepo, productRepo, cartRepo, orderRepo, subRepo, paymentMetrics)
	paymentService.SetTxRefPrefix(cfg.TxRefPrefix)

	// Handlers
	paymentHandlers := api.NewPaymentHandlers(paymentService, stripeClient, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	webhookHandlers := api.NewWebhookHandlers(cfg.StripeWebhookSecret, paymentService, webhookRepo, paymentMetrics)
	cartHandlers := api.NewCartHandlers(cartRepo, productRepo)
	orderHandlers := api.NewOrderHandlers(orderRepo)
	productHandlers := api.NewProductHandlers(productRepo)
	subscriptionHandlers := api.NewSubscriptionHandlers(subRepo)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    dbChecker,
		RedisChecker: redisChecker,
	})

	authRequired := middleware.Auth(jwtService)
	userKey := middleware.UserKeyFunc()
	ipKey := middleware.IPKeyFunc()
	checkoutLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultCheckoutLimit(), userKey)
	webhookLimit := middleware.RateLimiter(rateLimitStore, middleware.DefaultWebhookLimit(), ipKey)

	mux := http.NewServeMux()

	// Payments
	mux.Handle("POST /payments/checkout", authRequired(checkoutLimit(http.HandlerFunc(paymentHandlers.Checkout))))
	mux.Handle("GET /payments/{tx_ref}", authRequired(http.HandlerFunc(paymentHandlers.Get)))
	mux.Handle("POST /payments/{tx_ref}/verify", authRequired(http.HandlerFunc(paymentHandlers.Verify)))
	mux.Handle("POST /payments/{id}/refund", authRequired(http.HandlerFunc(paymentHandlers.Refund)))

	// Gateway webhooks (authenticated by signature, not bearer token)
	mux.Handle("POST /internal/stripe", webhookLimit(http.HandlerFunc(webhookHandlers.HandleStripeWebhook)))

	// Cart
	mux.Handle("GET /cart", authRequired(http.HandlerFunc(cartHandlers.Get)))
	mux.Handle("DELETE /cart", authRequired(http.HandlerFunc(cartHandlers.Clear)))
	mux.Handle("POST /cart/items", authRequired(http.HandlerFunc(cartHandlers.AddItem)))
	mux.Handle("DELETE /cart/items/{product_id}", authRequired(http.HandlerFunc(cartHandlers.RemoveItem)))

	// Orders
	mux.Handle("GET /orders", authRequired(http.HandlerFunc(orderHandlers.List)))
	mux.Handle("GET /orders/{id}", authRequired(http.HandlerFunc(orderHandlers.Get)))
	mux.Handle("PATCH /orders/{id}/status", authRequired(http.HandlerFunc(orderHandlers.UpdateStatus)))

	// Catalog
	mux.Handle("POST /products", authRequired(http.HandlerFunc(productHandlers.Create)))
	mux.Handle("GET /products", authRequired(http.HandlerFunc(productHandlers.List)))
	mux.HandleFunc("GET /products/{id}", productHandlers.Get)
	mux.Handle("PATCH /products/{id}", authRequired(http.HandlerFunc(productHandlers.Update)))

	// Subscriptions
	mux.Handle("GET /subscriptions/me", authRequired(http.HandlerFunc(subscriptionHandlers.Get)))

	// Probes and metrics
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"sokoni-api","version":"0.1.0"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	// Apply middleware: RequestID -> Tracing -> HTTPMetrics -> CORS ->
	// global rate limit -> Logging
	var handler http.Handler = mux
	handler = middleware.Logging(logger)(handler)
	handler = middleware.RateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), ipKey)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.HTTPMetrics(mwMetrics)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing("sokoni-api")(handler)
	}
	handler = middleware.RequestID(handler)

	// Background maintenance: webhook event GC and optional pending
	// intent expiry.
	stopCleanup := make(chan struct{})
	go payment.RunPeriodicCleanup(
		webhookRepo,
		paymentRepo,
		cleanupInterval,
		time.Duration(cfg.WebhookRetentionDays)*24*time.Hour,
		time.Duration(cfg.PendingIntentExpiryHours)*time.Hour,
		jobMetrics,
		stopCleanup,
	)

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	close(stopCleanup)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer provider", "error", err)
	}

	logger.Info("server stopped")
}
