package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"shop-svc/cache"
	"shop-svc/config"
	"shop-svc/database"
	"shop-svc/handlers"
	"shop-svc/kafka"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/orders"
	"shop-svc/payment"
	"shop-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("Invalid configuration values replaced by defaults", zap.Error(err))
	}

	// Initialize OpenTelemetry
	shutdownTracing, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing()

	// Initialize database
	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()
	st := store.New(db)

	// Initialize Redis
	rdb, err := cache.InitRedis(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer rdb.Close()
	productCache := cache.New(rdb, cfg.ProductCacheTTL, logger)

	// Initialize Kafka producer
	producer, err := kafka.InitProducer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka producer", zap.Error(err))
	}
	publisher := kafka.NewPublisher(producer, cfg.KafkaOrderTopic, logger)
	defer publisher.Close()

	orderService := orders.NewService(st, publisher, productCache, orders.StatusPolicy(cfg.OrderStatusPolicy), logger)
	stripe := payment.NewStripeNotifier(cfg, nil, logger)

	// Initialize Kafka consumer
	consumer, err := kafka.InitConsumer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		paymentConsumer := kafka.NewPaymentConsumer(consumer, cfg.KafkaPaymentTopic, orderService, logger)
		if err := paymentConsumer.Start(consumerCtx); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}()

	tokens := middleware.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// OpenTelemetry middleware must be first to extract trace context
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	authed := middleware.AuthMiddleware(tokens)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	authHandler := handlers.NewAuthHandler(st, tokens, logger)
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh", authHandler.Refresh)
		authRoutes.GET("/me", authed, authHandler.Me)
	}
	users := router.Group("/users", authed, adminOnly)
	{
		users.GET("", authHandler.ListUsers)
		users.GET("/:id", authHandler.GetUser)
	}

	categoryHandler := handlers.NewCategoryHandler(st, logger)
	categories := router.Group("/categories")
	{
		categories.GET("", categoryHandler.GetCategories)
		categories.GET("/:id", categoryHandler.GetCategory)
		categories.POST("", authed, adminOnly, categoryHandler.CreateCategory)
		categories.PUT("/:id", authed, adminOnly, categoryHandler.UpdateCategory)
		categories.DELETE("/:id", authed, adminOnly, categoryHandler.DeleteCategory)
	}

	productHandler := handlers.NewProductHandler(st, productCache, logger)
	reviewHandler := handlers.NewReviewHandler(st, logger)
	products := router.Group("/products")
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
		products.GET("/:id/reviews", reviewHandler.GetProductReviews)
		products.POST("", authed, adminOnly, productHandler.CreateProduct)
		products.PUT("/:id", authed, adminOnly, productHandler.UpdateProduct)
		products.DELETE("/:id", authed, adminOnly, productHandler.DeleteProduct)
	}

	reviews := router.Group("/reviews")
	{
		reviews.GET("", reviewHandler.GetReviews)
		reviews.GET("/:id", reviewHandler.GetReview)
		reviews.POST("", authed, reviewHandler.CreateReview)
		reviews.PUT("/:id", authed, reviewHandler.UpdateReview)
		reviews.DELETE("/:id", authed, reviewHandler.DeleteReview)
	}

	orderHandler := handlers.NewOrderHandler(orderService, stripe, logger)
	orderRoutes := router.Group("/orders", authed)
	{
		orderRoutes.POST("", orderHandler.CreateOrder)
		orderRoutes.GET("", orderHandler.GetOrders)
		orderRoutes.GET("/:id", orderHandler.GetOrder)
		orderRoutes.PATCH("/:id/cancel", orderHandler.CancelOrder)
		orderRoutes.PATCH("/:id/seller-cancel", adminOnly, orderHandler.SellerCancelOrder)
		orderRoutes.POST("/stripe", orderHandler.CreateStripeOrder)
	}

	paymentHandler := handlers.NewPaymentHandler(orderService, stripe, stripe, productCache, cfg.FrontendURL, logger)
	router.POST("/payments/checkout", authed, paymentHandler.Checkout)
	router.POST("/payments/webhook", paymentHandler.Webhook)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	logger.Info("Shop service started", zap.String("addr", cfg.HTTPAddr))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	stopConsumer()
	consumerWG.Wait()

	logger.Info("Server exited")
}
