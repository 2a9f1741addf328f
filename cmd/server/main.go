package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	catalogapp "github.com/retail/backend/internal/application/catalog"
	inventoryapp "github.com/retail/backend/internal/application/inventory"
	purchasingapp "github.com/retail/backend/internal/application/purchasing"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/retail/backend/internal/infrastructure/auth"
	"github.com/retail/backend/internal/infrastructure/cache"
	"github.com/retail/backend/internal/infrastructure/config"
	"github.com/retail/backend/internal/infrastructure/logger"
	"github.com/retail/backend/internal/infrastructure/persistence"
	"github.com/retail/backend/internal/interfaces/http/handler"
	"github.com/retail/backend/internal/interfaces/http/middleware"
	"github.com/retail/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting retail backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database connection with zap-backed GORM logging
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	purchaseRepo := persistence.NewGormPurchaseRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	supplierRepo := persistence.NewGormSupplierRepository(db.DB)
	movementRepo := persistence.NewGormStockMovementRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB).WithTimeout(cfg.Purchasing.TxTimeout)

	// Idempotency store (Redis with in-memory fallback)
	idempotencyStore := cache.NewIdempotencyStore(cfg.Redis, log)

	// Application services
	purchaseService := purchasingapp.NewPurchaseService(
		txScope,
		purchaseRepo,
		productRepo,
		supplierRepo,
		idempotencyStore,
		log,
	)
	purchaseService.SetRetryAttempts(cfg.Purchasing.RetryAttempts)
	purchaseService.SetIdempotencyConfig(shared.IdempotencyConfig{
		Enabled: cfg.Purchasing.IdempotencyEnabled,
		TTL:     cfg.Purchasing.IdempotencyTTL,
	})
	productService := catalogapp.NewProductService(productRepo)
	movementService := inventoryapp.NewMovementService(movementRepo, productRepo)

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT)

	// HTTP handlers
	purchaseHandler := handler.NewPurchaseHandler(purchaseService)
	productHandler := handler.NewProductHandler(productService, movementService)

	// Gin engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.CORS())

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// API routes behind JWT auth
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/ping",
		},
		Logger: log,
	}))

	purchasingRoutes := router.NewDomainGroup("purchasing", "/purchasing")
	purchasingRoutes.POST("/purchases", purchaseHandler.Create)
	purchasingRoutes.GET("/purchases", purchaseHandler.List)
	purchasingRoutes.GET("/purchases/number/:number", purchaseHandler.GetByNumber)
	purchasingRoutes.GET("/purchases/:id", purchaseHandler.GetByID)
	purchasingRoutes.PUT("/purchases/:id", purchaseHandler.Update)
	purchasingRoutes.DELETE("/purchases/:id", purchaseHandler.Delete)
	purchasingRoutes.POST("/purchases/:id/status", purchaseHandler.ChangeStatus)
	purchasingRoutes.POST("/purchases/:id/complete", purchaseHandler.Complete)
	purchasingRoutes.POST("/purchases/:id/reconcile-costs", purchaseHandler.ReconcileProductCosts)

	catalogRoutes := router.NewDomainGroup("catalog", "/catalog")
	catalogRoutes.GET("/products", productHandler.List)
	catalogRoutes.GET("/products/sku/:sku", productHandler.GetBySKU)
	catalogRoutes.GET("/products/:id", productHandler.GetByID)
	catalogRoutes.GET("/products/:id/movements", productHandler.ListMovements)

	r.Register(purchasingRoutes).Register(catalogRoutes)
	r.Setup()

	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// HTTP server
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
