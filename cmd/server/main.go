package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducminhle/gridnote/internal/config"
	"github.com/ducminhle/gridnote/internal/handler"
	"github.com/ducminhle/gridnote/internal/middleware"
	"github.com/ducminhle/gridnote/internal/model"
	"github.com/ducminhle/gridnote/internal/repository"
	"github.com/ducminhle/gridnote/internal/service"
	"github.com/ducminhle/gridnote/migrations"
	"github.com/ducminhle/gridnote/pkg/auth"
	"github.com/ducminhle/gridnote/pkg/mailer"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           GridNote Device Link API
// @version         1.0
// @description     Device pairing and token lifecycle API for the GridNote Clipper extension.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting GridNote Device Link API [env=%s]", cfg.App.Env)

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		// Fallback to AutoMigrate if migration files fail
		if err := db.AutoMigrate(
			&model.User{},
			&model.DeviceToken{},
		); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// ==================== Email (SMTP / Mailpit) ====================
	mailClient := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	})
	log.Printf("📧 SMTP configured: %s:%s", cfg.SMTP.Host, cfg.SMTP.Port)

	// ==================== Initialize Layers ====================
	// Session JWT Manager (verifies cookies set by the web app)
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	regRepo := repository.NewRegistrationRepository(rdb)

	// Services
	tokenService := service.NewTokenService(tokenRepo, userRepo, cfg.Pairing.TokenTTL)
	pairingService := service.NewPairingService(regRepo, tokenService, mailClient, cfg.Pairing.CodeTTL, cfg.Pairing.CodeLength)

	// Handlers
	deviceHandler := handler.NewDeviceHandler(pairingService, tokenService)

	// ==================== Expiry Sweep ====================
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go runExpirySweep(sweepCtx, tokenService)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Swagger configuration
	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")

	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "gridnote-devicelink",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	{
		// Pairing routes (public: the device has no credentials yet)
		devices := api.Group("/devices")
		{
			devices.POST("/register", deviceHandler.Register)
			devices.POST("/exchange", deviceHandler.Exchange)
			devices.POST("/refresh", deviceHandler.Refresh)
		}

		// Protected routes (device token or browser session)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(tokenService, jwtManager))
		{
			protected.GET("/auth/profile", deviceHandler.Profile)

			// Device management
			protected.GET("/devices", deviceHandler.ListDevices)
			protected.PATCH("/devices/:id", deviceHandler.RenameDevice)
			protected.DELETE("/devices/:id", deviceHandler.RevokeDevice)

			// Pairing surface: only a browser session may consume a code
			protected.POST("/devices/link", middleware.RequireSession(), deviceHandler.Link)
		}
	}

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 GridNote Device Link API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	sweepCancel()
	log.Println("✅ Server exited gracefully")
}

// runExpirySweep periodically deletes token records past their expiry.
// Pending registrations age out on their own Redis TTL.
func runExpirySweep(ctx context.Context, tokens *service.TokenService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tokens.CleanupExpired(); err != nil {
				log.Printf("⚠️  Token expiry sweep failed: %v", err)
			}
		}
	}
}
