package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/config"
	"taskflow/backend/internal/database"
	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.Seed(db, cfg.Auth.BCryptCost); err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}

	multiCache := setupCache(cfg)
	defer multiCache.Close()

	router := setupRouter(cfg, db, multiCache)

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("listening on %s (env=%s, db=%s)", srv.Addr, cfg.Server.Environment, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}

// setupCache wires L1 memory always and L2 redis only when configured and
// reachable. A down redis is not fatal; the app degrades to memory-only.
func setupCache(cfg *config.Config) *cache.MultiLevelCache {
	if !cfg.Redis.Enabled {
		log.Println("redis disabled, using in-memory cache only")
		return cache.NewMultiLevelCache(nil)
	}

	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Health(); err != nil {
		log.Printf("redis unreachable (%v), using in-memory cache only", err)
		redisCache.Close()
		return cache.NewMultiLevelCache(nil)
	}
	log.Printf("redis connected at %s", cfg.GetRedisAddr())
	return cache.NewMultiLevelCache(redisCache)
}

func setupRouter(cfg *config.Config, db *gorm.DB, multiCache *cache.MultiLevelCache) *gin.Engine {
	authService := services.NewAuthService(cfg.Auth)
	userService := services.NewUserService()
	taskService := services.NewCachedTaskService(services.NewTaskService(), multiCache)
	generator := services.NewOpenAIService(cfg.OpenAI)
	notifier := services.NewTelegramService(cfg.Telegram)

	authHandler := handlers.NewAuthHandler(db, authService, userService)
	userHandler := handlers.NewUserHandler(db, userService, cfg.Auth.BCryptCost)
	taskHandler := handlers.NewTaskHandler(db, taskService, notifier)
	chatHandler := handlers.NewChatHandler(db, generator, notifier)
	telegramHandler := handlers.NewTelegramHandler(notifier)

	monitoring.RegisterHealthCheck("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	monitoring.RegisterHealthCheck("cache", func(ctx context.Context) error {
		return multiCache.Health()
	})

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.Recovery())
	router.Use(monitoring.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(getCORSOrigins(), ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit)
		router.Use(limiter.Middleware())
	}

	api := router.Group("/api")
	{
		api.GET("/health", monitoring.HealthHandler)
		api.GET("/metrics", monitoring.MetricsHandler)

		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)

			authed := auth.Group("", middleware.RequireAuth(authService))
			{
				authed.POST("/logout", authHandler.Logout)
				authed.GET("/me", authHandler.Me)
				authed.POST("/change-password", authHandler.ChangePassword)
			}
		}

		users := api.Group("/users", middleware.RequireAuth(authService), middleware.RequireRole(models.RoleAdmin))
		{
			users.POST("", userHandler.Register)
			users.GET("", userHandler.ListUsers)
			users.GET("/:id", userHandler.GetUser)
			users.PATCH("/:id/active", userHandler.SetActive)
		}

		tasks := api.Group("/tasks", middleware.RequireAuth(authService))
		{
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/stats", taskHandler.Stats)
			tasks.GET("/kanban", taskHandler.Kanban)
			tasks.PUT("/bulk-update", taskHandler.BulkUpdate)
			tasks.GET("/:id", taskHandler.GetTask)
			tasks.PUT("/:id", taskHandler.UpdateTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
		}

		chat := api.Group("/chat", middleware.RequireAuth(authService))
		{
			chat.GET("/status", chatHandler.Status)
			chat.POST("/generate-tasks", middleware.RequireRole(models.RoleAdmin), chatHandler.GenerateTasks)
		}

		telegram := api.Group("/telegram", middleware.RequireAuth(authService), middleware.RequireRole(models.RoleAdmin))
		{
			telegram.POST("/send-notification", telegramHandler.SendNotification)
			telegram.POST("/test", telegramHandler.Test)
			telegram.GET("/status", telegramHandler.Status)
		}
	}

	registerStatic(router, cfg.Server.StaticDir)

	return router
}

func getCORSOrigins() string {
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:3000"
}

// registerStatic serves the SPA with an index fallback for client-side routes.
func registerStatic(router *gin.Engine, dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		log.Printf("static dir %s not found, skipping", dir)
		return
	}

	router.Static("/static", dir)
	index := filepath.Join(dir, "index.html")
	router.GET("/", func(c *gin.Context) {
		c.File(index)
	})
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "endpoint not found"})
			return
		}
		c.File(index)
	})
}
