package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"imagegateway/internal/config"
	"imagegateway/internal/database"
	"imagegateway/internal/downloadcache"
	"imagegateway/internal/executor"
	controlh "imagegateway/internal/handlers/control"
	generationh "imagegateway/internal/handlers/generation"
	"imagegateway/internal/kv"
	"imagegateway/internal/metrics"
	"imagegateway/internal/middleware"
	"imagegateway/internal/objectstore"
	"imagegateway/internal/store"
	"imagegateway/internal/vertex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	migrator, err := database.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	if err := migrator.Run(); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	migrator.Close()

	relStore, err := store.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to relational store", "error", err)
		os.Exit(1)
	}
	defer relStore.Close()

	taskStore, err := kv.New(cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to kv store", "error", err)
		os.Exit(1)
	}
	defer taskStore.Close()

	objStore := objectstore.New(cfg.B2KeyID, cfg.B2AppKey, cfg.B2BucketName)

	var sa *vertex.ServiceAccount
	if cfg.GCPServiceAccountJSON != "" {
		sa, err = vertex.ParseServiceAccountJSON(cfg.GCPServiceAccountJSON)
		if err != nil {
			logger.Error("failed to parse GCP service account json", "error", err)
			os.Exit(1)
		}
	} else {
		sa = &vertex.ServiceAccount{
			ClientEmail: cfg.GCPSAClientEmail,
			PrivateKey:  cfg.GCPSAPrivateKey,
			TokenURI:    cfg.GCPTokenURI,
		}
	}
	vertexClient := vertex.New(sa, cfg.VertexProjectIDs, cfg.VertexLocation, cfg.VertexModel, cfg.VertexEndpointMode)

	exec := executor.New(
		taskStore, objStore, vertexClient,
		cfg.KeyPrefix, cfg.ImgReturnBase, cfg.MaxImagesPerResponse,
		cfg.AllowRefImageHosts, cfg.AllowRefImageHTTP, cfg.MaxRefImageBytes,
		logger,
	)

	proxy := downloadcache.New(objStore)

	authHandler := controlh.NewAuthHandler(relStore, cfg.JWTSecret, cfg.TokenTTLSeconds)
	usersHandler := controlh.NewUsersHandler(relStore)
	quotaHandler := controlh.NewQuotaHandler(relStore)
	redeemHandler := controlh.NewRedeemHandler(relStore)
	codesHandler := controlh.NewCodesHandler(relStore)
	historyHandler := controlh.NewHistoryHandler(relStore)
	uploadHandler := controlh.NewUploadHandler(objStore, cfg.ImgReturnBase)
	genHandler := generationh.New(taskStore, objStore, vertexClient, exec, relStore)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogMiddleware(logger))
	if cfg.MetricsEnabled {
		router.Use(metrics.GinMiddleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		ExposeHeaders:   []string{"Content-Range", "Content-Length", "Accept-Ranges"},
	}))

	if cfg.MetricsEnabled {
		router.GET("/metrics", metrics.Handler())
	}
	router.GET("/__health", genHandler.Health)

	api := router.Group("/api")
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.Auth(cfg.JWTSecret))
	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/quota", quotaHandler.Read)
	authed.PUT("/quota/consume", quotaHandler.Consume)
	authed.POST("/redeem", redeemHandler.Redeem)
	authed.GET("/history", historyHandler.List)
	authed.POST("/history", historyHandler.Create)
	authed.DELETE("/history/:id", historyHandler.Delete)
	authed.POST("/upload/image", uploadHandler.UploadImage)

	admin := authed.Group("")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/users", usersHandler.List)
	admin.POST("/users", usersHandler.Create)
	admin.PUT("/users/:id", usersHandler.Update)
	admin.DELETE("/users/:id", usersHandler.Delete)
	admin.GET("/codes", codesHandler.List)
	admin.POST("/codes", codesHandler.Generate)

	genRoutes := router.Group("")
	genRoutes.Use(middleware.Auth(cfg.JWTSecret))
	genRoutes.POST("/generate", genHandler.Generate)
	router.GET("/task/:id", genHandler.GetTask)
	router.GET("/__b2check", genHandler.B2Check)
	router.GET("/__vertexcheck", genHandler.VertexCheck)

	router.Any("/i/*key", func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		proxy.Serve(c.Writer, c.Request, key)
	})

	port := cfg.Port
	logger.Info("server starting", "port", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func ginLogMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
