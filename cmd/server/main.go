package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/noteduco342/unichat-backend/internal/cache"
	"github.com/noteduco342/unichat-backend/internal/config"
	"github.com/noteduco342/unichat-backend/internal/directory"
	"github.com/noteduco342/unichat-backend/internal/handlers"
	"github.com/noteduco342/unichat-backend/internal/httpx"
	"github.com/noteduco342/unichat-backend/internal/logging"
	"github.com/noteduco342/unichat-backend/internal/middleware"
	"github.com/noteduco342/unichat-backend/internal/realtime"
	"github.com/noteduco342/unichat-backend/internal/repository"
	"github.com/noteduco342/unichat-backend/internal/service"
	"github.com/noteduco342/unichat-backend/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	logging.Setup()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	writePolicy, err := directory.ParseWritePolicy(cfg.WritePolicy)
	if err != nil {
		slog.Error("invalid WRITE_POLICY", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Redis is best-effort: without it windows are not cached and changes
	// only reach sessions of this process.
	var redisCache *cache.RedisCache
	var broker realtime.Broker
	if rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); rc.Ping() != nil {
		slog.Warn("redis unavailable, running without cache and with the in-process broker", "addr", cfg.RedisAddr)
		_ = rc.Close()
		broker = realtime.NewLocalBroker()
	} else {
		slog.Info("redis connected", "addr", cfg.RedisAddr)
		redisCache = rc
		rb := realtime.NewRedisBroker(rc, realtime.DefaultChannel)
		go func() {
			if err := rb.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("change feed stopped", "error", err)
			}
		}()
		broker = rb
	}

	messageCache := cache.NewMessageCache(redisCache)
	directoryCache := cache.NewDirectoryCache(redisCache)
	catalogue := directory.Default()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	readCursorRepo := repository.NewReadCursorRepository(db)

	// Object storage is best-effort; attachment endpoints answer 503 without it
	var objectStore storage.ObjectStore
	if missing := cfg.ObjectStore.Missing(); len(missing) > 0 {
		slog.Warn("S3 storage not configured, attachments disabled", "missing", strings.Join(missing, ","))
	} else if st, err := storage.NewS3Storage(storage.S3Options(cfg.ObjectStore)); err != nil {
		slog.Warn("failed to initialize S3 storage", "error", err)
	} else if err := st.EnsureBucket(ctx); err != nil {
		slog.Warn("S3 bucket unavailable", "bucket", st.Bucket(), "error", err)
	} else {
		objectStore = st
		slog.Info("S3 storage initialized", "bucket", st.Bucket())
	}

	// Initialize services
	attachmentService := service.NewAttachmentService(objectStore, storage.Policy{MaxBytes: cfg.MaxUploadBytes}, catalogue, cfg.AccessURLTTL)
	messageService := service.NewMessageService(messageRepo, broker, catalogue).
		WithWindowCache(messageCache).
		WithWritePolicy(writePolicy).
		WithMaxTextLength(cfg.MaxTextLength).
		WithAttachments(attachmentService)
	readCursorService := service.NewReadCursorService(readCursorRepo, broker)
	userService := service.NewUserService(userRepo, directoryCache)
	groupService := service.NewGroupService(groupRepo, userRepo, catalogue, directoryCache)

	if err := groupService.SeedGroups(ctx); err != nil {
		slog.Error("failed to seed groups", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(messageService, attachmentService, userService, readCursorService, cfg.PageSize, cfg.UnreadWindow)
	defer wsHandler.GetHub().Close()
	groupHandler := handlers.NewGroupHandler(groupService)
	messageHandler := handlers.NewMessageHandler(messageService, cfg.PageSize)
	unreadHandler := handlers.NewUnreadHandler(readCursorService, messageService, cfg.UnreadWindow)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentService, wsHandler.GetHub())
	userHandler := handlers.NewUserHandler(userService)

	app := fiber.New(fiber.Config{
		AppName: "UniChat Backend",
		// Attachments up to the upload limit plus multipart overhead.
		BodyLimit:    int(cfg.MaxUploadBytes) + 1024*1024,
		ErrorHandler: httpx.ErrorHandler,
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"sessions": wsHandler.GetHub().Count(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api", middleware.OriginAllowed(cfg.AllowedOrigins), middleware.AuthRequired(cfg.JWTSecret))
	api.Get("/me", userHandler.GetCurrentUser)
	api.Get("/users/:id", userHandler.GetUser)
	api.Get("/groups", groupHandler.GetDirectory)
	api.Get("/groups/:id/messages", messageHandler.GetOlderPage)
	api.Post("/groups/:id/messages", messageHandler.SendMessage)
	api.Delete("/groups/:id/messages/:messageId", messageHandler.DeleteMessage)
	api.Post("/groups/:id/read", unreadHandler.MarkGroupRead)
	api.Get("/unread", unreadHandler.GetUnread)
	api.Post(
		"/groups/:id/attachments",
		limiter.New(limiter.Config{
			Max:        20,
			Expiration: 10 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				if identity, err := httpx.LocalIdentity(c); err == nil {
					return "upload:" + identity.UserID
				}
				return c.IP()
			},
		}),
		attachmentHandler.Upload,
	)
	api.Get("/attachments/url", attachmentHandler.RefreshURL)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(cfg.JWTSecret),
		func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		},
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("server starting", "port", cfg.Port, "write_policy", cfg.WritePolicy)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
