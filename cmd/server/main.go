package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/admin"
	"github.com/sudo-init-do/skillswap/internal/alerts"
	"github.com/sudo-init-do/skillswap/internal/auth"
	"github.com/sudo-init-do/skillswap/internal/cache"
	"github.com/sudo-init-do/skillswap/internal/config"
	"github.com/sudo-init-do/skillswap/internal/db"
	"github.com/sudo-init-do/skillswap/internal/evaluation"
	"github.com/sudo-init-do/skillswap/internal/filestore"
	"github.com/sudo-init-do/skillswap/internal/logger"
	"github.com/sudo-init-do/skillswap/internal/marketplace"
	"github.com/sudo-init-do/skillswap/internal/messaging"
	"github.com/sudo-init-do/skillswap/internal/metrics"
	mware "github.com/sudo-init-do/skillswap/internal/middleware"
	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/repository"
	"github.com/sudo-init-do/skillswap/internal/trade"
	"github.com/sudo-init-do/skillswap/internal/user"
	"github.com/sudo-init-do/skillswap/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", true)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	// Initialize database connection
	db.Init(cfg.DatabaseURL())
	defer db.Close()

	table := progression.DefaultTable()
	if len(cfg.LevelWidths) > 0 {
		if table, err = progression.NewTable(cfg.LevelWidths); err != nil {
			log.Fatal().Err(err).Msg("invalid level table")
		}
	}

	files, err := newFileStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("file store unavailable")
	}

	var scorer trade.Scorer = evaluation.Heuristic{}
	if cfg.ScoringURL != "" {
		scorer = evaluation.NewHTTPScorer(cfg.ScoringURL, cfg.ScoringTimeout, evaluation.WithAPIKey(cfg.ScoringAPIKey))
	} else {
		log.Info().Msg("no SCORING_URL configured, using heuristic scorer")
	}

	hub := messaging.NewHub()
	conversations := messaging.NewPGStore(db.Conn)
	notifications := alerts.NewPGStore(db.Conn)

	var notifier trade.Notifier
	var worker *alerts.Worker
	if cfg.AlertsEnabled {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		enq := alerts.NewEnqueuer(redisOpt)
		defer enq.Close()
		notifier = enq
		worker = alerts.NewWorker(redisOpt, notifications, hub)
		if err := worker.Start(); err != nil {
			log.Fatal().Err(err).Msg("notification worker failed to start")
		}
	} else {
		notifier = alerts.NewDirect(notifications, hub)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, db.Conn)

	trades := repository.NewTradeRepo(db.Conn)
	ledger := repository.NewXPRepo(db.Conn)
	rdb := cache.Connect(cfg.CacheURL)
	if rdb != nil {
		defer rdb.Close()
	}

	svc := trade.NewService(cache.New(trades, rdb, cfg.CacheTTL),
		trade.WithScorer(scorer),
		trade.WithChannels(conversations),
		trade.WithNotifier(notifier),
		trade.WithAwarder(trade.AssessmentAwarder{Base: cfg.BaseAwardXP}),
		trade.WithLedger(ledger),
		trade.WithLevelTable(table),
		trade.WithObserver(m),
	)

	users := user.NewPGStore(db.Conn)
	authH := auth.NewHandler(users, auth.NewTokens(cfg.JWTSecret, cfg.TokenLifetime), cfg.AdminBootstrapToken)
	userH := user.NewHandler(users, ledger, table, trades)
	xpH := wallet.NewHandler(ledger, table)
	marketH := marketplace.NewHandler(svc, files)
	msgH := messaging.NewHandler(conversations, hub)
	alertH := alerts.NewHandler(notifications)
	adminH := admin.NewHandler(trades, svc, users, ledger)

	e := echo.New()
	e.HideBanner = true

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("rid", v.RequestID).
				Msg("request")
			return nil
		},
	}))
	e.Use(m.Middleware())

	// Health and root routes
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "skillswap"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if db.Conn == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		if err := db.Conn.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", m.Handler())

	// Public routes
	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", authH.Signup)
	authGroup.POST("/login", authH.Login)
	authGroup.POST("/bootstrap-admin", authH.BootstrapAdmin)

	e.GET("/user/:id/profile", userH.GetPublicProfile)
	e.GET("/xp/leaderboard", xpH.Leaderboard)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware(cfg.JWTSecret))
	api.Use(mware.RequireRoles(user.RoleMember, user.RoleAdmin))

	api.GET("/auth/me", authH.Me)
	api.PATCH("/user/profile", userH.UpdateProfile)
	api.GET("/me/progress", userH.MyProgress)

	api.GET("/xp/balance", xpH.Balance)
	api.GET("/xp/awards", xpH.Transactions)

	marketH.Register(api)

	api.GET("/conversations", msgH.ListConversations)
	api.GET("/conversations/unread", msgH.UnreadCount)
	api.GET("/conversations/:id/messages", msgH.ListMessages)
	api.POST("/conversations/:id/messages", msgH.SendMessage)
	api.POST("/conversations/:id/messages/:message_id/read", msgH.MarkMessageRead)
	api.GET("/conversations/:id/ws", msgH.ConversationWS)
	api.GET("/ws", msgH.StreamWS)

	api.GET("/notifications", alertH.ListNotifications)
	api.GET("/notifications/unread", alertH.UnreadCount)
	api.POST("/notifications/:id/read", alertH.MarkNotificationRead)
	api.POST("/notifications/read-all", alertH.MarkAllRead)

	// Admin routes
	adminGroup := e.Group("/admin")
	adminGroup.Use(mware.JWTMiddleware(cfg.JWTSecret))
	adminGroup.Use(mware.AdminGuard)

	adminGroup.GET("/stats", adminH.Stats)
	adminGroup.GET("/users", adminH.ListUsers)
	adminGroup.POST("/users/:id/suspend", adminH.SuspendUser)
	adminGroup.POST("/users/:id/activate", adminH.ActivateUser)
	adminGroup.POST("/xp/grant", adminH.GrantXP)
	adminGroup.GET("/xp/user/:id", xpH.AdminGetUserTransactions)
	adminGroup.POST("/trades/:id/settle", adminH.SettleTrade)

	// Start server
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if worker != nil {
		worker.Shutdown()
	}
}

// newFileStore picks S3 when a bucket is configured, else a local directory.
func newFileStore(cfg *config.Config) (filestore.Store, error) {
	if cfg.S3Bucket == "" {
		return filestore.NewLocal(cfg.UploadDir)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return filestore.NewS3(ctx, filestore.S3Config{
		Bucket:   cfg.S3Bucket,
		Prefix:   cfg.S3Prefix,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	})
}
