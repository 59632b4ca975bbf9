package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"skycover/internal/auth"
	"skycover/internal/config"
	cronrunner "skycover/internal/cron"
	"skycover/internal/db"
	"skycover/internal/event"
	"skycover/internal/handler"
	"skycover/internal/ledger"
	"skycover/internal/logger"
	"skycover/internal/oracle"
	"skycover/internal/policy"
	"skycover/internal/provider"
	gormrepository "skycover/internal/repository/gorm"

	_ "skycover/docs"
)

func main() {
	cfgPath := os.Getenv("SKYCOVER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SKYCOVER_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	hub := event.NewHub(store, logger)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		hub = hub.WithRedis(redisClient, cfg.Redis.Channel)
		defer redisClient.Close()
	}

	pool := &ledger.Ledger{Repo: store, Logger: logger, Events: hub}
	registry := &policy.Registry{
		Repo:   store,
		Logger: logger,
		Events: hub,
		Ledger: pool,
		Funds:  pool.GrantFundsAccess(),
	}
	gateway := &oracle.Gateway{
		Repo:     store,
		Logger:   logger,
		Events:   hub,
		Registry: registry,
		Access:   registry.GrantEvaluateAccess(),
	}

	if err := pool.EnsureDefaults(context.Background(), cfg.Ledger); err != nil {
		logger.Fatal("ledger defaults failed", zap.Error(err))
	}
	if err := registry.EnsureDefaults(context.Background(), cfg.Registry); err != nil {
		logger.Fatal("registry defaults failed", zap.Error(err))
	}
	if err := gateway.EnsureIdentity(context.Background(), cfg.Oracle.Subject, cfg.Oracle.PublicKey); err != nil {
		logger.Warn("oracle identity seed failed", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL}
	engine.Use(auth.Middleware(jwt, cfg.Auth.Disabled))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	poolHandler := &handler.PoolHandler{Ledger: pool}
	poolHandler.Register(engine)
	policyHandler := &handler.PolicyHandler{Registry: registry}
	policyHandler.Register(engine)
	oracleHandler := &handler.OracleHandler{Gateway: gateway}
	oracleHandler.Register(engine)
	adminHandler := &handler.AdminHandler{Ledger: pool, Registry: registry, Gateway: gateway, JWT: jwt}
	adminHandler.Register(engine)
	eventsHandler := &handler.EventsHandler{
		Repo:          store,
		Hub:           hub,
		Logger:        logger,
		SubscriberBuf: cfg.Events.SubscriberBuf,
	}
	eventsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		if _, err := cronRunner.Add("policy-expiry", cfg.Cron.PolicyExpiry,
			cronrunner.ExpirySweep(store, registry, logger, cfg.Registry.ExpirySweepLimit)); err != nil {
			logger.Warn("cron register policy expiry failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("event-retention", cfg.Cron.EventRetention,
			cronrunner.EventRetention(store, logger, cfg.Events.RetentionDays)); err != nil {
			logger.Warn("cron register event retention failed", zap.Error(err))
		}
		if cfg.Provider.Enabled {
			fulfiller := &provider.AutoFulfiller{
				Gateway:    gateway,
				Source:     provider.NewOpenMeteo(cfg.Provider),
				Logger:     logger,
				Subject:    cfg.Provider.OracleSubject,
				BatchLimit: cfg.Provider.BatchLimit,
			}
			if _, err := cronRunner.Add("provider-poll", cfg.Cron.ProviderPoll, fulfiller.Run); err != nil {
				logger.Warn("cron register provider poll failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
