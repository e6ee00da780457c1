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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"auctionharvest/internal/config"
	"auctionharvest/internal/db"
	"auctionharvest/internal/handler"
	"auctionharvest/internal/logger"
	"auctionharvest/internal/metrics"
	"auctionharvest/internal/render"
	gormrepository "auctionharvest/internal/repository/gorm"
	"auctionharvest/internal/scheduler"
	"auctionharvest/internal/scraper"
	"auctionharvest/internal/scraper/gcsurplus"
	"auctionharvest/internal/scraper/gsa"
	"auctionharvest/internal/scraper/statedept"
	"auctionharvest/internal/scraper/treasury"
	"auctionharvest/internal/service"
)

func main() {
	cfgPath := os.Getenv("AH_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AH_ENV_ONLY"); envOnlyRaw != "" {
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
	met := metrics.New()

	var renderer render.Renderer = render.Disabled{}
	if cfg.Renderer.Enabled {
		// No headless backend ships with this binary; closing dates then rely
		// on the state-based timezone fallback.
		logger.Warn("renderer enabled in config but no backend is available")
	}

	adapters := []scraper.Adapter{
		gcsurplus.New(cfg.GCSurplus, cfg.Scrape, logger, met),
		gsa.New(cfg.GSA, cfg.Scrape, renderer, logger, met),
		treasury.New(cfg.Treasury, cfg.Scrape, logger, met),
		statedept.New(cfg.StateDept, cfg.Scrape, logger, met),
	}

	ingestSvc := service.NewIngestService(store, adapters, cfg.Scrape, logger, met)
	auctionSvc := service.NewAuctionService(store)
	commentSvc := service.NewCommentService(store)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(ctx, ingestSvc, store, cfg.Scheduler, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("scheduler start failed", zap.Error(err))
		}
		defer sched.Stop()
	} else {
		logger.Info("scheduler disabled, scrapes run on demand only")
	}

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, SchedulerEnabled: cfg.Scheduler.Enabled}
	healthHandler.Register(engine)
	auctionsHandler := &handler.AuctionsHandler{
		Auctions: auctionSvc,
		Comments: commentSvc,
		Logger:   logger,
	}
	auctionsHandler.Register(engine)
	scrapeHandler := &handler.ScrapeHandler{
		Ingest:    ingestSvc,
		Scheduler: sched,
		Repo:      store,
		Logger:    logger,
	}
	scrapeHandler.Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 2)

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
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
