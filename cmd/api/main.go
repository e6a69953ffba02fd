package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dimahwang88/force-sub-app/internal/api"
	"github.com/dimahwang88/force-sub-app/internal/api/handler"
	"github.com/dimahwang88/force-sub-app/internal/api/middleware"
	"github.com/dimahwang88/force-sub-app/internal/application"
	"github.com/dimahwang88/force-sub-app/internal/config"
	"github.com/dimahwang88/force-sub-app/internal/infrastructure/postgres"
	redisinfra "github.com/dimahwang88/force-sub-app/internal/infrastructure/redis"
	"github.com/dimahwang88/force-sub-app/internal/pkg/logger"
	"github.com/dimahwang88/force-sub-app/internal/pkg/metrics"
	"github.com/dimahwang88/force-sub-app/internal/worker"
)

func main() {
	cfg := config.Load()

	// ロガー初期化
	logger.Set(logger.NewLogger(cfg.Env))
	defer logger.Sync()

	log := logger.Get()
	log.Info("クラス予約サービスを起動します", zap.String("env", cfg.Env))

	// メトリクス初期化
	m := metrics.Init()

	// PostgreSQL接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	// マイグレーション実行
	if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis接続（失敗してもロック・キャッシュなしで続行する）
	var (
		lockManager *redisinfra.LockManager
		cache       *redisinfra.CapacityCache
	)
	redisClient, err := redisinfra.NewClient(&redisinfra.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis接続に失敗。分散ロックとキャッシュなしで続行します", zap.Error(err))
	} else {
		defer redisClient.Close()
		lockManager = redisinfra.NewLockManager(redisClient, m)
		cache = redisinfra.NewCapacityCache(redisClient)
	}

	// リポジトリとトランザクションマネージャー
	classRepo := postgres.NewClassRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	txManager := postgres.NewTxManager(db)

	// サービス
	classService := application.NewClassService(classRepo, cache)
	bookingService := application.NewBookingService(txManager, bookingRepo, classRepo, lockManager, cache, m)

	// ハンドラー
	classHandler := handler.NewClassHandler(classService)
	bookingHandler := handler.NewBookingHandler(bookingService)
	healthHandler := handler.NewHealthHandler()

	// Echoセットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	// ルーティング
	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	v1.POST("/classes", classHandler.Create)
	v1.GET("/classes", classHandler.List)
	v1.GET("/classes/:id", classHandler.GetByID)
	v1.PUT("/classes/:id", classHandler.Update)
	v1.GET("/classes/:id/spots", classHandler.GetAvailableSpots)
	v1.POST("/bookings", bookingHandler.Create)
	v1.GET("/bookings", bookingHandler.GetUserBookings)
	v1.GET("/bookings/:id", bookingHandler.GetByID)
	v1.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	// カウンター修復ワーカー
	workerCtx, workerCancel := context.WithCancel(context.Background())
	reconciler := worker.NewCapacityReconciler(bookingService, cfg.Worker.ReconcileInterval)
	go reconciler.Start(workerCtx)

	// サーバー起動
	go func() {
		addr := ":" + cfg.Server.Port
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal("サーバー起動に失敗", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("シャットダウンを開始します")

	workerCancel()
	reconciler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatal("シャットダウンに失敗", zap.Error(err))
	}

	log.Info("正常にシャットダウンしました")
}
