package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	barrelentity "github.com/bitfantasy/hevea/internal/barrel/entity"
	barrelhandler "github.com/bitfantasy/hevea/internal/barrel/handler"
	barrelrepo "github.com/bitfantasy/hevea/internal/barrel/repository"
	barrelsvc "github.com/bitfantasy/hevea/internal/barrel/service"
	collectionentity "github.com/bitfantasy/hevea/internal/collection/entity"
	collectionhandler "github.com/bitfantasy/hevea/internal/collection/handler"
	collectionrepo "github.com/bitfantasy/hevea/internal/collection/repository"
	collectionsvc "github.com/bitfantasy/hevea/internal/collection/service"
	"github.com/bitfantasy/hevea/internal/config"
	"github.com/bitfantasy/hevea/internal/middleware"
	"github.com/bitfantasy/hevea/internal/shared/audit"
	"github.com/bitfantasy/hevea/internal/shared/auth"
	"github.com/bitfantasy/hevea/internal/shared/notify"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting hevea service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// 迁移业务表
	if err := db.AutoMigrate(
		&collectionentity.Supplier{},
		&collectionentity.CollectionRequest{},
		&barrelentity.Barrel{},
		&barrelentity.DamageTicket{},
		&barrelentity.RepairJob{},
		&audit.ActivityLog{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化通知网关客户端
	var notifyClient *notify.Client
	if cfg.Notify.BaseURL != "" && cfg.Notify.AppID != "" {
		notifyClient = notify.NewClient(cfg.Notify.BaseURL, cfg.Notify.AppID, cfg.Notify.AppSecret)
		zapLogger.Info("Notify client initialized", zap.String("base_url", cfg.Notify.BaseURL))
	}
	notifier := notify.NewDispatcher(notifyClient, zapLogger)

	// 初始化依赖
	recorder := audit.NewRecorder(db)

	collectionRepos := collectionrepo.NewRepositories(db)
	collectionServices := collectionsvc.NewServices(collectionRepos, recorder, notifier, rdb, zapLogger)
	collectionHandlers := collectionhandler.NewHandlers(collectionServices)

	barrelRepos := barrelrepo.NewRepositories(db)
	barrelServices := barrelsvc.NewServices(barrelRepos, recorder, notifier, &cfg.Workflow, zapLogger)
	barrelHandlers := barrelhandler.NewHandlers(barrelServices)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, collectionHandlers, barrelHandlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, ch *collectionhandler.Handlers, bh *barrelhandler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 供应商管理
		suppliers := v1.Group("/lcs/suppliers")
		{
			suppliers.GET("", ch.Supplier.List)
			suppliers.GET("/:id", ch.Supplier.Get)
			suppliers.GET("/:id/quota", ch.Supplier.Quota)
			suppliers.POST("", middleware.RequireRole(auth.RoleManager), ch.Supplier.Create)
			suppliers.PUT("/:id/allowance", middleware.RequireRole(auth.RoleManager), ch.Supplier.UpdateAllowance)
		}

		// 采集单流水线
		requests := v1.Group("/lcs/requests")
		{
			requests.GET("", ch.Request.List)
			requests.GET("/:id", ch.Request.Get)
			requests.GET("/:id/timeline", ch.Request.Timeline)
			requests.POST("", ch.Request.Create)
			requests.PUT("/:id/assign-field", ch.Request.AssignFieldStaff)
			requests.PUT("/:id/collect", ch.Request.Collect)
			requests.PUT("/:id/assign-delivery", ch.Request.AssignDeliveryStaff)
			requests.PUT("/:id/deliver", ch.Request.Deliver)
			requests.PUT("/:id/test", ch.Request.Test)
			requests.PUT("/:id/calculate", ch.Request.Calculate)
			requests.PUT("/:id/verify", ch.Request.Verify)
			requests.PUT("/:id/reject", ch.Request.Reject)
			requests.PUT("/:id/return", ch.Request.Return)
			requests.PUT("/:id/invoice", ch.Request.MarkInvoiced)
		}

		// 仪表盘与报表
		dashboard := v1.Group("/lcs/dashboard")
		{
			dashboard.GET("/stats", ch.Dashboard.Stats)
		}
		reports := v1.Group("/lcs/reports")
		{
			reports.GET("/settlement", middleware.RequireRole(auth.RoleAccountant, auth.RoleManager), ch.Dashboard.SettlementExport)
		}

		// 木桶台账
		barrels := v1.Group("/barrels")
		{
			barrels.GET("", bh.Barrel.List)
			barrels.GET("/:id", bh.Barrel.Get)
			barrels.GET("/:id/timeline", bh.Barrel.Timeline)
			barrels.POST("", middleware.RequireRole(auth.RoleManager), bh.Barrel.Create)
			barrels.PUT("/:id/move", bh.Barrel.Move)
			barrels.PUT("/:id/volume", bh.Barrel.SetVolume)
			barrels.PUT("/:id/weights", bh.Barrel.UpdateWeights)
			barrels.POST("/:id/tickets", bh.Ticket.Create)
			barrels.POST("/:id/repairs", bh.Repair.Open)
		}

		// 损坏工单
		tickets := v1.Group("/tickets")
		{
			tickets.GET("", bh.Ticket.List)
			tickets.GET("/:id", bh.Ticket.Get)
			tickets.PUT("/:id/assign", middleware.RequireRole(auth.RoleManager), bh.Ticket.Assign)
		}

		// 修复任务
		repairs := v1.Group("/repairs")
		{
			repairs.GET("", bh.Repair.List)
			repairs.GET("/:id", bh.Repair.Get)
			repairs.POST("/:id/worklog", bh.Repair.AppendWorkLog)
			repairs.PUT("/:id/complete", bh.Repair.Complete)
			repairs.PUT("/:id/approve", middleware.RequireRole(auth.RoleManager, auth.RoleAdmin), bh.Repair.Approve)
			repairs.PUT("/:id/reject", middleware.RequireRole(auth.RoleManager, auth.RoleAdmin), bh.Repair.Reject)
		}
	}
}
