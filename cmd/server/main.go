package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/santz1994/ERP-sub002/internal/config"
	"github.com/santz1994/ERP-sub002/internal/mes/entity"
	"github.com/santz1994/ERP-sub002/internal/mes/handler"
	"github.com/santz1994/ERP-sub002/internal/mes/repository"
	"github.com/santz1994/ERP-sub002/internal/mes/service"
	"github.com/santz1994/ERP-sub002/internal/middleware"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = initRedis(cfg.Redis)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable, sequence codes fall back to in-process counters", zap.Error(err))
			rdb = nil
		}
	}

	repos := repository.NewRepositories(db)

	seqSvc := service.NewSequenceService(rdb)
	explosionSvc := service.NewExplosionService(repos.BOM)
	bomSvc := service.NewBOMService(repos.BOM, explosionSvc, zapLogger)
	debtSvc := service.NewDebtService(db, repos.Debt, seqSvc, zapLogger)
	allocSvc := service.NewAllocationService(db, repos.Allocation, debtSvc, zapLogger)
	approvalSvc := service.NewApprovalService(db, repos.Approval, zapLogger)
	reworkSvc := service.NewReworkService(db, repos.Rework, zapLogger)
	invSvc := service.NewInventoryService(db, repos.Inventory, repos.Product, approvalSvc, zapLogger)
	woSvc := service.NewWOService(db, repos.WO, repos.BOM, explosionSvc, allocSvc, reworkSvc, seqSvc, zapLogger)
	moSvc := service.NewMOService(db, repos.MO, repos.WO, repos.Product, explosionSvc, allocSvc, woSvc, approvalSvc, seqSvc, zapLogger)

	approvalSvc.RegisterApplier(entity.ApprovalEntityMO, moSvc.ApplyApprovedChanges)
	approvalSvc.RegisterApplier(entity.ApprovalEntityDebt, debtSvc.ApplyApproval)
	approvalSvc.RegisterApplier(entity.ApprovalEntityStock, invSvc.ApplyAdjustment)

	handlers := handler.NewHandlers(repos, bomSvc, moSvc, woSvc, allocSvc, debtSvc, approvalSvc, reworkSvc, invSvc)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

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
		Logger: logger.Default.LogMode(logger.Warn),
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

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Product{},
		&entity.BOMHeader{},
		&entity.BOMDetail{},
		&entity.ManufacturingOrder{},
		&entity.WorkOrder{},
		&entity.MaterialAllocation{},
		&entity.MaterialDebt{},
		&entity.InventoryItem{},
		&entity.InventoryTransaction{},
		&entity.ApprovalRequest{},
		&entity.ApprovalStep{},
		&entity.ReworkRequest{},
		&entity.AuditLog{},
	)
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		products := v1.Group("/products")
		{
			products.POST("", h.Product.Create)
			products.GET("", h.Product.List)
			products.GET("/:id", h.Product.Get)
		}

		boms := v1.Group("/boms")
		{
			boms.POST("", h.BOM.Create)
			boms.GET("", h.BOM.ActiveVersions)
			boms.GET("/explode", h.BOM.Explode)
			boms.GET("/:id/details", h.BOM.Details)
		}

		mos := v1.Group("/manufacturing-orders")
		{
			mos.POST("", h.MO.Create)
			mos.GET("", h.MO.List)
			mos.GET("/:id", h.MO.Get)
			mos.POST("/:id/transition", h.MO.Transition)
			mos.GET("/:id/materials", h.MO.PlanMaterials)
			mos.POST("/:id/allocate", h.MO.Allocate)
			mos.POST("/:id/edits", h.MO.SubmitEdit)
			mos.GET("/:id/work-orders", h.MO.ListWorkOrders)
		}

		wos := v1.Group("/work-orders")
		{
			wos.GET("", h.WO.List)
			wos.GET("/:id", h.WO.Get)
			wos.POST("/:id/transition", h.WO.Transition)
			wos.POST("/:id/output", h.WO.RecordOutput)
			wos.POST("/:id/qc", h.WO.SubmitQC)
			wos.POST("/:id/packing", h.WO.RecordPacking)
			wos.POST("/:id/reallocate", h.WO.Reallocate)
		}

		allocations := v1.Group("/allocations")
		{
			allocations.GET("", h.Allocation.ListByOrder)
			allocations.POST("/reverse", h.Allocation.Reverse)
		}

		debts := v1.Group("/debts")
		{
			debts.GET("", h.Debt.List)
			debts.GET("/:id", h.Debt.Get)
			debts.POST("/:id/approve", h.Debt.Approve)
			debts.POST("/:id/reject", h.Debt.Reject)
			debts.POST("/:id/settle", h.Debt.Settle)
		}

		approvals := v1.Group("/approvals")
		{
			approvals.GET("", h.Approval.List)
			approvals.GET("/:id", h.Approval.Get)
			approvals.POST("/:id/act", h.Approval.Act)
			approvals.POST("/:id/cancel", h.Approval.Cancel)
		}

		reworks := v1.Group("/reworks")
		{
			reworks.GET("", h.Rework.ListByWO)
			reworks.GET("/:id", h.Rework.Get)
			reworks.POST("/:id/approve", h.Rework.ApproveQC)
			reworks.POST("/:id/reject", h.Rework.RejectQC)
			reworks.POST("/:id/start", h.Rework.Start)
			reworks.POST("/:id/verify", h.Rework.Verify)
			reworks.POST("/:id/close", h.Rework.Close)
		}

		inventory := v1.Group("/inventory")
		{
			inventory.GET("", h.Inventory.ListByWarehouse)
			inventory.GET("/position", h.Inventory.Position)
			inventory.GET("/movements", h.Inventory.Movements)
			inventory.POST("/receive", h.Inventory.Receive)
			inventory.POST("/adjustments", h.Inventory.SubmitAdjustment)
		}
	}
}
