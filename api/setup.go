package api

import (
	adminHandlers "backend/api/handlers/admin"
	quotaHandlers "backend/api/handlers/quota"
	usageHandlers "backend/api/handlers/usage"
	"backend/internal/config"
	"backend/internal/history"
	"backend/internal/idempotency"
	"backend/internal/infra"
	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/pricing"
	"backend/internal/quota"
	"backend/internal/report"
	"backend/internal/tenant"
	"backend/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers 聚合全部 HTTP 处理器
type Handlers struct {
	Usage  *usageHandlers.Handler
	Quota  *quotaHandlers.Handler
	Report *adminHandlers.ReportHandler
}

// SetupRouter 组装服务依赖并返回 Gin 路由与 Worker 服务器
// Redis 不可用时降级运行：幂等键与汇总缓存退化，Worker 不启动。
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server) {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), Metrics())

	redisClient, err := infra.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，幂等键与汇总缓存退化为直连数据库", zap.Error(err))
		redisClient = nil
	}

	rates := pricing.NewTableFromConfig(&cfg.Pricing)
	directory := tenant.NewGormDirectory(db)

	ledgerService := ledger.NewService(db, rates, directory)
	historyService := history.NewService(db)
	quotaService := quota.NewService(db, cfg.Quota.DefaultLimitBytes)
	reportService := report.NewService(db, directory, redisClient)

	var idemStore idempotency.Store
	if redisClient != nil {
		idemStore = idempotency.NewRedisStore(redisClient)
	}

	handlers := &Handlers{
		Usage:  usageHandlers.NewHandler(ledgerService, historyService, idemStore),
		Quota:  quotaHandlers.NewHandler(quotaService),
		Report: adminHandlers.NewReportHandler(reportService),
	}

	RegisterRoutes(router, handlers)

	var workerServer *worker.Server
	if cfg.Worker.Enabled && redisClient != nil {
		workerServer = worker.NewServer(cfg.Redis, cfg.Worker, reportService, logger.Get())
	}

	return router, workerServer
}
