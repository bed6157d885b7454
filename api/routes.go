package api

import (
	"net/http"

	"backend/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	// 健康检查与指标（公开）
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbState := "ok"
		if err := infra.HealthCheck(); err != nil {
			dbState = "down"
			status = http.StatusServiceUnavailable
		}
		redisState := "ok"
		if err := infra.HealthCheckRedis(); err != nil {
			// Redis 缺失只降级，不判定为不健康
			redisState = "degraded"
		}
		overall := "ok"
		if status != http.StatusOK {
			overall = "unhealthy"
		}
		c.JSON(status, gin.H{"status": overall, "database": dbState, "redis": redisState})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 主 API 组，所有路由都要求租户上下文
	api := router.Group("/api")
	api.Use(TenantContext())

	registerUsageRoutes(api, handlers)
	registerQuotaRoutes(api, handlers)
	registerAdminRoutes(api, handlers)
}

// registerUsageRoutes 注册用量计量路由
func registerUsageRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	usage := apiGroup.Group("/usage")
	{
		usage.POST("/events", h.Usage.RecordEvent)
		usage.POST("/artifacts/describe", h.Usage.DescribeArtifact)
		usage.GET("/ledger", h.Usage.GetLedger)
		usage.GET("/history", h.Usage.QueryHistory)
		usage.GET("/search", h.Usage.SearchHistory)
		usage.POST("/events/:id/star", h.Usage.ToggleStarred)
		usage.DELETE("/events/:id", h.Usage.DeleteEvent)
	}
}

// registerQuotaRoutes 注册存储配额路由
func registerQuotaRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	quotaGroup := apiGroup.Group("/quota")
	{
		quotaGroup.GET("", h.Quota.GetState)
		quotaGroup.POST("/reserve", h.Quota.Reserve)
		quotaGroup.POST("/commit", h.Quota.Commit)
		quotaGroup.POST("/release", h.Quota.Release)
		quotaGroup.POST("/reset", h.Quota.Reset)
	}
}

// registerAdminRoutes 注册管理端路由
func registerAdminRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	admin := apiGroup.Group("/admin")
	admin.Use(RequireAdmin())
	{
		admin.GET("/usage", h.Report.ListUsage)
		admin.GET("/usage/summary", h.Report.UsageSummary)
		admin.PUT("/quota/:tenantId/limit", h.Quota.SetLimit)
	}
}
