package api

import (
	"net/http"
	"strconv"
	"time"

	response "backend/api/handlers/common"
	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// Metrics 请求指标中间件
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.APIRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}

// TenantContext 租户上下文中间件
// 网关/认证层在转发前注入 X-Tenant-ID 与 X-Tenant-Role，
// 计量服务信任该边界，不在此处做身份认证。
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			response.Error(c, http.StatusUnauthorized, "缺少租户标识")
			c.Abort()
			return
		}

		c.Set("tenant_id", tenantID)
		c.Set("tenant_role", c.GetHeader("X-Tenant-Role"))
		c.Next()
	}
}

// RequireAdmin 管理员守卫
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("tenant_role") != "admin" {
			response.Error(c, http.StatusForbidden, "需要管理员角色")
			c.Abort()
			return
		}
		c.Next()
	}
}
