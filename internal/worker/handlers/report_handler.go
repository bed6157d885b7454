package handlers

import (
	"context"

	"backend/internal/report"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ReportHandler 用量汇总任务处理器
type ReportHandler struct {
	reportService *report.Service
	logger        *zap.Logger
}

// NewReportHandler 创建处理器
func NewReportHandler(reportService *report.Service, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reportService: reportService, logger: logger}
}

// HandleWarmUsageSummary 预热全租户用量汇总缓存
func (h *ReportHandler) HandleWarmUsageSummary(ctx context.Context, t *asynq.Task) error {
	sum, err := h.reportService.Warm(ctx)
	if err != nil {
		return err
	}

	h.logger.Info("用量汇总缓存已预热",
		zap.Int("tenant_count", sum.TenantCount),
		zap.Int64("total_tokens", sum.TotalTokens),
	)
	return nil
}
