package admin

import (
	respond "backend/api/handlers/common"
	"backend/internal/report"

	"github.com/gin-gonic/gin"
)

// ReportHandler 管理端用量报表接口
type ReportHandler struct {
	report *report.Service
}

// NewReportHandler 创建报表接口处理器
func NewReportHandler(reportSvc *report.Service) *ReportHandler {
	return &ReportHandler{report: reportSvc}
}

// ListUsage 列出所有租户的用量台账
// @Router /api/admin/usage [get]
// exclude_status 可重复传入，过滤指定状态的租户。
func (h *ReportHandler) ListUsage(c *gin.Context) {
	excludeStatuses := c.QueryArray("exclude_status")

	rows, err := h.report.ListAllLedgers(c.Request.Context(), excludeStatuses)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, gin.H{"items": rows, "total": len(rows)})
}

// UsageSummary 全平台用量汇总
// @Router /api/admin/usage/summary [get]
// 结果带短期缓存，后台任务定期预热。
func (h *ReportHandler) UsageSummary(c *gin.Context) {
	summary, err := h.report.Summarize(c.Request.Context())
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, summary)
}
