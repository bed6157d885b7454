package quota

import (
	"net/http"

	respond "backend/api/handlers/common"
	internal "backend/internal/common"
	"backend/internal/quota"

	"github.com/gin-gonic/gin"
)

// Handler 存储配额接口处理器
type Handler struct {
	quota *quota.Service
}

// NewHandler 创建配额接口处理器
func NewHandler(quotaSvc *quota.Service) *Handler {
	return &Handler{quota: quotaSvc}
}

// ReserveRequest 预留配额请求
type ReserveRequest struct {
	SizeBytes   int64  `json:"sizeBytes" binding:"required,gt=0"`
	ArtifactRef string `json:"artifactRef"`
}

// CommitRequest 确认配额变动请求
type CommitRequest struct {
	DeltaBytes  int64  `json:"deltaBytes" binding:"required"`
	Action      string `json:"action" binding:"required"`
	ArtifactRef string `json:"artifactRef"`
}

// ReleaseRequest 回退预留请求
type ReleaseRequest struct {
	SizeBytes int64 `json:"sizeBytes" binding:"required,gt=0"`
}

// SetLimitRequest 调整配额上限请求
type SetLimitRequest struct {
	LimitBytes int64 `json:"limitBytes" binding:"required,gt=0"`
}

// GetState 查询当前租户的配额状态与变动历史
// @Router /api/quota [get]
func (h *Handler) GetState(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	state, err := h.quota.GetState(c.Request.Context(), tenantID)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, state)
}

// Reserve 检查并预留配额
// @Router /api/quota/reserve [post]
// 超限时返回 413，响应体携带拒绝原因与超出字节数。
func (h *Handler) Reserve(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "请求参数错误: "+err.Error())
		return
	}

	decision, err := h.quota.CheckAndReserve(c.Request.Context(), tenantID, req.SizeBytes)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	if !decision.Allowed {
		c.JSON(http.StatusRequestEntityTooLarge, respond.APIResponse{Success: false, Data: decision})
		return
	}
	respond.Success(c, decision)
}

// Commit 确认配额变动并记录历史
// @Router /api/quota/commit [post]
// 正增量在 Reserve 阶段已计入；负增量（删除产物）在此处扣减。
func (h *Handler) Commit(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "请求参数错误: "+err.Error())
		return
	}

	err := h.quota.Commit(c.Request.Context(), tenantID, req.DeltaBytes, quota.Action(req.Action), req.ArtifactRef)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, gin.H{"committed": true})
}

// Release 回退一次失败上传的预留
// @Router /api/quota/release [post]
func (h *Handler) Release(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "请求参数错误: "+err.Error())
		return
	}

	if err := h.quota.Release(c.Request.Context(), tenantID, req.SizeBytes); err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, gin.H{"released": true})
}

// Reset 清空当前租户的全部存储占用
// @Router /api/quota/reset [post]
func (h *Handler) Reset(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	if err := h.quota.ResetAll(c.Request.Context(), tenantID); err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, gin.H{"reset": true})
}

// SetLimit 调整指定租户的配额上限（管理员）
// @Router /api/admin/quota/{tenantId}/limit [put]
func (h *Handler) SetLimit(c *gin.Context) {
	tenantID := c.Param("tenantId")
	if tenantID == "" {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "缺少租户ID")
		return
	}

	var req SetLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "请求参数错误: "+err.Error())
		return
	}

	if err := h.quota.SetLimit(c.Request.Context(), tenantID, req.LimitBytes); err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, gin.H{"limitBytes": req.LimitBytes})
}
