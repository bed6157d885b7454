package usage

import (
	"io"
	"net/http"

	respond "backend/api/handlers/common"
	"backend/internal/artifact"
	internal "backend/internal/common"
	"backend/internal/history"
	"backend/internal/idempotency"
	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/pkg/tokenizer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Handler 用量接口处理器
type Handler struct {
	ledger  *ledger.Service
	history *history.Service
	idem    idempotency.Store // 可为 nil（未配置 Redis 时幂等键被忽略）
}

// NewHandler 创建用量接口处理器
func NewHandler(ledgerSvc *ledger.Service, historySvc *history.Service, idem idempotency.Store) *Handler {
	return &Handler{ledger: ledgerSvc, history: historySvc, idem: idem}
}

// RecordEvent 记录一次用量事件
// @Router /api/usage/events [post]
// 请求头携带 Idempotency-Key 时保证重试不重复入账。
func (h *Handler) RecordEvent(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var req RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "请求参数错误: "+err.Error())
		return
	}

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		acquired, existing, err := h.idem.Reserve(c.Request.Context(), tenantID, idemKey)
		if err != nil {
			respond.ServiceError(c, err)
			return
		}
		if !acquired {
			if existing == "" {
				// 首次请求仍在处理中
				respond.ErrorKind(c, http.StatusConflict, internal.KindValidation, "相同幂等键的请求正在处理中")
				return
			}
			metrics.IdempotentReplaysTotal.Inc()
			respond.Success(c, RecordEventResponse{EventID: existing, Replayed: true})
			return
		}
	}

	ev, delta := h.buildEvent(&req)
	eventID, err := h.history.RecordEvent(c.Request.Context(), tenantID, ev)
	if err != nil {
		h.forgetKey(c, tenantID, idemKey)
		respond.ServiceError(c, err)
		return
	}

	snapshot, err := h.ledger.ApplyDelta(c.Request.Context(), tenantID, delta)
	if err != nil {
		// 台账未入账，回收刚写入的事件，避免留下孤儿记录
		if delErr := h.history.DeleteEvent(c.Request.Context(), tenantID, eventID, true); delErr != nil {
			logger.Warn("回收事件失败", zap.String("event_id", eventID), zap.Error(delErr))
		}
		h.forgetKey(c, tenantID, idemKey)
		respond.ServiceError(c, err)
		return
	}

	if idemKey != "" && h.idem != nil {
		if err := h.idem.Bind(c.Request.Context(), tenantID, idemKey, eventID); err != nil {
			// 绑定失败只影响后续重试的去重，事件本身已入账
			logger.Warn("绑定幂等键失败",
				zap.String("tenant_id", tenantID),
				zap.String("event_id", eventID),
				zap.Error(err))
		}
	}

	respond.Created(c, RecordEventResponse{EventID: eventID, Ledger: snapshot})
}

// buildEvent 组装事件记录与台账增量，缺失的 token 数按文本估算
func (h *Handler) buildEvent(req *RecordEventRequest) (*history.UsageEvent, ledger.Delta) {
	inputTokens := estimateIfAbsent(req.InputTokens, req.Model, req.Prompt)
	outputTokens := estimateIfAbsent(req.OutputTokens, req.Model, req.Response)
	totalTokens := int64(0)
	if req.TotalTokens != nil {
		totalTokens = *req.TotalTokens
	}

	ev := &history.UsageEvent{
		Kind:         history.EventKind(req.Kind),
		Prompt:       req.Prompt,
		Model:        req.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  totalTokens,
		DurationMS:   req.DurationMS,
		Response:     req.Response,
	}
	if len(req.Artifacts) > 0 {
		ev.Artifacts = datatypes.NewJSONType(req.Artifacts)
	}

	delta := ledger.Delta{
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		TotalTokens:   totalTokens,
		PdfsProcessed: int64(len(req.Artifacts)),
		Model:         req.Model,
	}
	return ev, delta
}

// estimateIfAbsent 调用方没报 token 数时按文本估算
func estimateIfAbsent(reported *int64, model, text string) int64 {
	if reported != nil {
		return *reported
	}
	if text == "" {
		return 0
	}
	n, err := tokenizer.EstimateTokens(model, text)
	if err != nil {
		logger.Warn("token 估算失败", zap.String("model", model), zap.Error(err))
		return 0
	}
	return n
}

// forgetKey 处理失败时释放幂等键，让调用方的重试按新请求处理
func (h *Handler) forgetKey(c *gin.Context, tenantID, idemKey string) {
	if idemKey == "" || h.idem == nil {
		return
	}
	if err := h.idem.Forget(c.Request.Context(), tenantID, idemKey); err != nil {
		logger.Warn("释放幂等键失败", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// DescribeArtifact 解析上传的 PDF，返回产物描述（名称、字节数、页数）
// @Router /api/usage/artifacts/describe [post]
// 调用方把返回的描述附在后续的用量事件里。
func (h *Handler) DescribeArtifact(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "缺少上传文件 file")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "读取上传文件失败")
		return
	}

	desc, err := artifact.DescribePDF(header.Filename, content)
	if err != nil {
		// 页数解析失败不阻断：描述以 0 页返回
		logger.Warn("解析 PDF 页数失败", zap.String("name", header.Filename), zap.Error(err))
	}
	respond.Success(c, desc)
}

// GetLedger 查询当前租户的用量台账
// @Router /api/usage/ledger [get]
func (h *Handler) GetLedger(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	snapshot, err := h.ledger.GetLedger(c.Request.Context(), tenantID)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, snapshot)
}

// QueryHistory 分页查询历史事件
// @Router /api/usage/history [get]
func (h *Handler) QueryHistory(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var req HistoryQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "请求参数错误: "+err.Error())
		return
	}

	filter := history.Filter{
		Kind:    history.EventKind(req.Kind),
		Starred: req.Starred,
		Keyword: req.Keyword,
	}
	from, err := parseTime(req.From)
	if err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "from 时间格式错误，应为 RFC3339")
		return
	}
	to, err := parseTime(req.To)
	if err != nil {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "to 时间格式错误，应为 RFC3339")
		return
	}
	if !from.IsZero() || !to.IsZero() {
		filter.Range = &internal.DateRange{Start: from, End: to}
	}

	page := internal.PaginationRequest{Page: req.Page, PageSize: req.PageSize}
	result, err := h.history.QueryHistory(c.Request.Context(), tenantID, filter, page, req.SortBy, req.SortOrder)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, result)
}

// SearchHistory 全文检索历史事件
// @Router /api/usage/search [get]
func (h *Handler) SearchHistory(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	q := c.Query("q")
	if q == "" {
		respond.ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "缺少查询参数 q")
		return
	}

	items, err := h.history.SearchByText(c.Request.Context(), tenantID, q)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, gin.H{"items": items, "total": len(items)})
}

// ToggleStarred 切换事件收藏标记
// @Router /api/usage/events/{id}/star [post]
func (h *Handler) ToggleStarred(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	elevated := c.GetString("tenant_role") == "admin"

	ev, err := h.history.ToggleStarred(c.Request.Context(), tenantID, c.Param("id"), elevated)
	if err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.Success(c, ev)
}

// DeleteEvent 删除单条历史事件（台账不回滚）
// @Router /api/usage/events/{id} [delete]
func (h *Handler) DeleteEvent(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	elevated := c.GetString("tenant_role") == "admin"

	if err := h.history.DeleteEvent(c.Request.Context(), tenantID, c.Param("id"), elevated); err != nil {
		respond.ServiceError(c, err)
		return
	}
	respond.NoContent(c)
}
