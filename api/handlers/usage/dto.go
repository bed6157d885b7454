package usage

import (
	"time"

	"backend/internal/history"
	"backend/internal/ledger"
)

// RecordEventRequest 记录一次用量事件的请求
// token 字段缺省时由服务端按文本估算补齐。
type RecordEventRequest struct {
	Kind         string                       `json:"kind" binding:"required"`
	Prompt       string                       `json:"prompt"`
	Model        string                       `json:"model" binding:"required"`
	InputTokens  *int64                       `json:"inputTokens"`
	OutputTokens *int64                       `json:"outputTokens"`
	TotalTokens  *int64                       `json:"totalTokens"`
	DurationMS   int64                        `json:"durationMs"`
	Artifacts    []history.ArtifactDescriptor `json:"artifacts"`
	Response     string                       `json:"response"`
}

// RecordEventResponse 记录结果：事件ID与更新后的台账快照
type RecordEventResponse struct {
	EventID  string              `json:"eventId"`
	Replayed bool                `json:"replayed"` // 幂等键命中，未重复入账
	Ledger   *ledger.UsageLedger `json:"ledger,omitempty"`
}

// HistoryQueryRequest 历史查询参数
type HistoryQueryRequest struct {
	Kind      string `form:"kind"`
	Starred   *bool  `form:"starred"`
	Keyword   string `form:"keyword"`
	From      string `form:"from"` // RFC3339
	To        string `form:"to"`   // RFC3339
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}

// parseTime 解析 RFC3339 时间参数，空串返回零值
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
