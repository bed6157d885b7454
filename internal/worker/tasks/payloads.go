package tasks

// 任务类型
const (
	TypeWarmUsageSummary = "report:warm_usage_summary"
)

// WarmUsageSummaryPayload 用量汇总缓存预热任务载荷（当前无参数，保留扩展位）
type WarmUsageSummaryPayload struct{}
