package history

import (
	"time"

	"backend/internal/common"

	"gorm.io/datatypes"
)

// EventKind 事件类型枚举
type EventKind string

const (
	KindQuery             EventKind = "query"              // 普通问答
	KindStructuredSummary EventKind = "structured_summary" // 结构化摘要
	KindReviewArticle     EventKind = "review_article"     // 综述文章
)

// ValidKind 检查事件类型是否合法
func ValidKind(kind EventKind) bool {
	switch kind {
	case KindQuery, KindStructuredSummary, KindReviewArticle:
		return true
	}
	return false
}

// 提示词入库的大小上限（字节）
const maxPromptBytes = 8 << 10

// ArtifactDescriptor 关联产物描述（PDF 等）
type ArtifactDescriptor struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Pages     int    `json:"pages"`
}

// UsageEvent 单次计量操作的不可变记录
// 创建后仅 Starred 标记可变；删除只能由租户显式发起。
type UsageEvent struct {
	ID       string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string    `json:"tenantId" gorm:"type:uuid;not null;index;index:idx_usage_events_tenant_created,priority:1;index:idx_usage_events_tenant_kind,priority:1;index:idx_usage_events_tenant_starred,priority:1"`
	Kind     EventKind `json:"kind" gorm:"size:50;not null;index:idx_usage_events_tenant_kind,priority:2"`

	// 请求内容
	Prompt string `json:"prompt" gorm:"type:text"`
	Model  string `json:"model" gorm:"size:100"`

	// Token 统计
	InputTokens  int64 `json:"inputTokens" gorm:"not null;default:0"`
	OutputTokens int64 `json:"outputTokens" gorm:"not null;default:0"`
	TotalTokens  int64 `json:"totalTokens" gorm:"not null;default:0"`

	// 处理耗时（毫秒）
	DurationMS int64 `json:"durationMs" gorm:"not null;default:0"`

	// 关联产物
	Artifacts datatypes.JSONType[[]ArtifactDescriptor] `json:"artifacts"`

	// 响应内容
	Response string `json:"response" gorm:"type:text"`

	// 从提示词/响应派生的关键词集合（小写）
	Keywords datatypes.JSONType[[]string] `json:"keywords"`

	// 收藏标记，创建后唯一可变的字段
	Starred bool `json:"starred" gorm:"not null;default:false;index:idx_usage_events_tenant_starred,priority:2"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;index:idx_usage_events_tenant_created,priority:2"`
}

// TableName 指定表名
func (UsageEvent) TableName() string {
	return "usage_events"
}

// KeywordSet 读取关键词集合，空值返回空切片
func (e *UsageEvent) KeywordSet() []string {
	kw := e.Keywords.Data()
	if kw == nil {
		return []string{}
	}
	return kw
}

// Filter 历史查询过滤条件
type Filter struct {
	Kind    EventKind         `json:"kind"`     // 精确匹配，空值不过滤
	Starred *bool             `json:"starred"`  // nil 不过滤
	Keyword string            `json:"keyword"`  // 命中关键词集合任一项（大小写不敏感）
	Range   *common.DateRange `json:"range"`    // created_at 闭区间
}

// Page 历史查询结果页
type Page struct {
	Items      []UsageEvent          `json:"items"`
	Pagination common.PaginationMeta `json:"pagination"`
}
