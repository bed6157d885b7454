package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// ModelUsage 单模型累计用量
type ModelUsage struct {
	Count  int64   `json:"count"`  // 调用次数
	Tokens int64   `json:"tokens"` // 累计 token
	Cost   float64 `json:"cost"`   // 累计成本（美元）
}

// UsageLedger 租户用量台账
// 每个租户一行，只通过原子的增量操作更新；计量路径上所有字段单调不减。
type UsageLedger struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;uniqueIndex"`

	// Token 统计，不变式: TotalTokens == InputTokens + OutputTokens
	InputTokens  int64 `json:"inputTokens" gorm:"not null;default:0"`
	OutputTokens int64 `json:"outputTokens" gorm:"not null;default:0"`
	TotalTokens  int64 `json:"totalTokens" gorm:"not null;default:0"`

	// 处理的文档数
	PdfsProcessed int64 `json:"pdfsProcessed" gorm:"not null;default:0"`

	// 累计成本（预估，美元）
	EstimatedCost float64 `json:"estimatedCost" gorm:"not null;default:0"`

	// 按模型拆分的用量
	ModelBreakdown datatypes.JSONType[map[string]ModelUsage] `json:"modelBreakdown"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// TableName 指定表名
func (UsageLedger) TableName() string {
	return "usage_ledgers"
}

// Breakdown 读取按模型拆分的用量，空值返回空 map
func (l *UsageLedger) Breakdown() map[string]ModelUsage {
	m := l.ModelBreakdown.Data()
	if m == nil {
		return map[string]ModelUsage{}
	}
	return m
}

// Delta 一次用量事件折算出的增量
// 外围层负责把各种调用方负载归一化成此结构后再进入核心。
type Delta struct {
	InputTokens   int64  `json:"inputTokens"`
	OutputTokens  int64  `json:"outputTokens"`
	TotalTokens   int64  `json:"totalTokens"`
	PdfsProcessed int64  `json:"pdfsProcessed"`
	Model         string `json:"model"`
}

// Normalize 归一化增量：负数钳制为0；总数缺失时按输入+输出补齐
// 显式给出的非零总数被信任（调用方可能对缓存 token 另行计数）。
func (d *Delta) Normalize() {
	if d.InputTokens < 0 {
		d.InputTokens = 0
	}
	if d.OutputTokens < 0 {
		d.OutputTokens = 0
	}
	if d.TotalTokens < 0 {
		d.TotalTokens = 0
	}
	if d.PdfsProcessed < 0 {
		d.PdfsProcessed = 0
	}
	if d.TotalTokens == 0 && d.InputTokens+d.OutputTokens > 0 {
		d.TotalTokens = d.InputTokens + d.OutputTokens
	}
}
