package report

import (
	"time"

	"backend/internal/ledger"
)

// TenantMetadata 报表展示用的租户元数据
// 仅用于展示，核心内的授权判断不依赖这些字段。
type TenantMetadata struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Status      string `json:"status"`
}

// TenantUsageRow 单租户的用量汇总行
type TenantUsageRow struct {
	TenantID string             `json:"tenantId"`
	Ledger   ledger.UsageLedger `json:"ledger"`
	Metadata TenantMetadata     `json:"metadata"`
}

// Summary 全租户的用量总计
type Summary struct {
	TenantCount        int       `json:"tenantCount"`
	TotalInputTokens   int64     `json:"totalInputTokens"`
	TotalOutputTokens  int64     `json:"totalOutputTokens"`
	TotalTokens        int64     `json:"totalTokens"`
	TotalPdfsProcessed int64     `json:"totalPdfsProcessed"`
	TotalEstimatedCost float64   `json:"totalEstimatedCost"`
	GeneratedAt        time.Time `json:"generatedAt"`
}
