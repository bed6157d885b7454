package quota

import "time"

// Action 配额变动类型
type Action string

const (
	ActionUpload          Action = "upload"           // 上传产物
	ActionDelete          Action = "delete"           // 删除产物
	ActionDeleteAll       Action = "delete_all"       // 清空
	ActionAdminAdjustment Action = "admin_adjustment" // 管理员修正
)

// ValidAction 判断配额变动类型是否合法
func ValidAction(a Action) bool {
	switch a {
	case ActionUpload, ActionDelete, ActionDeleteAll, ActionAdminAdjustment:
		return true
	}
	return false
}

// StorageQuota 租户存储配额状态
// used_bytes 只通过行锁内的增量操作变更；准入时校验上限，
// 历史修正可临时超限，不做追溯性再校验。
type StorageQuota struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID   string    `json:"tenantId" gorm:"type:uuid;not null;uniqueIndex"`
	LimitBytes int64     `json:"limitBytes" gorm:"not null"`
	UsedBytes  int64     `json:"usedBytes" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (StorageQuota) TableName() string {
	return "storage_quotas"
}

// Remaining 剩余可用字节数
func (q *StorageQuota) Remaining() int64 {
	if q.UsedBytes >= q.LimitBytes {
		return 0
	}
	return q.LimitBytes - q.UsedBytes
}

// HistoryEntry 配额变动流水（追加写）
// 不变式（最终一致）：used_bytes == 流水中所有 delta_bytes 之和
type HistoryEntry struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID    string    `json:"tenantId" gorm:"type:uuid;not null;index:idx_quota_history_tenant_created,priority:1"`
	Action      Action    `json:"action" gorm:"size:30;not null"`
	DeltaBytes  int64     `json:"deltaBytes" gorm:"not null"`
	ArtifactRef string    `json:"artifactRef" gorm:"size:500"`
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index:idx_quota_history_tenant_created,priority:2"`
}

// TableName 指定表名
func (HistoryEntry) TableName() string {
	return "storage_quota_history"
}

// Decision 一次准入判定的结果
type Decision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	UsedBytes      int64  `json:"usedBytes"`
	LimitBytes     int64  `json:"limitBytes"`
	RemainingBytes int64  `json:"remainingBytes"`
	ExceededBytes  int64  `json:"exceededBytes,omitempty"`
}

// State 配额状态快照（含流水）
type State struct {
	Quota   StorageQuota   `json:"quota"`
	History []HistoryEntry `json:"history"`
}
