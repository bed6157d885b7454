package tenant

import "time"

// 租户状态
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

// Tenant 租户（对应一个账号/用户）
// 计量引擎只读取目录信息用于报表展示，授权判断由外围层负责。
type Tenant struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	DisplayName string    `json:"displayName" gorm:"size:200"`
	Email       string    `json:"email" gorm:"size:320;index"`
	Role        string    `json:"role" gorm:"size:50"`   // user, admin
	Status      string    `json:"status" gorm:"size:20;index"` // active, suspended, deleted
	CreatedAt   time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}

// IsAdmin 是否具有管理员角色
func (t *Tenant) IsAdmin() bool {
	return t.Role == "admin"
}
