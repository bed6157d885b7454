package tenant

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrTenantNotFound 租户不存在
var ErrTenantNotFound = errors.New("tenant not found")

// Directory 租户目录
// 计量引擎对外部租户体系的全部依赖：存在性检查与报表元数据。
type Directory interface {
	// Exists 检查租户是否存在
	Exists(ctx context.Context, tenantID string) (bool, error)

	// Get 获取租户信息
	Get(ctx context.Context, tenantID string) (*Tenant, error)

	// List 列出租户，excludeStatuses 中的状态被排除
	List(ctx context.Context, excludeStatuses []string) ([]Tenant, error)
}

// GormDirectory 基于 GORM 的租户目录实现
type GormDirectory struct {
	db *gorm.DB
}

// NewGormDirectory 创建租户目录
func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Exists 检查租户是否存在
func (d *GormDirectory) Exists(ctx context.Context, tenantID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&Tenant{}).
		Where("id = ?", tenantID).
		Count(&count).Error
	return count > 0, err
}

// Get 获取租户信息
func (d *GormDirectory) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	var t Tenant
	err := d.db.WithContext(ctx).Where("id = ?", tenantID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List 列出租户
func (d *GormDirectory) List(ctx context.Context, excludeStatuses []string) ([]Tenant, error) {
	query := d.db.WithContext(ctx).Model(&Tenant{})
	if len(excludeStatuses) > 0 {
		query = query.Where("status NOT IN ?", excludeStatuses)
	}

	var tenants []Tenant
	if err := query.Order("created_at ASC").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}
