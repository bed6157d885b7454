package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidQuotaOperation 无效的配额操作
	ErrInvalidQuotaOperation = errors.New("invalid quota operation")
)

// Service 存储配额服务
// 检查与预留在同一行锁内完成，同一租户的并发预留互相串行，
// 不会出现两笔合计超限的预留同时放行。
type Service struct {
	*common.BaseService
	defaultLimitBytes int64
}

// NewService 创建配额服务
func NewService(db *gorm.DB, defaultLimitBytes int64) *Service {
	return &Service{
		BaseService:       common.NewBaseService(db),
		defaultLimitBytes: defaultLimitBytes,
	}
}

// CheckAndReserve 检查并预留存储空间
// 放行时已在同一事务内把 deltaBytes 计入 used_bytes；
// 拒绝不产生任何变更。deltaBytes 必须为正。
func (s *Service) CheckAndReserve(ctx context.Context, tenantID string, deltaBytes int64) (*Decision, error) {
	if deltaBytes <= 0 {
		return nil, ErrInvalidQuotaOperation
	}

	var decision *Decision
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		q, err := s.lockOrCreate(tx, tenantID)
		if err != nil {
			return err
		}

		if q.UsedBytes+deltaBytes > q.LimitBytes {
			exceeded := q.UsedBytes + deltaBytes - q.LimitBytes
			decision = &Decision{
				Allowed:        false,
				Reason:         fmt.Sprintf("storage quota exceeded by %d bytes (%.1f MB)", exceeded, float64(exceeded)/(1<<20)),
				UsedBytes:      q.UsedBytes,
				LimitBytes:     q.LimitBytes,
				RemainingBytes: q.Remaining(),
				ExceededBytes:  exceeded,
			}
			return nil
		}

		if err := tx.Model(&StorageQuota{}).
			Where("tenant_id = ?", tenantID).
			Update("used_bytes", gorm.Expr("used_bytes + ?", deltaBytes)).Error; err != nil {
			return fmt.Errorf("预留配额失败: %w", err)
		}

		decision = &Decision{
			Allowed:        true,
			UsedBytes:      q.UsedBytes + deltaBytes,
			LimitBytes:     q.LimitBytes,
			RemainingBytes: q.LimitBytes - q.UsedBytes - deltaBytes,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !decision.Allowed {
		metrics.QuotaDenialsTotal.Inc()
		logger.WithContext(ctx).Warn("存储配额拒绝",
			zap.String("tenant_id", tenantID),
			zap.Int64("delta_bytes", deltaBytes),
			zap.Int64("used_bytes", decision.UsedBytes),
			zap.Int64("limit_bytes", decision.LimitBytes),
		)
	}
	return decision, nil
}

// Commit 落账一次配额变动并追加流水
// 正增量：字节已在预留时计入，此处只补流水。
// 负增量（删除）：总是成功，不校验上限，used_bytes 扣减且不为负。
func (s *Service) Commit(ctx context.Context, tenantID string, deltaBytes int64, action Action, artifactRef string) error {
	if deltaBytes == 0 {
		return ErrInvalidQuotaOperation
	}
	if !ValidAction(action) {
		return fmt.Errorf("%w: 未知变动类型 %q", ErrInvalidQuotaOperation, action)
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		q, err := s.lockOrCreate(tx, tenantID)
		if err != nil {
			return err
		}

		if deltaBytes < 0 {
			newUsed := q.UsedBytes + deltaBytes
			if newUsed < 0 {
				newUsed = 0
			}
			if err := tx.Model(&StorageQuota{}).
				Where("tenant_id = ?", tenantID).
				Update("used_bytes", newUsed).Error; err != nil {
				return fmt.Errorf("扣减配额失败: %w", err)
			}
		}

		entry := &HistoryEntry{
			ID:          uuid.New().String(),
			TenantID:    tenantID,
			Action:      action,
			DeltaBytes:  deltaBytes,
			ArtifactRef: artifactRef,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("写入配额流水失败: %w", err)
		}
		return nil
	})
}

// Release 释放未落账的预留（上传失败时回滚占用）
func (s *Service) Release(ctx context.Context, tenantID string, deltaBytes int64) error {
	if deltaBytes <= 0 {
		return ErrInvalidQuotaOperation
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		q, err := s.lockOrCreate(tx, tenantID)
		if err != nil {
			return err
		}

		newUsed := q.UsedBytes - deltaBytes
		if newUsed < 0 {
			newUsed = 0
		}
		return tx.Model(&StorageQuota{}).
			Where("tenant_id = ?", tenantID).
			Update("used_bytes", newUsed).Error
	})
}

// ResetAll 清零租户的存储占用
// 写入单条 delete_all 流水，delta 为移除的总字节数的负值。
func (s *Service) ResetAll(ctx context.Context, tenantID string) error {
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		q, err := s.lockOrCreate(tx, tenantID)
		if err != nil {
			return err
		}

		removed := q.UsedBytes
		if err := tx.Model(&StorageQuota{}).
			Where("tenant_id = ?", tenantID).
			Update("used_bytes", 0).Error; err != nil {
			return fmt.Errorf("清零配额失败: %w", err)
		}

		entry := &HistoryEntry{
			ID:         uuid.New().String(),
			TenantID:   tenantID,
			Action:     ActionDeleteAll,
			DeltaBytes: -removed,
			CreatedAt:  time.Now().UTC(),
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("写入配额流水失败: %w", err)
		}
		return nil
	})
}

// GetState 获取配额状态快照（含流水，按时间正序）
func (s *Service) GetState(ctx context.Context, tenantID string) (*State, error) {
	var q StorageQuota
	err := s.GetDBWithContext(ctx).Where("tenant_id = ?", tenantID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 尚无任何配额操作的租户返回零占用的默认状态
		return &State{
			Quota: StorageQuota{
				TenantID:   tenantID,
				LimitBytes: s.defaultLimitBytes,
			},
			History: []HistoryEntry{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询配额失败: %w", err)
	}

	var history []HistoryEntry
	if err := s.GetDBWithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("查询配额流水失败: %w", err)
	}

	return &State{Quota: q, History: history}, nil
}

// SetLimit 管理员调整租户上限
func (s *Service) SetLimit(ctx context.Context, tenantID string, limitBytes int64) error {
	if limitBytes <= 0 {
		return ErrInvalidQuotaOperation
	}
	return s.Transaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.lockOrCreate(tx, tenantID); err != nil {
			return err
		}
		return tx.Model(&StorageQuota{}).
			Where("tenant_id = ?", tenantID).
			Update("limit_bytes", limitBytes).Error
	})
}

// lockOrCreate 行锁获取配额，缺失时按默认上限创建
func (s *Service) lockOrCreate(tx *gorm.DB, tenantID string) (*StorageQuota, error) {
	var q StorageQuota
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&q).Error
	if err == nil {
		return &q, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("锁定配额失败: %w", err)
	}

	q = StorageQuota{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		LimitBytes: s.defaultLimitBytes,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&q).Error; err != nil {
		return nil, fmt.Errorf("创建配额失败: %w", err)
	}

	// 冲突后重新取锁拿到胜出行
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&q).Error; err != nil {
		return nil, fmt.Errorf("锁定配额失败: %w", err)
	}
	return &q, nil
}
