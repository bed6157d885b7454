package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/metrics"
	"backend/internal/pricing"
	"backend/internal/tenant"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrLedgerNotFound 租户不存在，台账无从创建
	ErrLedgerNotFound = errors.New("ledger not found")
)

// Service 用量台账服务
// 同一租户的更新通过行级悲观锁串行化，增量要么全部入账要么全部不入账。
type Service struct {
	*common.BaseService
	rates     *pricing.Table
	directory tenant.Directory
}

// NewService 创建台账服务
func NewService(db *gorm.DB, rates *pricing.Table, directory tenant.Directory) *Service {
	return &Service{
		BaseService: common.NewBaseService(db),
		rates:       rates,
		directory:   directory,
	}
}

// Provision 为租户创建零值台账（幂等，通常在租户开通时调用）
func (s *Service) Provision(ctx context.Context, tenantID string) (*UsageLedger, error) {
	existing, err := s.findByTenant(ctx, s.GetDBWithContext(ctx), tenantID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	l := &UsageLedger{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		ModelBreakdown: datatypes.NewJSONType(map[string]ModelUsage{}),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.GetDBWithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(l).Error; err != nil {
		return nil, fmt.Errorf("创建台账失败: %w", err)
	}
	return s.findByTenant(ctx, s.GetDBWithContext(ctx), tenantID)
}

// ApplyDelta 原子地把一次用量增量折入租户台账
// 返回更新后的快照；租户不存在时返回 ErrLedgerNotFound。
func (s *Service) ApplyDelta(ctx context.Context, tenantID string, delta Delta) (*UsageLedger, error) {
	delta.Normalize()

	var snapshot *UsageLedger
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		// 行锁串行化同一租户的并发更新
		l, err := s.lockByTenant(tx, tenantID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 懒创建：租户存在但尚无台账
			exists, dirErr := s.directory.Exists(ctx, tenantID)
			if dirErr != nil {
				return fmt.Errorf("查询租户目录失败: %w", dirErr)
			}
			if !exists {
				return ErrLedgerNotFound
			}
			l = &UsageLedger{
				ID:             uuid.New().String(),
				TenantID:       tenantID,
				ModelBreakdown: datatypes.NewJSONType(map[string]ModelUsage{}),
				UpdatedAt:      time.Now().UTC(),
			}
			// 并发首次写入时可能撞上唯一索引，冲突后重新取锁拿到胜出行
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(l).Error; err != nil {
				return fmt.Errorf("创建台账失败: %w", err)
			}
			if l, err = s.lockByTenant(tx, tenantID); err != nil {
				return fmt.Errorf("锁定台账失败: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("锁定台账失败: %w", err)
		}

		cost := s.rates.EstimateCost(delta.Model, delta.InputTokens, delta.OutputTokens)

		// 更新按模型拆分
		breakdown := l.Breakdown()
		entry := breakdown[delta.Model]
		entry.Count++
		entry.Tokens += delta.TotalTokens
		entry.Cost += cost
		breakdown[delta.Model] = entry

		now := time.Now().UTC()

		// 数值列用字段级原子加，避免读-改-写丢失更新
		updates := map[string]interface{}{
			"input_tokens":    gorm.Expr("input_tokens + ?", delta.InputTokens),
			"output_tokens":   gorm.Expr("output_tokens + ?", delta.OutputTokens),
			"total_tokens":    gorm.Expr("total_tokens + ?", delta.TotalTokens),
			"pdfs_processed":  gorm.Expr("pdfs_processed + ?", delta.PdfsProcessed),
			"estimated_cost":  gorm.Expr("estimated_cost + ?", cost),
			"model_breakdown": datatypes.NewJSONType(breakdown),
			"updated_at":      now,
		}
		if err := tx.Model(&UsageLedger{}).
			Where("tenant_id = ?", tenantID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("更新台账失败: %w", err)
		}

		// 快照在锁内拼装，保证与本次提交一致
		snapshot = &UsageLedger{
			ID:             l.ID,
			TenantID:       l.TenantID,
			InputTokens:    l.InputTokens + delta.InputTokens,
			OutputTokens:   l.OutputTokens + delta.OutputTokens,
			TotalTokens:    l.TotalTokens + delta.TotalTokens,
			PdfsProcessed:  l.PdfsProcessed + delta.PdfsProcessed,
			EstimatedCost:  l.EstimatedCost + cost,
			ModelBreakdown: datatypes.NewJSONType(breakdown),
			CreatedAt:      l.CreatedAt,
			UpdatedAt:      now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensAccumulatedTotal.WithLabelValues("input").Add(float64(delta.InputTokens))
	metrics.TokensAccumulatedTotal.WithLabelValues("output").Add(float64(delta.OutputTokens))

	return snapshot, nil
}

// GetLedger 获取租户台账快照
// 有租户无用量时返回零值快照；租户不存在时返回 ErrLedgerNotFound。
func (s *Service) GetLedger(ctx context.Context, tenantID string) (*UsageLedger, error) {
	l, err := s.findByTenant(ctx, s.GetDBWithContext(ctx), tenantID)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询台账失败: %w", err)
	}

	exists, err := s.directory.Exists(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("查询租户目录失败: %w", err)
	}
	if !exists {
		return nil, ErrLedgerNotFound
	}

	return &UsageLedger{
		TenantID:       tenantID,
		ModelBreakdown: datatypes.NewJSONType(map[string]ModelUsage{}),
	}, nil
}

func (s *Service) findByTenant(ctx context.Context, db *gorm.DB, tenantID string) (*UsageLedger, error) {
	var l UsageLedger
	if err := db.Where("tenant_id = ?", tenantID).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Service) lockByTenant(tx *gorm.DB, tenantID string) (*UsageLedger, error) {
	var l UsageLedger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&l).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}
