package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"backend/internal/ledger"
	"backend/internal/logger"
	"backend/internal/tenant"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	summaryCacheKey = "report:usage_summary"
	summaryCacheTTL = 5 * time.Minute
)

// Service 跨租户用量汇总（运营/管理视图，只读）
// 单条坏数据不致整份报表失败：缺失或无法解析的台账
// 统一折算为零值快照后照常输出，保证管理端看到完整名册。
type Service struct {
	db        *gorm.DB
	directory tenant.Directory
	rdb       *redis.Client // 可为 nil，此时汇总不走缓存
}

// NewService 创建汇总服务
func NewService(db *gorm.DB, directory tenant.Directory, rdb *redis.Client) *Service {
	return &Service{db: db, directory: directory, rdb: rdb}
}

// ListAllLedgers 列出全部租户及其台账快照
// excludeStatuses 中状态的租户被排除；无用量的租户输出零值台账。
func (s *Service) ListAllLedgers(ctx context.Context, excludeStatuses []string) ([]TenantUsageRow, error) {
	tenants, err := s.directory.List(ctx, excludeStatuses)
	if err != nil {
		return nil, err
	}

	rows := make([]TenantUsageRow, 0, len(tenants))
	for _, t := range tenants {
		rows = append(rows, TenantUsageRow{
			TenantID: t.ID,
			Ledger:   s.safeLedger(ctx, t.ID),
			Metadata: TenantMetadata{
				DisplayName: t.DisplayName,
				Email:       t.Email,
				Role:        t.Role,
				Status:      t.Status,
			},
		})
	}
	return rows, nil
}

// Summarize 计算全租户总计，优先读缓存
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, summaryCacheKey).Bytes(); err == nil {
			var sum Summary
			if json.Unmarshal(cached, &sum) == nil {
				return &sum, nil
			}
		}
	}
	return s.Warm(ctx)
}

// Warm 重算全租户总计并刷新缓存（后台任务定期调用）
func (s *Service) Warm(ctx context.Context) (*Summary, error) {
	rows, err := s.ListAllLedgers(ctx, []string{tenant.StatusDeleted})
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		TenantCount: len(rows),
		GeneratedAt: time.Now().UTC(),
	}
	for _, row := range rows {
		sum.TotalInputTokens += row.Ledger.InputTokens
		sum.TotalOutputTokens += row.Ledger.OutputTokens
		sum.TotalTokens += row.Ledger.TotalTokens
		sum.TotalPdfsProcessed += row.Ledger.PdfsProcessed
		sum.TotalEstimatedCost += row.Ledger.EstimatedCost
	}

	if s.rdb != nil {
		if payload, err := json.Marshal(sum); err == nil {
			if err := s.rdb.Set(ctx, summaryCacheKey, payload, summaryCacheTTL).Err(); err != nil {
				logger.WithContext(ctx).Warn("写入汇总缓存失败", zap.Error(err))
			}
		}
	}
	return sum, nil
}

// safeLedger 读取台账，任何单行异常都折算成零值快照
func (s *Service) safeLedger(ctx context.Context, tenantID string) ledger.UsageLedger {
	var l ledger.UsageLedger
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&l).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithContext(ctx).Warn("台账行无法读取，按零值输出",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
		return ledger.UsageLedger{TenantID: tenantID}
	}

	// 旧数据缺失的拆分字段由 Breakdown() 统一折算为空 map
	return l
}
