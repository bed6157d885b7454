package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"backend/internal/common"
	"backend/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrInvalidEvent 事件内容不合法
	ErrInvalidEvent = errors.New("invalid usage event")

	// ErrEventNotFound 事件不存在
	ErrEventNotFound = errors.New("usage event not found")

	// ErrForbidden 事件归属与调用租户不匹配且无管理员角色
	ErrForbidden = errors.New("event belongs to another tenant")
)

// 排序字段白名单
var sortableFields = []string{"created_at", "total_tokens", "kind", "model", "duration_ms", "starred"}

// Service 用量历史存储
// 追加为主：事件彼此独立，并发插入无需额外同步。
type Service struct {
	*common.BaseService
}

// NewService 创建历史存储服务
func NewService(db *gorm.DB) *Service {
	return &Service{BaseService: common.NewBaseService(db)}
}

// RecordEvent 追加一条用量事件，返回事件ID
// 校验事件类型与 token 字段，并从提示词/响应派生关键词集合。
func (s *Service) RecordEvent(ctx context.Context, tenantID string, ev *UsageEvent) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("%w: 缺少租户", ErrInvalidEvent)
	}
	if !ValidKind(ev.Kind) {
		return "", fmt.Errorf("%w: 未知事件类型 %q", ErrInvalidEvent, ev.Kind)
	}
	if ev.InputTokens < 0 || ev.OutputTokens < 0 || ev.TotalTokens < 0 {
		return "", fmt.Errorf("%w: token 数不能为负", ErrInvalidEvent)
	}

	ev.ID = uuid.New().String()
	ev.TenantID = tenantID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if len(ev.Prompt) > maxPromptBytes {
		// 截断点回退到 rune 边界，避免拆出无效 UTF-8
		cut := maxPromptBytes
		for cut > 0 && !utf8.RuneStart(ev.Prompt[cut]) {
			cut--
		}
		ev.Prompt = ev.Prompt[:cut]
	}
	ev.Keywords = datatypes.NewJSONType(ExtractKeywords(ev.Prompt, ev.Response))

	if err := s.GetDBWithContext(ctx).Create(ev).Error; err != nil {
		return "", fmt.Errorf("写入用量事件失败: %w", err)
	}

	metrics.EventsRecordedTotal.WithLabelValues(string(ev.Kind), ev.Model).Inc()
	return ev.ID, nil
}

// QueryHistory 按租户查询历史事件
// 结果永远限定在 tenantID 之内；默认按 created_at 倒序。
func (s *Service) QueryHistory(ctx context.Context, tenantID string, filter Filter, page common.PaginationRequest, sortBy, sortOrder string) (*Page, error) {
	query := s.GetDBWithContext(ctx).Model(&UsageEvent{})
	query = s.ApplyTenantFilter(query, tenantID)

	if filter.Kind != "" {
		if !ValidKind(filter.Kind) {
			return nil, fmt.Errorf("%w: 未知事件类型 %q", ErrInvalidEvent, filter.Kind)
		}
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.Starred != nil {
		query = query.Where("starred = ?", *filter.Starred)
	}
	if filter.Keyword != "" {
		// 关键词集合小写入库，带引号匹配 JSON 数组中的完整条目
		kw := common.EscapeLike(strings.ToLower(filter.Keyword))
		query = query.Where("keywords LIKE ? ESCAPE '\\'", "%\""+kw+"\"%")
	}
	query = s.ApplyDateRangeFilter(query, "created_at", filter.Range)

	total, err := s.CountWithQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("统计历史事件失败: %w", err)
	}

	query = s.ApplySorting(query, sortBy, sortOrder, sortableFields)
	query = s.ApplyPagination(query, page.GetPage(), page.GetPageSize())

	var items []UsageEvent
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("查询历史事件失败: %w", err)
	}

	return &Page{
		Items:      items,
		Pagination: common.NewPaginationMeta(page.GetPage(), page.GetPageSize(), total),
	}, nil
}

// ToggleStarred 切换事件的收藏标记
// elevated 表示调用方具有管理员角色，可跨租户操作。
func (s *Service) ToggleStarred(ctx context.Context, tenantID, eventID string, elevated bool) (*UsageEvent, error) {
	ev, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.TenantID != tenantID && !elevated {
		return nil, ErrForbidden
	}

	// 数据库内取反，并发切换不会丢失翻转
	if err := s.GetDBWithContext(ctx).Model(&UsageEvent{}).
		Where("id = ?", eventID).
		Update("starred", gorm.Expr("NOT starred")).Error; err != nil {
		return nil, fmt.Errorf("更新收藏标记失败: %w", err)
	}
	return s.findEvent(ctx, eventID)
}

// DeleteEvent 永久删除事件
// 台账累计值只增不减，不随历史删除回调。
func (s *Service) DeleteEvent(ctx context.Context, tenantID, eventID string, elevated bool) error {
	ev, err := s.findEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.TenantID != tenantID && !elevated {
		return ErrForbidden
	}

	if err := s.GetDBWithContext(ctx).Delete(ev).Error; err != nil {
		return fmt.Errorf("删除事件失败: %w", err)
	}
	return nil
}

// SearchByText 全文检索
// 大小写不敏感地匹配提示词、响应与关键词集合，按时间倒序。
func (s *Service) SearchByText(ctx context.Context, tenantID, text string) ([]UsageEvent, error) {
	query := s.GetDBWithContext(ctx).Model(&UsageEvent{})
	query = s.ApplyTenantFilter(query, tenantID)
	query = s.ApplyKeywordSearch(query, text, []string{"prompt", "response", "keywords"})

	var items []UsageEvent
	if err := query.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("检索历史事件失败: %w", err)
	}
	return items, nil
}

// OwnerOf 返回事件归属的租户，供外围层做角色校验
func (s *Service) OwnerOf(ctx context.Context, eventID string) (string, error) {
	ev, err := s.findEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	return ev.TenantID, nil
}

func (s *Service) findEvent(ctx context.Context, eventID string) (*UsageEvent, error) {
	var ev UsageEvent
	err := s.GetDBWithContext(ctx).Where("id = ?", eventID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询事件失败: %w", err)
	}
	return &ev, nil
}
