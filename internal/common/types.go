package common

import "time"

// ============================================================================
// 通用请求类型
// ============================================================================

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `json:"page" form:"page" binding:"omitempty,min=1"`           // 页码，从1开始
	PageSize int `json:"page_size" form:"page_size" binding:"omitempty,min=1"` // 每页数量
}

// DefaultPagination 返回默认分页参数
func DefaultPagination() PaginationRequest {
	return PaginationRequest{
		Page:     1,
		PageSize: 20,
	}
}

// GetPage 获取页码，提供默认值
func (p PaginationRequest) GetPage() int {
	if p.Page < 1 {
		return 1
	}
	return p.Page
}

// GetOffset 计算数据库查询的偏移量
func (p PaginationRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// GetPageSize 获取每页数量，提供默认值
func (p PaginationRequest) GetPageSize() int {
	if p.PageSize < 1 {
		return 20
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DateRange 日期范围（闭区间，零值端视为未设置）
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ============================================================================
// 分页元信息
// ============================================================================

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NewPaginationMeta 创建分页元信息
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	meta := PaginationMeta{
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	meta.HasNext = page < meta.TotalPages
	meta.HasPrev = page > 1 && total > 0
	return meta
}

// ============================================================================
// 业务错误
// ============================================================================

// ErrorKind 错误分类
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"        // 输入不合法，不可重试
	KindNotFound         ErrorKind = "not_found"         // 租户/事件不存在
	KindForbidden        ErrorKind = "forbidden"         // 归属不匹配且无管理员角色，不可重试
	KindQuotaExceeded    ErrorKind = "quota_exceeded"    // 存储配额超限
	KindStoreUnavailable ErrorKind = "store_unavailable" // 底层存储不可用/超时，可整体重试
)

// BusinessError 业务错误，携带分类与面向用户的消息
// 生产模式下不向调用方透出底层存储细节。
type BusinessError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error 实现error接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(kind ErrorKind, message string) *BusinessError {
	return &BusinessError{Kind: kind, Message: message}
}

// Retryable 该类错误是否可安全地整体重试
func (e *BusinessError) Retryable() bool {
	return e.Kind == KindStoreUnavailable
}
