package common

import (
	"errors"
	"net/http"

	internal "backend/internal/common"
	"backend/internal/history"
	"backend/internal/ledger"
	"backend/internal/quota"

	"github.com/gin-gonic/gin"
)

// Success 返回成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// Created 返回创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// NoContent 返回无内容响应
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error 返回错误响应
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Success: false, Message: message})
}

// ErrorKind 返回带分类的错误响应
func ErrorKind(c *gin.Context, status int, kind internal.ErrorKind, message string) {
	c.JSON(status, ErrorResponse{Success: false, Kind: string(kind), Message: message})
}

// 错误分类到 HTTP 状态码
var kindStatus = map[internal.ErrorKind]int{
	internal.KindValidation:       http.StatusBadRequest,
	internal.KindNotFound:         http.StatusNotFound,
	internal.KindForbidden:        http.StatusForbidden,
	internal.KindQuotaExceeded:    http.StatusRequestEntityTooLarge,
	internal.KindStoreUnavailable: http.StatusServiceUnavailable,
}

// ServiceError 把核心服务错误映射为 HTTP 响应
// 生产模式（release）下未知错误只透出通用消息，不泄露存储细节。
func ServiceError(c *gin.Context, err error) {
	var be *internal.BusinessError
	if errors.As(err, &be) {
		status, ok := kindStatus[be.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		ErrorKind(c, status, be.Kind, be.Message)
		return
	}

	switch {
	case errors.Is(err, ledger.ErrLedgerNotFound):
		ErrorKind(c, http.StatusNotFound, internal.KindNotFound, "租户不存在")
	case errors.Is(err, history.ErrEventNotFound):
		ErrorKind(c, http.StatusNotFound, internal.KindNotFound, "事件不存在")
	case errors.Is(err, history.ErrForbidden):
		ErrorKind(c, http.StatusForbidden, internal.KindForbidden, "无权操作其他租户的事件")
	case errors.Is(err, history.ErrInvalidEvent):
		ErrorKind(c, http.StatusBadRequest, internal.KindValidation, err.Error())
	case errors.Is(err, quota.ErrInvalidQuotaOperation):
		ErrorKind(c, http.StatusBadRequest, internal.KindValidation, "无效的配额操作")
	default:
		message := "内部错误，请稍后重试"
		if gin.Mode() != gin.ReleaseMode {
			message = err.Error()
		}
		ErrorKind(c, http.StatusInternalServerError, internal.KindStoreUnavailable, message)
	}
}
