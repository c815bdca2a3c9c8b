package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 错误响应的统一结构
//
// 业务结果（捕获、校验）使用各自的扁平结构，只有协议层面的错误走这里。
type Response struct {
	Code int         `json:"code"`           // 业务状态码
	Msg  string      `json:"msg"`            // 中文提示信息
	Data interface{} `json:"data,omitempty"` // 数据载荷
}

// 业务状态码定义
const (
	CodeBadRequest         = 400 // 请求参数错误
	CodeUnauthorized       = 401 // 未认证
	CodeRequestTooLarge    = 413 // 请求体过大
	CodeInternalError      = 500 // 服务器内部错误
	CodeServiceUnavailable = 503 // 依赖暂时不可用
)

// StatusClientClosedRequest 客户端在响应前断开连接
const StatusClientClosedRequest = 499

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, msg string) {
	Error(c, http.StatusBadRequest, msg)
}

// RequestTooLarge 请求体过大（413）
func RequestTooLarge(c *gin.Context, msg string) {
	Error(c, http.StatusRequestEntityTooLarge, msg)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context, msg string) {
	Error(c, http.StatusInternalServerError, msg)
}

// Error 通用错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	c.AbortWithStatusJSON(httpCode, Response{
		Code: httpCode,
		Msg:  msg,
	})
}

// ClientGone 请求上下文已被客户端取消时中止处理，不写响应体
func ClientGone(c *gin.Context, err error) bool {
	if !errors.Is(err, context.Canceled) {
		return false
	}
	c.AbortWithStatus(StatusClientClosedRequest)
	return true
}
