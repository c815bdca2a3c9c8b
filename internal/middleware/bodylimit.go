package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 默认请求体大小限制
const (
	DefaultBodyLimit = 1 * 1024 * 1024  // 1MB - 校验等普通 API
	InboundBodyLimit = 30 * 1024 * 1024 // 30MB - 中继推送的整封邮件（含附件）
)

// BodySizeLimit 限制请求体大小的中间件
//
// Content-Length 超限时直接返回 413；未声明长度的请求由 MaxBytesReader 在读取时截断。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request body too large",
				"message": fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytes),
				"limit":   maxBytes,
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}
