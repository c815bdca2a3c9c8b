package httptransport

import (
	"errors"

	"tempmail/capture/internal/inbound"
)

// 错误消息映射表（客户端错误 -> 中文消息），按顺序匹配
var errorMessages = []struct {
	err error
	msg string
}{
	{inbound.ErrUnsupportedContentType, "不支持的 Content-Type，仅接受表单或 JSON"},
	{inbound.ErrMissingRecipient, "缺少收件人"},
	{inbound.ErrInvalidRecipient, "收件人地址格式无效"},
	{inbound.ErrMalformedBody, "请求体格式错误"},
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return MsgInvalidRequest
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestTooLarge  = "请求体超出大小限制"
	MsgCaptureFailed    = "保存邮件失败，请稍后重投"
	MsgValidationFailed = "校验邮箱失败"
)
