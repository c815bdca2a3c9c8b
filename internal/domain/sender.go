package domain

import "context"

// Sender 是外发通道的不透明描述。
type Sender struct {
	ID   string
	Name string
}

// SenderPicker 外发通道选择器。
//
// 外发链路不在本服务内实现，这里只定义契约：Pick 选出一个健康的通道，
// Report 回报一次发送结果供选择器调整权重。
type SenderPicker interface {
	Pick(ctx context.Context) (Sender, error)
	Report(ctx context.Context, senderID string, ok bool)
}
