// Package events 发布邮件捕获事件。事件只包含标识和计数，不包含邮件内容。
package events

import (
	"context"
	"time"
)

// TypeMessageCaptured 邮件捕获事件类型
const TypeMessageCaptured = "message.captured"

// MessageCaptured 一封邮件落库后发布的事件
type MessageCaptured struct {
	EventID           string    `json:"eventId"`
	Type              string    `json:"type"`
	MessageID         string    `json:"messageId"`
	MailboxID         string    `json:"mailboxId"`
	Provider          string    `json:"provider,omitempty"`
	AttachmentsSaved  int       `json:"attachmentsSaved"`
	AttachmentsFailed int       `json:"attachmentsFailed"`
	ReceivedAt        time.Time `json:"receivedAt"`
	OccurredAt        time.Time `json:"occurredAt"`
}

// Publisher 事件发布者
type Publisher interface {
	PublishCaptured(ctx context.Context, event MessageCaptured) error
}

// NopPublisher 未配置消息队列时使用
type NopPublisher struct{}

// PublishCaptured 丢弃事件
func (NopPublisher) PublishCaptured(context.Context, MessageCaptured) error { return nil }
