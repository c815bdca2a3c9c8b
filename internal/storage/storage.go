package storage

import (
	"context"
	"errors"
	"time"

	"tempmail/capture/internal/domain"
)

var (
	// ErrNotFound 记录不存在，与瞬时错误严格区分。
	ErrNotFound = errors.New("record not found")
	// ErrTransient 可重试的基础设施错误（超时、连接重置等）。
	ErrTransient = errors.New("transient storage error")
)

// MaxBatchSize 批量查询邮箱的上限，与调用方传入的数量无关。
const MaxBatchSize = 20

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	FindMailboxByID(ctx context.Context, id string) (*domain.Mailbox, error)
	FindMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error)
	// FindActiveMailboxes 返回 ids 中处于激活且未过期的邮箱，按创建时间倒序，最多 limit 条。
	FindActiveMailboxes(ctx context.Context, ids []string, now time.Time, limit int) ([]domain.Mailbox, error)
}

// MessageRepository 定义邮件与附件元数据存取操作。
type MessageRepository interface {
	SaveMessage(ctx context.Context, message *domain.CapturedMessage) error
	GetMessage(ctx context.Context, id string) (*domain.CapturedMessage, error)
	SaveAttachment(ctx context.Context, attachment *domain.Attachment) error
	ListAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error)
}

// BlobStore 附件内容的对象存储，返回不透明的存储引用。
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Store 定义完整的关系存储接口。
type Store interface {
	MailboxRepository
	MessageRepository

	// 工具方法
	Ping(ctx context.Context) error
	Close() error
}
