package service

import (
	"context"
	"strings"
	"time"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/storage"
)

// Directory 邮箱目录，核心层查询邮箱的唯一入口。
type Directory struct {
	repo storage.MailboxRepository
}

// NewDirectory 创建邮箱目录。
func NewDirectory(repo storage.MailboxRepository) *Directory {
	return &Directory{repo: repo}
}

// FindByAddress 按地址查询，地址不区分大小写。
func (d *Directory) FindByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	return d.repo.FindMailboxByAddress(ctx, strings.ToLower(strings.TrimSpace(address)))
}

// FindByID 按 ID 查询。
func (d *Directory) FindByID(ctx context.Context, id string) (*domain.Mailbox, error) {
	return d.repo.FindMailboxByID(ctx, id)
}

// FindManyByID 批量查询 now 时刻可用的邮箱，按创建时间倒序。
//
// limit 超出 MaxBatchSize 或不为正时按 MaxBatchSize 处理。
func (d *Directory) FindManyByID(ctx context.Context, ids []string, now time.Time, limit int) ([]domain.Mailbox, error) {
	if limit <= 0 || limit > storage.MaxBatchSize {
		limit = storage.MaxBatchSize
	}
	if len(ids) == 0 {
		return nil, nil
	}
	mailboxes, err := d.repo.FindActiveMailboxes(ctx, ids, now, limit)
	if err != nil {
		return nil, err
	}
	if len(mailboxes) > limit {
		mailboxes = mailboxes[:limit]
	}
	return mailboxes, nil
}
