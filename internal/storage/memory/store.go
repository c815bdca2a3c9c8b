package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/storage"
)

// Store 使用内存保存邮箱与邮件数据，主要用于开发验证和测试。
type Store struct {
	mu          sync.RWMutex
	mailboxes   map[string]*domain.Mailbox
	byAddress   map[string]string
	messages    map[string]*domain.CapturedMessage
	attachments map[string][]*domain.Attachment // messageID -> attachments
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes:   make(map[string]*domain.Mailbox),
		byAddress:   make(map[string]string),
		messages:    make(map[string]*domain.CapturedMessage),
		attachments: make(map[string][]*domain.Attachment),
	}
}

var _ storage.Store = (*Store)(nil)

// SaveMailbox 保存邮箱信息。
func (s *Store) SaveMailbox(_ context.Context, mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *mailbox
	if old, ok := s.mailboxes[cp.ID]; ok && old.Address != cp.Address {
		delete(s.byAddress, old.Address)
	}
	s.mailboxes[cp.ID] = &cp
	s.byAddress[cp.Address] = cp.ID
	return nil
}

// FindMailboxByID 根据 ID 获取邮箱。
func (s *Store) FindMailboxByID(_ context.Context, id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *mailbox
	return &cp, nil
}

// FindMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) FindMailboxByAddress(_ context.Context, address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.mailboxes[id]
	return &cp, nil
}

// FindActiveMailboxes 返回可用邮箱，按创建时间倒序。
func (s *Store) FindActiveMailboxes(_ context.Context, ids []string, now time.Time, limit int) ([]domain.Mailbox, error) {
	if limit <= 0 || limit > storage.MaxBatchSize {
		limit = storage.MaxBatchSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	result := make([]domain.Mailbox, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if m, ok := s.mailboxes[id]; ok && m.Usable(now) {
			result = append(result, *m)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SaveMessage 保存邮件。
func (s *Store) SaveMessage(_ context.Context, message *domain.CapturedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *message
	s.messages[cp.ID] = &cp
	return nil
}

// GetMessage 获取邮件。
func (s *Store) GetMessage(_ context.Context, id string) (*domain.CapturedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// SaveAttachment 保存附件元数据，父邮件必须已存在。
func (s *Store) SaveAttachment(_ context.Context, attachment *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[attachment.MessageID]; !ok {
		return storage.ErrNotFound
	}
	cp := *attachment
	s.attachments[cp.MessageID] = append(s.attachments[cp.MessageID], &cp)
	return nil
}

// ListAttachments 返回邮件的全部附件。
func (s *Store) ListAttachments(_ context.Context, messageID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.attachments[messageID]
	result := make([]domain.Attachment, 0, len(list))
	for _, a := range list {
		result = append(result, *a)
	}
	return result, nil
}

// MessageCount 返回已保存的邮件数量。
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages 返回全部邮件的快照，按接收时间升序。
func (s *Store) Messages() []domain.CapturedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CapturedMessage, 0, len(s.messages))
	for _, m := range s.messages {
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result
}

// Ping 内存存储始终可用。
func (s *Store) Ping(context.Context) error { return nil }

// Close 内存存储无需释放资源。
func (s *Store) Close() error { return nil }
