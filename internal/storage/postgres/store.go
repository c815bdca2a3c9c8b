package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempmail/capture/internal/domain"
	"tempmail/capture/internal/storage"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// Store 基于 GORM 的关系存储实现，支持 PostgreSQL 与 MySQL
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建 PostgreSQL 存储实例
func NewStore(dsn string, pool PoolConfig, autoMigrate bool) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(dsn), pool, autoMigrate)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(dsn string, pool PoolConfig, autoMigrate bool) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), pool, autoMigrate)
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, pool PoolConfig, autoMigrate bool) (*Store, error) {
	config := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	store := &Store{db: db}

	if autoMigrate {
		if err := store.migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// migrate 自动迁移数据库表结构，生产环境使用 cmd/migrate
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Mailbox{},
		&domain.CapturedMessage{},
		&domain.Attachment{},
	)
}

// translate 把 GORM 的未找到错误转换为存储层哨兵错误，其余错误原样返回供重试判断
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// ========== Mailbox Repository ==========

// SaveMailbox 保存邮箱信息
func (s *Store) SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	return s.db.WithContext(ctx).Save(mailbox).Error
}

// FindMailboxByID 根据 ID 获取邮箱，不过滤过期与停用状态
func (s *Store) FindMailboxByID(ctx context.Context, id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&mailbox).Error
	if err != nil {
		return nil, translate(err)
	}
	return &mailbox, nil
}

// FindMailboxByAddress 根据完整地址获取邮箱
func (s *Store) FindMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&mailbox).Error
	if err != nil {
		return nil, translate(err)
	}
	return &mailbox, nil
}

// FindActiveMailboxes 在数据库侧过滤可用邮箱，按创建时间倒序
func (s *Store) FindActiveMailboxes(ctx context.Context, ids []string, now time.Time, limit int) ([]domain.Mailbox, error) {
	if len(ids) == 0 {
		return []domain.Mailbox{}, nil
	}
	if limit <= 0 || limit > storage.MaxBatchSize {
		limit = storage.MaxBatchSize
	}

	var mailboxes []domain.Mailbox
	err := s.db.WithContext(ctx).
		Where("id IN ? AND is_active = ? AND expires_at > ?", ids, true, now).
		Order("created_at DESC").
		Limit(limit).
		Find(&mailboxes).Error
	if err != nil {
		return nil, translate(err)
	}
	return mailboxes, nil
}

// ========== Message Repository ==========

// SaveMessage 插入邮件记录
func (s *Store) SaveMessage(ctx context.Context, message *domain.CapturedMessage) error {
	return s.db.WithContext(ctx).Create(message).Error
}

// GetMessage 获取邮件
func (s *Store) GetMessage(ctx context.Context, id string) (*domain.CapturedMessage, error) {
	var message domain.CapturedMessage
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

// SaveAttachment 插入附件元数据
func (s *Store) SaveAttachment(ctx context.Context, attachment *domain.Attachment) error {
	return s.db.WithContext(ctx).Create(attachment).Error
}

// ListAttachments 返回邮件的全部附件
func (s *Store) ListAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	var attachments []domain.Attachment
	err := s.db.WithContext(ctx).Where("message_id = ?", messageID).Find(&attachments).Error
	if err != nil {
		return nil, translate(err)
	}
	return attachments, nil
}

// ========== 工具方法 ==========

// Ping 测试数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
