package domain

import "time"

// Mailbox 表示一个临时邮箱身份。
//
// SecretToken 是持有者证明邮箱控制权的能力凭证，只在核心内部比对，
// 对外响应一律使用 MailboxView。
type Mailbox struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address     string    `json:"address" gorm:"type:varchar(255);uniqueIndex;not null"`
	SecretToken string    `json:"-" gorm:"column:token;type:varchar(255);not null"`
	OwnerID     *string   `json:"ownerId,omitempty" gorm:"type:varchar(36);index"` // 注册用户创建时存在，游客模式为 nil
	CreatedAt   time.Time `json:"createdAt" gorm:"index;not null"`
	ExpiresAt   time.Time `json:"expiresAt" gorm:"index;not null"`
	IsActive    bool      `json:"isActive" gorm:"index;not null"`
}

// TableName 指定邮箱表名。
func (Mailbox) TableName() string {
	return "mailboxes"
}

// Expired 判断邮箱在 now 时刻是否已过期。
func (m *Mailbox) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Usable 邮箱可用当且仅当处于激活状态且尚未过期。
//
// 可用性不落库，每次调用都根据 now 重新计算。
func (m *Mailbox) Usable(now time.Time) bool {
	return m.IsActive && !m.Expired(now)
}

// MailboxView 对外暴露的邮箱视图（不含 SecretToken）。
type MailboxView struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// View 生成对外视图。
func (m *Mailbox) View() *MailboxView {
	if m == nil {
		return nil
	}
	return &MailboxView{
		ID:        m.ID,
		Address:   m.Address,
		ExpiresAt: m.ExpiresAt,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}
