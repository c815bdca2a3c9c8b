package domain

import "time"

// CapturedMessage 表示一封已捕获并加密落库的入站邮件。
//
// 主题、正文、HTML 三个字段各自独立加密，各有独立的 nonce。
// 空字段以空密文 + 空 nonce 表示。
type CapturedMessage struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID     string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	SenderAddress string    `json:"senderAddress" gorm:"type:varchar(320)"`
	SubjectCipher []byte    `json:"-"`
	SubjectNonce  []byte    `json:"-"`
	BodyCipher    []byte    `json:"-"`
	BodyNonce     []byte    `json:"-"`
	HTMLCipher    []byte    `json:"-" gorm:"column:html_cipher"`
	HTMLNonce     []byte    `json:"-" gorm:"column:html_nonce"`
	IsEncrypted   bool      `json:"isEncrypted" gorm:"not null"` // 加密前的历史数据为 false
	ReceivedAt    time.Time `json:"receivedAt" gorm:"index;not null"`
	IsRead        bool      `json:"isRead" gorm:"not null"`
}

// TableName 指定邮件表名。
func (CapturedMessage) TableName() string {
	return "messages"
}
