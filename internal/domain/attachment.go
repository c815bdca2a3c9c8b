package domain

// Attachment 表示邮件附件的元数据记录，内容本身保存在对象存储中。
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`            // 附件唯一标识
	MessageID   string `json:"messageId" gorm:"type:varchar(36);index;not null"` // 所属邮件ID
	FileName    string `json:"fileName" gorm:"type:varchar(255)"`                // 原始文件名
	ContentType string `json:"contentType" gorm:"type:varchar(100)"`             // MIME类型
	SizeBytes   int64  `json:"sizeBytes"`                                        // 大小（字节）
	StorageRef  string `json:"storageRef" gorm:"type:varchar(500)"`              // 对象存储路径
}

// TableName 指定附件表名。
func (Attachment) TableName() string {
	return "attachments"
}
