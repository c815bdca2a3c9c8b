package domain

// DefaultSubject 入站邮件缺少主题时使用的占位主题。
const DefaultSubject = "(no subject)"

// InboundMessage 是各种上游中继格式归一化后的入站邮件。
type InboundMessage struct {
	Recipient   string // 已转为小写
	Sender      string
	Subject     string
	BodyText    string
	BodyHTML    string
	MessageID   string // 上游提供的 Message-Id，可能为空
	Attachments []InboundAttachment
}

// InboundAttachment 是已解码为原始字节的入站附件。
type InboundAttachment struct {
	FileName    string
	ContentType string
	Content     []byte
}
