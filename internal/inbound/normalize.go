package inbound

import (
	"fmt"
	"net/mail"
	"strings"

	"tempmail/capture/internal/domain"
)

// SkippedAttachment 归一化阶段被跳过的附件。
type SkippedAttachment struct {
	Index  int    // 从 1 开始
	Name   string // 可能为空
	Reason string
}

// Result 归一化结果。
type Result struct {
	Message *domain.InboundMessage
	Skipped []SkippedAttachment
}

// Normalize 将载荷转换为规范化的入站邮件。
//
// 单个附件损坏只会被记录到 Result.Skipped，不会导致整封邮件失败。
func Normalize(p Payload) (*Result, error) {
	var (
		raw *rawMessage
		err error
	)
	switch v := p.(type) {
	case FormPayload:
		raw, err = fromForm(v)
	case *FormPayload:
		raw, err = fromForm(*v)
	case JSONPayload:
		raw, err = fromJSON(v.Body)
	case *JSONPayload:
		raw, err = fromJSON(v.Body)
	default:
		return nil, &ParseError{Err: fmt.Errorf("%w: %T", ErrUnsupportedContentType, p)}
	}
	if err != nil {
		return nil, err
	}
	return raw.canonical()
}

// rawMessage 两种载荷解析后的公共中间形态，字段尚未规范化。
type rawMessage struct {
	recipient    string
	sender       string
	subject      string
	strippedText string
	bodyText     string
	bodyHTML     string
	messageID    string
	attachments  []domain.InboundAttachment
	skipped      []SkippedAttachment
}

func (r *rawMessage) canonical() (*Result, error) {
	if strings.TrimSpace(r.recipient) == "" {
		return nil, &ParseError{Field: "recipient", Err: ErrMissingRecipient}
	}
	recipient, err := domain.NormalizeAddress(r.recipient)
	if err != nil {
		return nil, &ParseError{Field: "recipient", Err: fmt.Errorf("%w: %v", ErrInvalidRecipient, err)}
	}

	subject := strings.TrimSpace(r.subject)
	if subject == "" {
		subject = domain.DefaultSubject
	}

	text := r.strippedText
	if strings.TrimSpace(text) == "" {
		text = r.bodyText
	}

	msg := &domain.InboundMessage{
		Recipient:   recipient,
		Sender:      normalizeSender(r.sender),
		Subject:     subject,
		BodyText:    text,
		BodyHTML:    r.bodyHTML,
		MessageID:   strings.Trim(strings.TrimSpace(r.messageID), "<>"),
		Attachments: r.attachments,
	}
	return &Result{Message: msg, Skipped: r.skipped}, nil
}

// normalizeSender 尽量提取裸地址，无法解析时保留原值。
func normalizeSender(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(addr.Address)
	}
	return raw
}

// sanitizeContentType 空类型回退为 application/octet-stream。
func sanitizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
