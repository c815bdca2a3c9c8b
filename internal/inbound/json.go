package inbound

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"tempmail/capture/internal/domain"
)

// jsonMessage 兼容常见中继的 JSON 字段别名。
type jsonMessage struct {
	To            json.RawMessage  `json:"to"`
	Recipient     json.RawMessage  `json:"recipient"`
	From          json.RawMessage  `json:"from"`
	Sender        json.RawMessage  `json:"sender"`
	Subject       string           `json:"subject"`
	Text          string           `json:"text"`
	StrippedText  string           `json:"stripped_text"`
	StrippedText2 string           `json:"strippedText"`
	HTML          string           `json:"html"`
	MessageID     string           `json:"messageId"`
	Headers       map[string]any   `json:"headers"`
	Envelope      *jsonEnvelope    `json:"envelope"`
	Attachments   []jsonAttachment `json:"attachments"`
}

type jsonEnvelope struct {
	To   json.RawMessage `json:"to"`
	From json.RawMessage `json:"from"`
}

type jsonAttachment struct {
	FileName     string `json:"filename"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentType2 string `json:"content_type"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	Data         string `json:"data"`
}

func fromJSON(body []byte) (*rawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &ParseError{Err: ErrMalformedBody}
	}

	var msg jsonMessage
	if body[0] == '[' {
		var list []jsonMessage
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%w: %v", ErrMalformedBody, err)}
		}
		if len(list) == 0 {
			return nil, &ParseError{Err: fmt.Errorf("%w: empty array", ErrMalformedBody)}
		}
		msg = list[0]
	} else if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%w: %v", ErrMalformedBody, err)}
	}

	raw := &rawMessage{
		recipient:    firstAddress(msg.To, msg.Recipient),
		sender:       firstAddress(msg.From, msg.Sender),
		subject:      msg.Subject,
		strippedText: firstNonEmpty(msg.StrippedText, msg.StrippedText2),
		bodyText:     msg.Text,
		bodyHTML:     msg.HTML,
		messageID:    firstNonEmpty(msg.MessageID, headerValue(msg.Headers, "Message-Id")),
	}
	if msg.Envelope != nil {
		if raw.recipient == "" {
			raw.recipient = firstAddress(msg.Envelope.To)
		}
		if raw.sender == "" {
			raw.sender = firstAddress(msg.Envelope.From)
		}
	}
	if raw.subject == "" {
		raw.subject = headerValue(msg.Headers, "Subject")
	}

	for i, a := range msg.Attachments {
		index := i + 1
		name := firstNonEmpty(a.FileName, a.Name)
		encoded := firstNonEmpty(a.Content, a.Data)
		if encoded == "" {
			raw.skipped = append(raw.skipped, SkippedAttachment{Index: index, Name: name, Reason: "missing content"})
			continue
		}
		content, err := decodeBase64(encoded)
		if err != nil {
			raw.skipped = append(raw.skipped, SkippedAttachment{Index: index, Name: name, Reason: "invalid base64 content"})
			continue
		}
		raw.attachments = append(raw.attachments, domain.InboundAttachment{
			FileName:    name,
			ContentType: sanitizeContentType(firstNonEmpty(a.ContentType, a.ContentType2, a.Type)),
			Content:     content,
		})
	}

	return raw, nil
}

// firstAddress 地址字段可能是字符串、字符串数组或 {address|email} 对象（及其数组）。
func firstAddress(fields ...json.RawMessage) string {
	for _, field := range fields {
		if addr := addressFromRaw(field); addr != "" {
			return addr
		}
	}
	return ""
}

func addressFromRaw(field json.RawMessage) string {
	field = bytes.TrimSpace(field)
	if len(field) == 0 || bytes.Equal(field, []byte("null")) {
		return ""
	}

	switch field[0] {
	case '"':
		var s string
		if json.Unmarshal(field, &s) == nil {
			return strings.TrimSpace(s)
		}
	case '[':
		var list []json.RawMessage
		if json.Unmarshal(field, &list) == nil {
			return firstAddress(list...)
		}
	case '{':
		var obj struct {
			Address string `json:"address"`
			Email   string `json:"email"`
		}
		if json.Unmarshal(field, &obj) == nil {
			return firstNonEmpty(obj.Address, obj.Email)
		}
	}
	return ""
}

// headerValue 大小写不敏感地读取头部字段。
func headerValue(headers map[string]any, name string) string {
	for k, v := range headers {
		if !strings.EqualFold(k, name) {
			continue
		}
		switch val := v.(type) {
		case string:
			return val
		case []any:
			if len(val) > 0 {
				if s, ok := val[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
