package inbound

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"tempmail/capture/internal/domain"
)

const (
	attachmentPrefix   = "attachment-"
	attachmentCountKey = "attachment-count"
)

// MaxFormAttachments attachment-count 允许的最大值，超出视为格式错误。
const MaxFormAttachments = 100

func fromForm(p FormPayload) (*rawMessage, error) {
	values := p.Values
	if values == nil {
		values = url.Values{}
	}

	raw := &rawMessage{
		recipient:    first(values, "recipient", "to", "To"),
		sender:       first(values, "sender", "from", "From"),
		subject:      first(values, "subject", "Subject"),
		strippedText: first(values, "stripped-text"),
		bodyText:     first(values, "body-plain", "text"),
		bodyHTML:     first(values, "body-html", "stripped-html", "html"),
		messageID:    first(values, "Message-Id", "message-id", "Message-ID"),
	}

	indexes, err := attachmentIndexes(p)
	if err != nil {
		return nil, err
	}
	for _, i := range indexes {
		att, skip := readFormAttachment(p, i)
		if skip != nil {
			raw.skipped = append(raw.skipped, *skip)
			continue
		}
		raw.attachments = append(raw.attachments, *att)
	}
	return raw, nil
}

// attachmentIndexes 优先使用 attachment-count，缺失时扫描 attachment-N 文件字段。
func attachmentIndexes(p FormPayload) ([]int, error) {
	if countStr := first(p.Values, attachmentCountKey); countStr != "" {
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count < 0 || count > MaxFormAttachments {
			return nil, &ParseError{Field: attachmentCountKey, Err: ErrMalformedBody}
		}
		indexes := make([]int, count)
		for i := range indexes {
			indexes[i] = i + 1
		}
		return indexes, nil
	}

	var indexes []int
	for key := range p.Files {
		if !strings.HasPrefix(key, attachmentPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(key, attachmentPrefix)); err == nil && n > 0 {
			indexes = append(indexes, n)
		}
	}
	sort.Ints(indexes)
	return indexes, nil
}

func readFormAttachment(p FormPayload, index int) (*domain.InboundAttachment, *SkippedAttachment) {
	key := attachmentPrefix + strconv.Itoa(index)
	files := p.Files[key]
	if len(files) == 0 || files[0] == nil {
		return nil, &SkippedAttachment{Index: index, Reason: "missing file part " + key}
	}
	fh := files[0]

	f, err := fh.Open()
	if err != nil {
		return nil, &SkippedAttachment{Index: index, Name: fh.Filename, Reason: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, &SkippedAttachment{Index: index, Name: fh.Filename, Reason: fmt.Sprintf("read: %v", err)}
	}

	return &domain.InboundAttachment{
		FileName:    fh.Filename,
		ContentType: sanitizeContentType(fh.Header.Get("Content-Type")),
		Content:     content,
	}, nil
}

func first(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := values.Get(k); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
