// Package inbound 把邮件中继推送的原始请求归一化为 domain.InboundMessage。
//
// 请求格式在入口处根据 Content-Type 一次性确定为 FormPayload 或 JSONPayload，
// 之后的处理只对这两种变体做穷举分支。
package inbound

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
)

// DefaultMaxMemory 解析 multipart 表单时保存在内存中的最大字节数，其余写入临时文件。
const DefaultMaxMemory = 32 << 20

var (
	// ErrUnsupportedContentType 既不是表单也不是 JSON。
	ErrUnsupportedContentType = errors.New("unsupported content type")
	// ErrMissingRecipient 缺少收件人。
	ErrMissingRecipient = errors.New("missing recipient")
	// ErrInvalidRecipient 收件人格式错误。
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrMalformedBody 请求体无法解析。
	ErrMalformedBody = errors.New("malformed body")
)

// ParseError 客户端输入错误，对应 400 响应。
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("inbound payload: %v", e.Err)
	}
	return fmt.Sprintf("inbound payload: %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Payload 是入站请求的两种形态之一。
type Payload interface {
	isPayload()
}

// FormPayload multipart/form-data 或 application/x-www-form-urlencoded 请求。
type FormPayload struct {
	Values url.Values
	Files  map[string][]*multipart.FileHeader
}

// JSONPayload application/json 请求，Body 可以是单个对象或以邮件为首元素的数组。
type JSONPayload struct {
	Body []byte
}

func (FormPayload) isPayload() {}
func (JSONPayload) isPayload() {}

// ParseRequest 根据 Content-Type 读取请求体并确定载荷形态。
func ParseRequest(r *http.Request, maxMemory int64) (Payload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, &ParseError{Field: "Content-Type", Err: ErrUnsupportedContentType}
	}
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%w: %w", ErrMalformedBody, err)}
		}
		return FormPayload{Values: r.MultipartForm.Value, Files: r.MultipartForm.File}, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%w: %w", ErrMalformedBody, err)}
		}
		return FormPayload{Values: r.PostForm}, nil
	case "application/json", "text/json":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &ParseError{Err: fmt.Errorf("%w: %w", ErrMalformedBody, err)}
		}
		return JSONPayload{Body: body}, nil
	default:
		return nil, &ParseError{Field: "Content-Type", Err: ErrUnsupportedContentType}
	}
}
