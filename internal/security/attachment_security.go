package security

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMaxAttachmentSize 单个附件默认上限
const DefaultMaxAttachmentSize = 10 * 1024 * 1024

// ErrAttachmentRejected 附件未通过安全策略。
var ErrAttachmentRejected = errors.New("attachment rejected")

// Violation 附件违反的具体规则
type Violation struct {
	Rule   string // size / extension / executable
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("attachment rejected (%s): %s", v.Rule, v.Detail)
}

// Is 使 errors.Is(err, ErrAttachmentRejected) 成立
func (v *Violation) Is(target error) bool { return target == ErrAttachmentRejected }

// AttachmentPolicy 附件安全检查器
//
// 临时邮箱接收任意来源的邮件，因此不做 MIME 白名单，只拦截明显危险的内容。
type AttachmentPolicy struct {
	maxFileSize         int64
	dangerousExtensions map[string]bool
}

// NewAttachmentPolicy 创建附件安全检查器，maxFileSize <= 0 时使用默认上限
func NewAttachmentPolicy(maxFileSize int64) *AttachmentPolicy {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxAttachmentSize
	}
	return &AttachmentPolicy{
		maxFileSize: maxFileSize,
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".msi": true,
			".ps1": true,
			".hta": true,
		},
	}
}

// Check 检查附件，通过时返回 nil，否则返回 *Violation
func (p *AttachmentPolicy) Check(filename string, content []byte) error {
	if int64(len(content)) > p.maxFileSize {
		return &Violation{Rule: "size", Detail: fmt.Sprintf("%d bytes exceeds limit of %d", len(content), p.maxFileSize)}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if p.dangerousExtensions[ext] {
		return &Violation{Rule: "extension", Detail: "dangerous file extension " + ext}
	}

	if isExecutable(content) {
		return &Violation{Rule: "executable", Detail: "executable file signature detected"}
	}
	return nil
}

// isExecutable 检查可执行文件魔数
func isExecutable(header []byte) bool {
	executableSignatures := [][]byte{
		{0x4D, 0x5A},             // PE executable
		{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
		{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
		{0xFE, 0xED, 0xFA, 0xCF}, // Mach-O 64-bit
		{0xCF, 0xFA, 0xED, 0xFE}, // Mach-O 64-bit (reverse)
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	return false
}

// SanitizeFileName 只保留 [A-Za-z0-9._-]，用于生成对象存储键
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if len(out) > 200 {
		out = out[len(out)-200:]
	}
	if out == "" {
		return "attachment"
	}
	return out
}
