package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 地址校验相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// RFC 5322 邮箱地址长度限制
const (
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度
)

var (
	// 本地部分允许子地址（user+tag）
	localPartRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9._+-]*[a-z0-9])?$`)

	// 域名验证（支持子域名）
	domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)
)

// EmailValidator 收件地址验证器
type EmailValidator struct{}

// NewEmailValidator 创建收件地址验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// Normalize 解析中继传来的地址并返回小写的裸地址。
//
// 支持 `"Name" <user@example.com>` 形式，逗号分隔多个地址时只取第一个。
func (v *EmailValidator) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidEmail
	}
	if i := strings.IndexByte(raw, ','); i >= 0 && !strings.Contains(raw[:i], "\"") {
		raw = strings.TrimSpace(raw[:i])
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", ErrInvalidEmail
	}

	email := strings.ToLower(addr.Address)
	if err := v.ValidateEmail(email); err != nil {
		return "", err
	}
	return email, nil
}

// ValidateEmail 完整验证邮箱地址
func (v *EmailValidator) ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}

	if err := v.ValidateLocalPart(email[:at]); err != nil {
		return err
	}
	return v.ValidateDomain(email[at+1:])
}

// ValidateLocalPart 验证邮箱本地部分
func (v *EmailValidator) ValidateLocalPart(localPart string) error {
	if localPart == "" {
		return ErrInvalidLocalPart
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(localPart) {
		return ErrInvalidLocalPart
	}
	if strings.Contains(localPart, "..") {
		return ErrInvalidLocalPart
	}
	return nil
}

// ValidateDomain 验证域名
func (v *EmailValidator) ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// NormalizeAddress 使用默认验证器规范化地址。
func NormalizeAddress(raw string) (string, error) {
	return defaultValidator.Normalize(raw)
}

var defaultValidator = NewEmailValidator()
