// Package crypto 提供邮件字段的静态加密：部署密钥经 PBKDF2 派生为 AES-256 密钥，
// 每个字段使用 AES-GCM 独立加密。
package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize AES-256 密钥长度
	KeySize = 32
	// NonceSize GCM 标准 nonce 长度
	NonceSize = 12

	// SaltLabel 固定盐值标签，修改会导致历史数据无法解密
	SaltLabel = "tempmail-field-encryption-v1"
	// Iterations PBKDF2 迭代次数
	Iterations = 100000

	// FallbackSecret 未配置密钥时使用的默认值，仅用于开发环境
	FallbackSecret = "insecure-default-secret-change-me"
)

// DeriveKey 由部署密钥派生 32 字节字段加密密钥。
//
// 派生是确定性的：同一 secret 总是得到同一密钥。secret 为空时使用
// FallbackSecret 并返回 ErrMissingSecret，调用方需要在启动时处理该错误，
// 但返回的密钥仍然可用，加密不会被关闭。
func DeriveKey(secret string) ([]byte, error) {
	var err error
	if secret == "" {
		secret = FallbackSecret
		err = ErrMissingSecret
	}
	key := pbkdf2.Key([]byte(secret), []byte(SaltLabel), Iterations, KeySize, sha256.New)
	return key, err
}
