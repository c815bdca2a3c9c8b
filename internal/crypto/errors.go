package crypto

import "errors"

var (
	// ErrDecryption 密文被篡改、nonce 不匹配或密钥错误时返回。
	ErrDecryption = errors.New("field decryption failed")

	// ErrInvalidKeySize 密钥长度不是 32 字节。
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize nonce 长度不是 GCM 标准长度。
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrMissingSecret 部署密钥缺失，已退回到不安全的默认值。
	ErrMissingSecret = errors.New("encryption secret not configured, using insecure fallback")
)
