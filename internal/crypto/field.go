package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Sealed 单个字段的加密结果。空明文对应空密文和空 nonce。
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
}

// Empty 判断是否为空字段标记。
func (s Sealed) Empty() bool {
	return len(s.Ciphertext) == 0 && len(s.Nonce) == 0
}

// FieldEncryptor 使用 AES-256-GCM 加密邮件字段。
//
// 可并发使用；每次调用都从 crypto/rand 读取新的 nonce。
type FieldEncryptor struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewFieldEncryptor 使用 32 字节密钥创建加密器。
func NewFieldEncryptor(key []byte) (*FieldEncryptor, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return &FieldEncryptor{aead: aead, rand: rand.Reader}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt 加密单个字段。空字符串直接返回空标记，不经过密码算法。
func (e *FieldEncryptor) Encrypt(plaintext string) (Sealed, error) {
	if plaintext == "" {
		return Sealed{}, nil
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return Sealed{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return Sealed{
		Ciphertext: e.aead.Seal(nil, nonce, []byte(plaintext), nil),
		Nonce:      nonce,
	}, nil
}

// Decrypt 解密单个字段。空标记直接返回空字符串。
func (e *FieldEncryptor) Decrypt(ciphertext, nonce []byte) (string, error) {
	return open(e.aead, ciphertext, nonce)
}

// Open 使用显式密钥解密单个字段。
func Open(key, ciphertext, nonce []byte) (string, error) {
	if len(ciphertext) == 0 && len(nonce) == 0 {
		return "", nil
	}
	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	return open(aead, ciphertext, nonce)
}

func open(aead cipher.AEAD, ciphertext, nonce []byte) (string, error) {
	if len(ciphertext) == 0 && len(nonce) == 0 {
		return "", nil
	}
	if len(nonce) != NonceSize {
		return "", fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(nonce), NonceSize)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
