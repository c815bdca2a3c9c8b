// Package jwt 签发与校验内部服务调用使用的 HS256 令牌。
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken 无效的令牌
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = errors.New("token expired")
	// ErrMissingService 令牌未声明调用方服务
	ErrMissingService = errors.New("token has no service claim")
)

// DefaultTokenTTL 签发令牌的默认有效期
const DefaultTokenTTL = time.Hour

// Claims 服务令牌声明
type Claims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// Manager 服务令牌管理器
type Manager struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewManager 创建服务令牌管理器
func NewManager(secret, issuer, audience string) *Manager {
	return &Manager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// IssueToken 为调用方服务签发令牌，ttl <= 0 时使用 DefaultTokenTTL
func (m *Manager) IssueToken(service string, ttl time.Duration) (string, error) {
	if service == "" {
		return "", ErrMissingService
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := m.now()
	claims := Claims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   service,
			Audience:  jwt.ClaimStrings{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	return signed, nil
}

// ValidateToken 验证令牌并返回声明，签发者与受众必须匹配
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Service == "" {
		return nil, ErrMissingService
	}
	return claims, nil
}
