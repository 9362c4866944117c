package clientstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidState 无效的 clientState 令牌
	ErrInvalidState = errors.New("invalid client state")
	// ErrExpiredState clientState 令牌已过期
	ErrExpiredState = errors.New("client state expired")
)

// Claims clientState 令牌的声明，只携带内部用户 ID
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Signer 签发并校验订阅回调用的 clientState 令牌。
//
// 令牌随订阅创建写入提供方，通知回传时据此还原用户身份，
// 伪造或篡改的通知在解析阶段即被拒绝。
type Signer struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewSigner 创建签发器
// expiry 应覆盖订阅续期周期，续期时会重新签发
func NewSigner(secret, issuer string, expiry time.Duration) *Signer {
	if expiry <= 0 {
		expiry = 30 * 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

// Sign 为用户签发 clientState 令牌
func (s *Signer) Sign(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign client state: %w", err)
	}
	return signed, nil
}

// Parse 校验令牌并还原用户 ID
func (s *Signer) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredState
		}
		return "", ErrInvalidState
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidState
	}
	return claims.UserID, nil
}
