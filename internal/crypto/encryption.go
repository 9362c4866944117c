package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// 密钥派生参数,修改任一项都会使已加密数据无法解密
const (
	keyLength       = 32    // AES-256
	pbkdf2Iteration = 10000 // 迭代次数
)

// appSalt 是固定的应用级盐值,用于从配置密钥派生 AES 密钥
var appSalt = []byte("dealradar-token-vault")

// ErrDecryptFailed 表示解密失败(密文损坏或密钥不匹配)
var ErrDecryptFailed = errors.New("decrypt failed: ciphertext invalid or key mismatch")

// Encryptor 使用 AES-256-GCM 对敏感凭证做加密存储
// GCM 同时提供机密性和完整性校验,适合保护第三方访问令牌
type Encryptor struct {
	key []byte
}

// NewEncryptor 从配置的密钥字符串派生 AES-256 密钥
// 使用 PBKDF2-SHA256 派生,密钥字符串本身不需要是固定长度
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	key := pbkdf2.Key([]byte(secret), appSalt, pbkdf2Iteration, keyLength, sha256.New)
	return &Encryptor{key: key}, nil
}

// Encrypt 加密明文并返回 base64url 编码的密文
// 输出格式: base64url([nonce][ciphertext][auth_tag])
// 每次加密使用随机 nonce,相同明文的密文也不相同
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密 Encrypt 产生的 base64url 密文
// 密文损坏或密钥不匹配时返回 ErrDecryptFailed,调用方必须视为硬错误
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptFailed
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", ErrDecryptFailed
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}
