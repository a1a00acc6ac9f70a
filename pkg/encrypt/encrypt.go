package encrypt

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

// 金鑰衍生參數, 變更會使既有訊息無法解密
const (
	keySalt       = "chat-salt"
	keyIterations = 100000
	keyLength     = 32

	// NonceSize nonce 長度 (bytes)
	NonceSize = 16
	// TagSize GCM auth tag 長度 (bytes)
	TagSize = 16
)

// Placeholder 無法解密時顯示給使用者的文字
const Placeholder = "[encrypted message could not be displayed]"

// 定義錯誤信息
var (
	// ErrMissingSecret 未設定加密金鑰, 屬於啟動設定錯誤
	ErrMissingSecret = errors.New("chat encryption secret is not configured")
	// ErrDecryptionFailure 密文損毀或金鑰不符
	ErrDecryptionFailure = errors.New("failed to decrypt message")
)

// Codec 訊息內容加解密 (AES-256-GCM)
type Codec struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCodec 由伺服器密鑰衍生金鑰, 只在啟動時執行一次
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	key := pbkdf2.Key([]byte(secret), []byte(keySalt), keyIterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &Codec{aead: aead, rand: rand.Reader}, nil
}

// Encrypt 回傳 base64(nonce | ciphertext | tag)
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal 會把 ciphertext|tag 接在 nonce 後面
	blob := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt 解開 Encrypt 產生的 blob, 任何錯誤都回傳 ErrDecryptionFailure
func (c *Codec) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptionFailure)
	}
	if len(raw) < NonceSize+TagSize {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptionFailure)
	}

	plaintext, err := c.aead.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailure)
	}
	return string(plaintext), nil
}

// DecryptOrPlaceholder 讀取路徑使用, 失敗時回傳 Placeholder 與錯誤
func (c *Codec) DecryptOrPlaceholder(blob string) (string, error) {
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		return Placeholder, err
	}
	return plaintext, nil
}
