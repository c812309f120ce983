package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 32      // Salt size in bytes
	KeySize      = 32      // AES-256 key size
	NonceSize    = 12      // GCM nonce size
	TagSize      = 16      // GCM authentication tag size
	DefaultIters = 210000  // Default PBKDF2 iterations (OWASP minimum)
	MinIters     = 100000  // Lowest iteration count accepted from config or artifacts
	MaxIters     = 5000000 // Highest iteration count accepted from config or artifacts
)

// fingerprintLabel separates fingerprint hashing from any other use of the key.
const fingerprintLabel = "lockbot-fingerprint-v1"

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrWeakParameters    = errors.New("kdf parameters below minimum")
)

// KDF handles key derivation from passwords
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt and the given iteration count.
// A zero iteration count selects DefaultIters.
func NewKDF(iterations int) (*KDF, error) {
	if iterations == 0 {
		iterations = DefaultIters
	}
	if iterations < MinIters || iterations > MaxIters {
		return nil, fmt.Errorf("%w: %d iterations", ErrWeakParameters, iterations)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// LoadKDF rebuilds a KDF from stored parameters.
func LoadKDF(salt []byte, iterations int) (*KDF, error) {
	if len(salt) != SaltSize || iterations < MinIters || iterations > MaxIters {
		return nil, ErrWeakParameters
	}
	return &KDF{
		Salt:       append([]byte(nil), salt...),
		Iterations: iterations,
	}, nil
}

// DeriveKey derives an encryption key from a password
func (k *KDF) DeriveKey(password []byte) []byte {
	return pbkdf2.Key(password, k.Salt, k.Iterations, KeySize, sha256.New)
}

// DeriveKeyContext is DeriveKey bounded by ctx. When ctx ends first its
// error is returned and the key computed in the background is cleared.
func (k *KDF) DeriveKeyContext(ctx context.Context, password []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw := append([]byte(nil), password...)
	done := make(chan []byte, 1)
	go func() {
		defer ClearBytes(pw)
		done <- k.DeriveKey(pw)
	}()

	select {
	case key := <-done:
		return key, nil
	case <-ctx.Done():
		go func() {
			ClearBytes(<-done)
		}()
		return nil, ctx.Err()
	}
}

// Fingerprint returns a hex one-way digest of a derived key.
// It identifies the key without revealing it or the password.
func Fingerprint(key []byte) string {
	h := sha256.New()
	h.Write([]byte(fingerprintLabel))
	h.Write(key)
	return hex.EncodeToString(h.Sum(nil))
}

// MatchFingerprint compares two fingerprints in constant time.
func MatchFingerprint(a, b string) bool {
	return ConstantTimeCompare([]byte(a), []byte(b))
}

// Encryptor provides authenticated encryption
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new encryptor with the given key
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{
		key: key,
	}
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext using AES-256-GCM. The additional data is
// authenticated but not encrypted; the same value must be passed to Decrypt.
// The result is nonce || ciphertext || tag.
func (e *Encryptor) Encrypt(plaintext, additional []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	result := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(result, nonce)
	return gcm.Seal(result, nonce, plaintext, additional), nil
}

// Decrypt decrypts ciphertext produced by Encrypt
func (e *Encryptor) Decrypt(ciphertext, additional []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[:NonceSize]
	plaintext, err := gcm.Open(nil, nonce, ciphertext[NonceSize:], additional)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
