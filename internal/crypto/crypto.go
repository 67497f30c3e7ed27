// Package crypto seals stored device credentials and checks the protection password.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of the encryption key in bytes (32 bytes = 256 bits)
	KeySize = 32
	// NonceSize is the size of the nonce for GCM mode
	NonceSize = 12
	// SaltSize is the size of the salt for key derivation
	SaltSize = 32
	// Iterations is the number of iterations for PBKDF2
	Iterations = 100000
	// MinPasswordLength is the shortest accepted protection password
	MinPasswordLength = 12

	hashScheme = "pbkdf2-sha256"
)

// ErrDecrypt hides whether the password or the data was wrong
var ErrDecrypt = errors.New("decryption failed: wrong password or corrupted data")

// Sealer encrypts values with AES-256-GCM under a key derived once from a
// password and a per-store salt. Associated data binds a value to its owner.
type Sealer struct {
	key  []byte
	salt []byte
	aead cipher.AEAD
}

// NewSealer derives the key for password and salt. A nil salt generates a new one.
func NewSealer(password string, salt []byte) (*Sealer, error) {
	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("invalid salt size: expected %d, got %d", SaltSize, len(salt))
	}

	key := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{key: key, salt: append([]byte(nil), salt...), aead: aead}, nil
}

// Salt returns the salt to persist alongside sealed values
func (s *Sealer) Salt() []byte {
	return append([]byte(nil), s.salt...)
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext)
func (s *Sealer) Seal(plaintext, associated []byte) (string, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, associated)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. The associated data must match.
func (s *Sealer) Open(encoded string, associated []byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(sealed) < NonceSize+s.aead.Overhead() {
		return nil, fmt.Errorf("invalid data size: got %d bytes", len(sealed))
	}

	plaintext, err := s.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], associated)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// Close wipes the derived key
func (s *Sealer) Close() {
	SecureZero(s.key)
}

// HashPassword returns "pbkdf2-sha256$<iterations>$<salt>$<hash>" for storing in config
func HashPassword(password string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	sum := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	return strings.Join([]string{
		hashScheme,
		strconv.Itoa(Iterations),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	}, "$"), nil
}

// VerifyPassword checks password against a HashPassword result in constant time
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != hashScheme {
		return false, errors.New("unrecognized password hash format")
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false, errors.New("invalid iteration count in password hash")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("invalid salt in password hash: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("invalid digest in password hash: %w", err)
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// ValidatePassword validates a password meets minimum requirements
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	return nil
}

// SecureZero securely zeros out sensitive byte slices
func SecureZero(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
