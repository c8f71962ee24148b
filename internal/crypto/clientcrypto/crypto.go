// Package clientcrypto contains client-side primitives: sealing of locally
// persisted records and content keys for image payloads.
package clientcrypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrSealedTooShort is returned when a sealed blob cannot hold salt and nonce.
var ErrSealedTooShort = errors.New("sealed blob too short")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives a record key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// Seal encrypts plaintext with XChaCha20-Poly1305: out = nonce || ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

// Open reverses Seal using the same key and AAD.
func Open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, ErrSealedTooShort
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}

// Sealer seals records with a key derived from a passphrase.
// Every sealed record carries its own random salt: out = salt || nonce || ciphertext.
type Sealer struct {
	passphrase []byte
}

// NewSealer returns a Sealer for passphrase.
func NewSealer(passphrase string) *Sealer {
	return &Sealer{passphrase: []byte(passphrase)}
}

// Seal encrypts plaintext bound to aad (the storage key of the record).
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	salt, err := Rand(SaltLen)
	if err != nil {
		return nil, err
	}
	ct, err := Seal(DeriveKey(s.passphrase, salt), plaintext, aad)
	if err != nil {
		return nil, err
	}
	return append(salt, ct...), nil
}

// Open decrypts a record produced by Seal.
func (s *Sealer) Open(blob, aad []byte) ([]byte, error) {
	if len(blob) < SaltLen+chacha20poly1305.NonceSizeX {
		return nil, ErrSealedTooShort
	}
	return Open(DeriveKey(s.passphrase, blob[:SaltLen]), blob[SaltLen:], aad)
}

// ContentKey returns the hex BLAKE2b-256 digest of content.
// Equal bytes always map to the same key regardless of where they came from.
func ContentKey(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
